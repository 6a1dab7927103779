package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kweilin/lessonforge/internal/acquire"
	"github.com/kweilin/lessonforge/internal/lesson"
	"github.com/kweilin/lessonforge/internal/media"
	"github.com/kweilin/lessonforge/internal/store"
	"github.com/kweilin/lessonforge/internal/transcribe"
)

type fakeDownloader struct {
	id           string
	resolveErr   error
	fetchErr     error
	tempDir      string
	resolveCalls int
	fetchCalls   int
}

func (f *fakeDownloader) ResolveID(_ context.Context, _ string) (string, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.id, nil
}

func (f *fakeDownloader) Fetch(_ context.Context, _ string) (*acquire.VideoInfo, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	mediaPath := filepath.Join(f.tempDir, f.id+".mp4")
	if err := os.WriteFile(mediaPath, []byte("fake video"), 0644); err != nil {
		return nil, err
	}
	return &acquire.VideoInfo{
		ID:              f.id,
		Title:           "Fox Documentary",
		DurationSeconds: 120,
		MediaPath:       mediaPath,
	}, nil
}

type fakeEngine struct {
	segments []transcribe.Segment
	err      error
	calls    int
}

func (f *fakeEngine) Transcribe(_ context.Context, audioPath string) ([]transcribe.Segment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio missing: %w", err)
	}
	return f.segments, nil
}

// fakeAugmenter translates every segment unless failOn reports the batch
// should fail. Batches are identified by the id of their first segment.
type fakeAugmenter struct {
	mu      sync.Mutex
	batches [][]int // ids per call, in call order
	failOn  func(firstID int) bool
	delay   func(firstID int) time.Duration
}

func (f *fakeAugmenter) Augment(_ context.Context, _ string, segments []lesson.Segment) ([]lesson.Segment, error) {
	ids := make([]int, len(segments))
	for i, seg := range segments {
		ids[i] = seg.ID
	}
	f.mu.Lock()
	f.batches = append(f.batches, ids)
	f.mu.Unlock()

	if len(segments) > 0 {
		if f.delay != nil {
			time.Sleep(f.delay(segments[0].ID))
		}
		if f.failOn != nil && f.failOn(segments[0].ID) {
			return nil, errors.New("model merged two segments")
		}
	}

	out := make([]lesson.Segment, len(segments))
	for i, seg := range segments {
		seg.TextTarget = fmt.Sprintf("翻譯 %d", seg.ID)
		seg.Keywords = []string{"fox"}
		out[i] = seg
	}
	return out, nil
}

type fakeOperator struct {
	mediaPath string
	probed    float64
}

func (f *fakeOperator) ExtractWAV(context.Context) (string, error) {
	path := f.mediaPath + ".wav"
	return path, os.WriteFile(path, []byte("wav"), 0644)
}

func (f *fakeOperator) ExtractMP3(context.Context) (string, error) {
	path := f.mediaPath + ".mp3"
	return path, os.WriteFile(path, make([]byte, 256*1024), 0644)
}

func (f *fakeOperator) ProbeDuration(context.Context) (float64, error) {
	if f.probed == 0 {
		return 0, errors.New("no duration")
	}
	return f.probed, nil
}

func englishTranscript(n int) []transcribe.Segment {
	sentences := []string{
		"The quick brown fox jumps over the lazy dog near the river bank.",
		"Every morning the fox returns to the same clearing in the forest.",
		"Researchers have followed this particular animal for three years now.",
		"Its territory covers roughly four square kilometers of mixed woodland.",
		"During winter the fox relies almost entirely on small rodents for food.",
	}
	segs := make([]transcribe.Segment, n)
	for i := range segs {
		start := float64(i * 3)
		segs[i] = transcribe.Segment{
			Start: start,
			End:   start + 3,
			Text:  " " + sentences[i%len(sentences)],
			Words: []transcribe.Word{
				{Text: "The", Start: start, End: start + 0.4},
				{Text: "quick", Start: start + 0.4, End: start + 0.9},
			},
		}
	}
	return segs
}

type harness struct {
	orch       *Orchestrator
	downloader *fakeDownloader
	engine     *fakeEngine
	augmenter  *fakeAugmenter
	store      *store.Store
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	artifacts, err := store.NewStore(filepath.Join(t.TempDir(), "lessons"))
	require.NoError(t, err)

	h := &harness{
		downloader: &fakeDownloader{id: "vid001", tempDir: t.TempDir()},
		engine:     &fakeEngine{segments: englishTranscript(5)},
		augmenter:  &fakeAugmenter{},
		store:      artifacts,
	}
	h.orch = NewOrchestrator(h.downloader, h.engine, h.augmenter, artifacts, opts)
	h.orch.newOperator = func(mediaPath string) media.Operator {
		return &fakeOperator{mediaPath: mediaPath}
	}
	return h
}

func TestProcess_FreshVideo(t *testing.T) {
	h := newHarness(t, Options{BatchSize: 2})

	res := h.orch.Process(context.Background(), "https://youtu.be/vid001")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, "vid001", res.LessonID)
	assert.True(t, res.Complete)

	doc, err := h.store.Load("vid001")
	require.NoError(t, err)
	assert.Equal(t, "Fox Documentary", doc.Title)
	assert.Equal(t, "https://youtu.be/vid001", doc.SourceURL)
	assert.Equal(t, "vid001.mp4", doc.MediaFilename)
	assert.Equal(t, "vid001.mp3", doc.AudioFilename)
	assert.Equal(t, 120.0, doc.DurationSeconds)
	assert.Equal(t, "English", doc.SourceLanguage)
	assert.Positive(t, doc.AudioSizeMB)
	require.Len(t, doc.Segments, 5)

	for i, seg := range doc.Segments {
		assert.Equal(t, i, seg.ID)
		assert.True(t, seg.Translated())
		assert.NotEmpty(t, seg.Words)
	}

	// 5 segments in batches of 2 is 3 calls.
	assert.Len(t, h.augmenter.batches, 3)

	// Media copies land in the artifact dir.
	assert.FileExists(t, filepath.Join(h.store.Dir(), "vid001.mp4"))
	assert.FileExists(t, filepath.Join(h.store.Dir(), "vid001.mp3"))
}

func TestProcess_CleansTempFiles(t *testing.T) {
	h := newHarness(t, Options{})

	res := h.orch.Process(context.Background(), "https://youtu.be/vid001")
	require.NoError(t, res.Err)

	base := filepath.Join(h.downloader.tempDir, "vid001.mp4")
	assert.NoFileExists(t, base)
	assert.NoFileExists(t, base+".wav")
	assert.NoFileExists(t, base+".mp3")
}

func TestProcess_AugmentFailureFallsBackToSentinel(t *testing.T) {
	h := newHarness(t, Options{BatchSize: 2})
	// Second of three batches fails; the whole pass is discarded.
	h.augmenter.failOn = func(firstID int) bool { return firstID == 2 }

	res := h.orch.Process(context.Background(), "https://youtu.be/vid001")
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.False(t, res.Complete)
	require.Error(t, res.Err)

	doc, err := h.store.Load("vid001")
	require.NoError(t, err)
	require.Len(t, doc.Segments, 5)
	for _, seg := range doc.Segments {
		assert.Equal(t, lesson.Untranslated, seg.TextTarget, "no partial translations may survive")
	}
}

func TestProcess_SkipsCompleteArtifact(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.store.Write(&lesson.Document{
		LessonID: "vid001",
		Title:    "Already done",
		Segments: []lesson.Segment{
			{ID: 0, TextSource: "hello", TextTarget: "你好"},
		},
	}))

	res := h.orch.Process(context.Background(), "https://youtu.be/vid001")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.True(t, res.Complete)
	require.NoError(t, res.Err)

	assert.Zero(t, h.downloader.fetchCalls, "no download for a complete artifact")
	assert.Zero(t, h.engine.calls)
	assert.Empty(t, h.augmenter.batches)
}

func TestProcess_CorruptArtifactIsReportedUntouched(t *testing.T) {
	h := newHarness(t, Options{})

	raw := []byte("{definitely not json")
	require.NoError(t, os.WriteFile(h.store.Path("vid001"), raw, 0644))

	res := h.orch.Process(context.Background(), "https://youtu.be/vid001")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, store.ErrCorrupt)

	after, err := os.ReadFile(h.store.Path("vid001"))
	require.NoError(t, err)
	assert.Equal(t, raw, after, "corrupt artifacts are never overwritten")
	assert.Zero(t, h.downloader.fetchCalls)
}

func TestProcess_RetranslatesPendingSegmentsOnly(t *testing.T) {
	h := newHarness(t, Options{BatchSize: 10})

	require.NoError(t, h.store.Write(&lesson.Document{
		LessonID:       "vid001",
		Title:          "Half done",
		SourceLanguage: "English",
		Segments: []lesson.Segment{
			{ID: 0, TextSource: "first", TextTarget: "第一"},
			{ID: 1, TextSource: "second", TextTarget: lesson.Untranslated},
			{ID: 2, TextSource: "third", TextTarget: lesson.Untranslated},
		},
	}))

	res := h.orch.Process(context.Background(), "https://youtu.be/vid001")
	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.True(t, res.Complete)

	require.Len(t, h.augmenter.batches, 1)
	assert.Equal(t, []int{1, 2}, h.augmenter.batches[0], "only pending segments are resubmitted")

	doc, err := h.store.Load("vid001")
	require.NoError(t, err)
	assert.Equal(t, "第一", doc.Segments[0].TextTarget, "existing translation untouched")
	assert.Equal(t, "翻譯 1", doc.Segments[1].TextTarget)
	assert.Equal(t, "翻譯 2", doc.Segments[2].TextTarget)
	assert.Zero(t, h.downloader.fetchCalls, "retranslation never redownloads")
	assert.Zero(t, h.engine.calls, "retranslation never retranscribes")
}

func TestProcess_RetranslateFailureLeavesArtifactUntouched(t *testing.T) {
	h := newHarness(t, Options{})
	h.augmenter.failOn = func(int) bool { return true }

	require.NoError(t, h.store.Write(&lesson.Document{
		LessonID: "vid001",
		Segments: []lesson.Segment{
			{ID: 0, TextSource: "first", TextTarget: lesson.Untranslated},
		},
	}))
	before, err := os.ReadFile(h.store.Path("vid001"))
	require.NoError(t, err)

	res := h.orch.Process(context.Background(), "https://youtu.be/vid001")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)

	after, err := os.ReadFile(h.store.Path("vid001"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestProcess_ResolveFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.downloader.resolveErr = acquire.ErrIdentityUnavailable

	res := h.orch.Process(context.Background(), "https://youtu.be/broken")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, acquire.ErrIdentityUnavailable)
	assert.Empty(t, res.LessonID)
}

func TestProcess_EmptyTranscriptFails(t *testing.T) {
	h := newHarness(t, Options{})
	h.engine.segments = nil

	res := h.orch.Process(context.Background(), "https://youtu.be/vid001")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.False(t, h.store.Exists("vid001"))
}

func TestAugmentAll_PreservesOrderUnderConcurrency(t *testing.T) {
	h := newHarness(t, Options{BatchSize: 1, BatchConcurrency: 4})
	// Earlier batches finish later; order must still hold.
	h.augmenter.delay = func(firstID int) time.Duration {
		return time.Duration(5-firstID) * 10 * time.Millisecond
	}

	input := make([]lesson.Segment, 5)
	for i := range input {
		input[i] = lesson.Segment{ID: i, TextSource: fmt.Sprintf("s%d", i), TextTarget: lesson.Untranslated}
	}

	got, err := h.orch.augmentAll(context.Background(), "English", input)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, seg := range got {
		assert.Equal(t, i, seg.ID, "output order must match input order")
	}
}

func TestSegmentsFromTranscript_DropsEmptyAndReindexes(t *testing.T) {
	segs := segmentsFromTranscript([]transcribe.Segment{
		{Start: 0, End: 1, Text: " first "},
		{Start: 1, End: 2, Text: "   "},
		{Start: 2, End: 3, Text: " third"},
	})

	require.Len(t, segs, 2)
	assert.Equal(t, 0, segs[0].ID)
	assert.Equal(t, "first", segs[0].TextSource)
	assert.Equal(t, 1, segs[1].ID)
	assert.Equal(t, "third", segs[1].TextSource)
	assert.Equal(t, 2.0, segs[1].StartTime)
	for _, seg := range segs {
		assert.Equal(t, lesson.Untranslated, seg.TextTarget)
	}
}
