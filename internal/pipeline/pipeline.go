// Package pipeline drives one video through acquisition, transcription,
// augmentation, and artifact persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/sync/errgroup"

	"github.com/kweilin/lessonforge/internal/acquire"
	"github.com/kweilin/lessonforge/internal/batch"
	"github.com/kweilin/lessonforge/internal/lesson"
	"github.com/kweilin/lessonforge/internal/media"
	"github.com/kweilin/lessonforge/internal/store"
	"github.com/kweilin/lessonforge/internal/transcribe"
	"github.com/kweilin/lessonforge/pkg/log"
)

// Outcome summarizes how processing one URL ended.
type Outcome int

const (
	// OutcomeDone means an artifact was written or updated.
	OutcomeDone Outcome = iota
	// OutcomeSkipped means a complete artifact already existed.
	OutcomeSkipped
	// OutcomeFailed means nothing was persisted by this run.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports one processing run. Complete is false when the artifact was
// persisted with untranslated segments and a later retranslation pass is
// expected to finish the job.
type Result struct {
	LessonID     string
	Outcome      Outcome
	ArtifactPath string
	Complete     bool
	Err          error
}

// Augmenter translates and keyword-tags one batch of segments. All or
// nothing per batch.
type Augmenter interface {
	Augment(ctx context.Context, sourceLanguage string, segments []lesson.Segment) ([]lesson.Segment, error)
}

// Options tunes batching and concurrency.
type Options struct {
	BatchSize        int // default batch.DefaultSize
	BatchConcurrency int // default 1, sequential batches
}

// Orchestrator owns the end-to-end flow for a single URL. Safe for
// concurrent use as long as distinct calls target distinct video ids; the
// job queue's dedupe key guarantees that.
type Orchestrator struct {
	downloader  acquire.Downloader
	engine      transcribe.Engine
	augmenter   Augmenter
	store       *store.Store
	opts        Options
	newOperator func(mediaPath string) media.Operator // test seam
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	downloader acquire.Downloader,
	engine transcribe.Engine,
	augmenter Augmenter,
	artifacts *store.Store,
	opts Options,
) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = batch.DefaultSize
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 1
	}
	return &Orchestrator{
		downloader:  downloader,
		engine:      engine,
		augmenter:   augmenter,
		store:       artifacts,
		opts:        opts,
		newOperator: media.NewOperator,
	}
}

// Process runs one URL to completion. Re-running with the same URL is safe:
// complete artifacts are skipped, incomplete ones get a retranslation pass,
// corrupt ones are reported and left untouched.
func (o *Orchestrator) Process(ctx context.Context, url string) Result {
	id, err := o.downloader.ResolveID(ctx, url)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	log.Info("Processing %s as lesson %s", url, id)

	if o.store.Exists(id) {
		doc, err := o.store.Load(id)
		if err != nil {
			return Result{LessonID: id, Outcome: OutcomeFailed, Err: err}
		}
		if doc.Complete() {
			log.Info("Lesson %s is already complete, skipping", id)
			return Result{
				LessonID:     id,
				Outcome:      OutcomeSkipped,
				ArtifactPath: o.store.Path(id),
				Complete:     true,
			}
		}
		return o.retranslate(ctx, id, doc)
	}

	return o.processFresh(ctx, id, url)
}

func (o *Orchestrator) processFresh(ctx context.Context, id, url string) Result {
	failed := func(err error) Result {
		return Result{LessonID: id, Outcome: OutcomeFailed, Err: err}
	}

	info, err := o.downloader.Fetch(ctx, url)
	if err != nil {
		return failed(err)
	}
	defer o.cleanupTemp(info.MediaPath)

	op := o.newOperator(info.MediaPath)

	wavPath, err := op.ExtractWAV(ctx)
	if err != nil {
		return failed(err)
	}
	defer o.cleanupTemp(wavPath)

	mp3Path, err := op.ExtractMP3(ctx)
	if err != nil {
		return failed(err)
	}
	defer o.cleanupTemp(mp3Path)

	transcript, err := o.engine.Transcribe(ctx, wavPath)
	if err != nil {
		return failed(fmt.Errorf("transcription failed for %s: %w", id, err))
	}
	if len(transcript) == 0 {
		return failed(fmt.Errorf("transcription of %s produced no segments", id))
	}

	segments := segmentsFromTranscript(transcript)
	sourceLanguage := detectLanguage(segments)
	log.Info("Transcribed %s: %d segments, detected language %q", id, len(segments), sourceLanguage)

	augmented, augErr := o.augmentAll(ctx, sourceLanguage, segments)
	if augErr != nil {
		// The raw transcript still gets persisted so a later retranslation
		// pass can pick up where this run stopped.
		log.Warn("Augmentation of %s failed, persisting untranslated transcript: %v", id, augErr)
		augmented = segments
	}

	duration := info.DurationSeconds
	if duration == 0 {
		if probed, err := op.ProbeDuration(ctx); err == nil {
			duration = probed
		}
	}

	doc, err := o.persistFresh(id, url, info, mp3Path, duration, sourceLanguage, augmented)
	if err != nil {
		return failed(err)
	}

	return Result{
		LessonID:     id,
		Outcome:      OutcomeDone,
		ArtifactPath: o.store.Path(id),
		Complete:     doc.Complete(),
		Err:          augErr,
	}
}

func (o *Orchestrator) persistFresh(
	id, url string,
	info *acquire.VideoInfo,
	mp3Path string,
	duration float64,
	sourceLanguage string,
	segments []lesson.Segment,
) (*lesson.Document, error) {
	mediaName := id + filepath.Ext(info.MediaPath)
	if _, err := o.store.CopyMedia(info.MediaPath, mediaName); err != nil {
		return nil, err
	}

	audioName := id + ".mp3"
	audioPath, err := o.store.CopyMedia(mp3Path, audioName)
	if err != nil {
		return nil, err
	}

	audioSize, err := store.AudioSizeMB(audioPath)
	if err != nil {
		return nil, err
	}

	doc := &lesson.Document{
		LessonID:        id,
		Title:           info.Title,
		SourceURL:       url,
		MediaFilename:   mediaName,
		AudioFilename:   audioName,
		AudioSizeMB:     audioSize,
		DurationSeconds: duration,
		SourceLanguage:  sourceLanguage,
		Segments:        segments,
	}
	if err := o.store.Write(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// retranslate reruns augmentation for the untranslated segments of an
// existing artifact. On failure the artifact is left exactly as it was.
func (o *Orchestrator) retranslate(ctx context.Context, id string, doc *lesson.Document) Result {
	pending := make([]lesson.Segment, 0)
	for _, seg := range doc.Segments {
		if !seg.Translated() {
			pending = append(pending, seg)
		}
	}
	log.Info("Retranslating lesson %s: %d of %d segments pending", id, len(pending), len(doc.Segments))

	augmented, err := o.augmentAll(ctx, doc.SourceLanguage, pending)
	if err != nil {
		return Result{LessonID: id, Outcome: OutcomeFailed, Err: err}
	}

	byID := make(map[int]lesson.Segment, len(augmented))
	for _, seg := range augmented {
		byID[seg.ID] = seg
	}
	merged := make([]lesson.Segment, len(doc.Segments))
	for i, seg := range doc.Segments {
		if fresh, ok := byID[seg.ID]; ok {
			merged[i] = fresh
		} else {
			merged[i] = seg
		}
	}

	if err := o.store.ReplaceSegments(id, merged); err != nil {
		return Result{LessonID: id, Outcome: OutcomeFailed, Err: err}
	}

	doc.Segments = merged
	return Result{
		LessonID:     id,
		Outcome:      OutcomeDone,
		ArtifactPath: o.store.Path(id),
		Complete:     doc.Complete(),
	}
}

// augmentAll partitions segments, augments batches with bounded concurrency,
// and reassembles results in input order. Any batch failure fails the whole
// pass; no partial results escape.
func (o *Orchestrator) augmentAll(ctx context.Context, sourceLanguage string, segments []lesson.Segment) ([]lesson.Segment, error) {
	batches, err := batch.Plan(segments, o.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}

	results := make([][]lesson.Segment, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.BatchConcurrency)

	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			augmented, err := o.augmenter.Augment(gctx, sourceLanguage, b)
			if err != nil {
				return fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			}
			results[i] = augmented
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]lesson.Segment, 0, len(segments))
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

// segmentsFromTranscript converts recognizer output into lesson segments
// with positional ids and the untranslated marker.
func segmentsFromTranscript(transcript []transcribe.Segment) []lesson.Segment {
	segments := make([]lesson.Segment, 0, len(transcript))
	for i, seg := range transcript {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		words := make([]lesson.Word, 0, len(seg.Words))
		for _, w := range seg.Words {
			words = append(words, lesson.Word{
				Text:  strings.TrimSpace(w.Text),
				Start: w.Start,
				End:   w.End,
			})
		}
		segments = append(segments, lesson.Segment{
			ID:         i,
			StartTime:  seg.Start,
			EndTime:    seg.End,
			TextSource: text,
			TextTarget: lesson.Untranslated,
			Words:      words,
		})
	}
	// Reindex after dropping empty segments so ids stay positional.
	for i := range segments {
		segments[i].ID = i
	}
	return segments
}

// detectLanguage samples the transcript text and returns the English name of
// the detected language, or empty when detection is unreliable.
func detectLanguage(segments []lesson.Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		sb.WriteString(seg.TextSource)
		sb.WriteString(" ")
		if sb.Len() > 2000 {
			break
		}
	}

	info := whatlanggo.Detect(sb.String())
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.String()
}

func (o *Orchestrator) cleanupTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove temp file %s: %v", path, err)
	}
}
