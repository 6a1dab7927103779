package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/kweilin/lessonforge/internal/lesson"
)

func sampleDocument() *lesson.Document {
	return &lesson.Document{
		LessonID:        "abc123",
		Title:           "Sample Lecture",
		SourceURL:       "https://youtu.be/abc123",
		MediaFilename:   "abc123.mp4",
		AudioFilename:   "abc123.mp3",
		AudioSizeMB:     3.21,
		DurationSeconds: 212.5,
		SourceLanguage:  "English",
		Segments: []lesson.Segment{
			{
				ID:         0,
				StartTime:  0,
				EndTime:    2.5,
				TextSource: "Hello there.",
				TextTarget: "你好。",
				Keywords:   []string{"hello"},
				Words: []lesson.Word{
					{Text: "Hello", Start: 0, End: 1.2},
					{Text: "there.", Start: 1.3, End: 2.5},
				},
			},
			{
				ID:         1,
				StartTime:  2.5,
				EndTime:    4.0,
				TextSource: "General Kenobi.",
				TextTarget: lesson.Untranslated,
			},
		},
	}
}

func TestStore_WriteAndLoad(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "lessons"))
	require.NoError(t, err)

	doc := sampleDocument()
	require.NoError(t, s.Write(doc))
	assert.True(t, s.Exists("abc123"))

	got, err := s.Load("abc123")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestStore_WriteRejectsEmptyID(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	err = s.Write(&lesson.Document{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no lesson id")
}

func TestStore_ArtifactFieldNames(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Write(sampleDocument()))

	data, err := os.ReadFile(s.Path("abc123"))
	require.NoError(t, err)

	assert.True(t, gjson.GetBytes(data, "lesson_id").Exists())
	assert.True(t, gjson.GetBytes(data, "audio_only_size_mb").Exists())
	assert.True(t, gjson.GetBytes(data, "duration_seconds").Exists())
	assert.Equal(t, "Hello there.", gjson.GetBytes(data, "segments.0.text_source").String())
	assert.Equal(t, "你好。", gjson.GetBytes(data, "segments.0.text_target").String())
	assert.Equal(t, "Hello", gjson.GetBytes(data, "segments.0.words.0.text").String())
}

func TestStore_LoadMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load("nothing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_LoadCorrupt(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("bad"), []byte("{truncated"), 0644))

	_, err = s.Load("bad")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_ReplaceSegmentsPreservesForeignFields(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	// Artifact carries a field this codebase does not know about.
	raw := `{
		"lesson_id": "abc123",
		"title": "Sample Lecture",
		"annotations": {"reviewed_by": "editor-7"},
		"segments": [{"id": 0, "text_source": "old", "text_target": "[untranslated]"}]
	}`
	require.NoError(t, os.WriteFile(s.Path("abc123"), []byte(raw), 0644))

	fresh := []lesson.Segment{
		{ID: 0, TextSource: "old", TextTarget: "新翻譯", Keywords: []string{"kw"}},
	}
	require.NoError(t, s.ReplaceSegments("abc123", fresh))

	data, err := os.ReadFile(s.Path("abc123"))
	require.NoError(t, err)

	assert.Equal(t, "editor-7", gjson.GetBytes(data, "annotations.reviewed_by").String())
	assert.Equal(t, "Sample Lecture", gjson.GetBytes(data, "title").String())
	assert.Equal(t, "新翻譯", gjson.GetBytes(data, "segments.0.text_target").String())
	assert.True(t, json.Valid(data))
}

func TestStore_ReplaceSegmentsOnCorruptArtifact(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("bad"), []byte("]["), 0644))

	err = s.ReplaceSegments("bad", nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_CopyMedia(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "abc123.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video bytes"), 0644))

	dst, err := s.CopyMedia(src, "abc123.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "abc123.mp4"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))
}

func TestAudioSizeMB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.mp3")
	require.NoError(t, os.WriteFile(path, make([]byte, 1536*1024), 0644))

	size, err := AudioSizeMB(path)
	require.NoError(t, err)
	assert.Equal(t, 1.5, size)

	_, err = AudioSizeMB(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}
