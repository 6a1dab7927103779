// Package store persists lesson artifacts as one JSON document per video
// id, written atomically so readers never observe a partial file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/sjson"

	"github.com/kweilin/lessonforge/internal/lesson"
	"github.com/kweilin/lessonforge/pkg/file"
	"github.com/kweilin/lessonforge/pkg/log"
)

// ErrCorrupt means an artifact exists on disk but cannot be decoded. The
// caller decides whether to report or overwrite; the store never guesses.
var ErrCorrupt = errors.New("corrupt lesson artifact")

// Store reads and writes lesson artifacts under a single directory.
type Store struct {
	dir string
}

// NewStore creates the artifact directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the artifact path for a lesson id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Exists reports whether an artifact for id is present on disk.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Load reads and decodes the artifact for id. A missing artifact returns
// os.ErrNotExist; an undecodable one returns ErrCorrupt.
func (s *Store) Load(id string) (*lesson.Document, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, err
	}

	var doc lesson.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.Path(id), err)
	}
	return &doc, nil
}

// Write persists the document atomically under its lesson id.
func (s *Store) Write(doc *lesson.Document) error {
	if doc.LessonID == "" {
		return fmt.Errorf("document has no lesson id")
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lesson %s: %w", doc.LessonID, err)
	}

	if err := file.WriteAtomic(s.Path(doc.LessonID), data, 0644); err != nil {
		return fmt.Errorf("failed to write lesson %s: %w", doc.LessonID, err)
	}
	log.Info("Wrote lesson artifact %s (%d segments)", s.Path(doc.LessonID), len(doc.Segments))
	return nil
}

// ReplaceSegments swaps only the segments array of an existing artifact,
// leaving every other field of the stored JSON untouched. Fields written by
// other tooling survive the rewrite.
func (s *Store) ReplaceSegments(id string, segments []lesson.Segment) error {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("%w: %s", ErrCorrupt, s.Path(id))
	}

	patched, err := sjson.SetBytes(data, "segments", segments)
	if err != nil {
		return fmt.Errorf("failed to patch segments for %s: %w", id, err)
	}

	// Round-trip through MarshalIndent to keep artifacts uniformly formatted.
	var doc json.RawMessage = patched
	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		pretty = patched
	}

	if err := file.WriteAtomic(s.Path(id), pretty, 0644); err != nil {
		return fmt.Errorf("failed to write lesson %s: %w", id, err)
	}
	log.Info("Replaced segments of lesson %s (%d segments)", id, len(segments))
	return nil
}

// CopyMedia places a media file into the artifact directory under the given
// name and returns its final path.
func (s *Store) CopyMedia(srcPath, name string) (string, error) {
	dst := filepath.Join(s.dir, name)
	if err := file.Copy(srcPath, dst); err != nil {
		return "", fmt.Errorf("failed to copy media %s: %w", srcPath, err)
	}
	return dst, nil
}

// AudioSizeMB returns the size of a file in megabytes rounded to two
// decimal places.
func AudioSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	mb := float64(info.Size()) / (1024 * 1024)
	return float64(int(mb*100+0.5)) / 100, nil
}
