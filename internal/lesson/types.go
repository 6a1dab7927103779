// Package lesson holds the canonical data shapes flowing through the
// transcript pipeline and persisted in lesson artifacts.
package lesson

// Untranslated is the reserved marker for Segment.TextTarget while no
// translation has succeeded. It is distinct from any real translation and
// is what makes an artifact eligible for a retranslation pass.
const Untranslated = "[untranslated]"

// MaxKeywords bounds the keyword list attached to a segment.
const MaxKeywords = 5

// Word is a single recognized word with its time span in seconds.
// Immutable once produced by transcription.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a time-bounded unit of transcript text. ID is the positional
// index within the document and is stable across re-runs.
type Segment struct {
	ID         int      `json:"id"`
	StartTime  float64  `json:"start_time"`
	EndTime    float64  `json:"end_time"`
	TextSource string   `json:"text_source"`
	TextTarget string   `json:"text_target"`
	Keywords   []string `json:"keywords"`
	Words      []Word   `json:"words"`
}

// Translated reports whether this segment carries a real translation.
func (s Segment) Translated() bool {
	return s.TextTarget != Untranslated
}

// Document is the persisted lesson artifact for one source video. Its
// existence and completeness decide whether the pipeline re-runs.
type Document struct {
	LessonID        string    `json:"lesson_id"`
	Title           string    `json:"title"`
	SourceURL       string    `json:"source_url"`
	MediaFilename   string    `json:"media_filename"`
	AudioFilename   string    `json:"audio_filename"`
	AudioSizeMB     float64   `json:"audio_only_size_mb"`
	DurationSeconds float64   `json:"duration_seconds"`
	SourceLanguage  string    `json:"source_language,omitempty"`
	Segments        []Segment `json:"segments"`
}

// Complete reports whether every segment has a real translation.
func (d Document) Complete() bool {
	for _, seg := range d.Segments {
		if !seg.Translated() {
			return false
		}
	}
	return true
}

// DedupeKeywords drops duplicates (keeping first occurrence) and clamps the
// list to MaxKeywords.
func DedupeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return keywords
	}
	seen := make(map[string]bool, len(keywords))
	ret := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		ret = append(ret, kw)
		if len(ret) == MaxKeywords {
			break
		}
	}
	return ret
}
