// Package transcribe defines the speech-recognition boundary of the
// pipeline and a remote Whisper HTTP engine implementing it.
package transcribe

import (
	"context"
)

// Word is a recognized word with its time span in seconds.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Segment is one time-aligned unit of recognized speech.
type Segment struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

// Engine is a pluggable speech-recognition backend.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) ([]Segment, error)
}
