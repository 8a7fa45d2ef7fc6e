package transcription

import (
	"context"

	"github.com/streamscribe/streamscribe/internal/audio"
)

// Result is the output of the transcription engine for one speech segment
type Result struct {
	Text     string          `json:"text"`
	Language string          `json:"language,omitempty"`
	Segments []SegmentTiming `json:"segments,omitempty"`
}

// SegmentTiming is a sub-segment of transcribed text with timing
type SegmentTiming struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Engine accepts a finite speech segment and returns its transcription.
// Implementations may be local or remote; latency and failure behavior are
// opaque to the pipeline.
type Engine interface {
	Transcribe(ctx context.Context, seg *audio.SpeechSegment, langHint string) (*Result, error)
}
