package transcript

import (
	"context"
	"log/slog"
	"time"
)

// Sentence is one finished unit of transcribed text
type Sentence struct {
	Text      string    `json:"text"`
	Language  string    `json:"language,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Sink accepts finished sentences for delivery. Delivery failures are
// logged by the caller, not retried.
type Sink interface {
	Emit(ctx context.Context, sessionID string, s Sentence) error
}

// LogSink writes sentences to the structured log
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs each sentence
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs the sentence
func (s *LogSink) Emit(_ context.Context, sessionID string, sentence Sentence) error {
	s.logger.Info("Sentence",
		"session_id", sessionID,
		"language", sentence.Language,
		"text", sentence.Text)
	return nil
}

// MultiSink fans a sentence out to several sinks. The first error is
// returned after all sinks have been attempted.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a fan-out sink
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Emit delivers the sentence to every sink
func (m *MultiSink) Emit(ctx context.Context, sessionID string, sentence Sentence) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Emit(ctx, sessionID, sentence); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
