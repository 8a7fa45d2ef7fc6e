package transcript

import (
	"context"
	"errors"
	"testing"
)

type recordingSink struct {
	sentences []Sentence
	err       error
}

func (r *recordingSink) Emit(_ context.Context, _ string, s Sentence) error {
	if r.err != nil {
		return r.err
	}
	r.sentences = append(r.sentences, s)
	return nil
}

func TestMultiSinkFanOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}

	multi := NewMultiSink(a, b)

	if err := multi.Emit(context.Background(), "s1", Sentence{Text: "hello"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if len(a.sentences) != 1 || len(b.sentences) != 1 {
		t.Errorf("Expected both sinks to receive the sentence: a=%d b=%d",
			len(a.sentences), len(b.sentences))
	}
}

func TestMultiSinkContinuesAfterError(t *testing.T) {
	failed := errors.New("sink down")
	a := &recordingSink{err: failed}
	b := &recordingSink{}

	multi := NewMultiSink(a, b)

	err := multi.Emit(context.Background(), "s1", Sentence{Text: "hello"})
	if !errors.Is(err, failed) {
		t.Errorf("Expected first error to be returned, got %v", err)
	}

	if len(b.sentences) != 1 {
		t.Error("Second sink should still receive the sentence after first fails")
	}
}
