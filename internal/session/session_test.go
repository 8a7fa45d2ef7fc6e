package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/streamscribe/streamscribe/internal/audio"
	"github.com/streamscribe/streamscribe/internal/capture"
	"github.com/streamscribe/streamscribe/internal/sentence"
	"github.com/streamscribe/streamscribe/internal/transcript"
	"github.com/streamscribe/streamscribe/internal/transcription"
	"github.com/streamscribe/streamscribe/internal/vad"
)

const (
	testSampleRate = 16000
	testFrameMs    = 20
	testFrameBytes = testSampleRate * testFrameMs / 1000 * 2
)

// pcmFrames builds n frames of constant-amplitude 16-bit PCM
func pcmFrames(n int, amp int16) []byte {
	samples := n * testSampleRate * testFrameMs / 1000
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amp))
	}
	return buf
}

type stubEngine struct {
	mu      sync.Mutex
	calls   int
	results []func() (*transcription.Result, error)
}

func (e *stubEngine) Transcribe(_ context.Context, _ *audio.SpeechSegment, _ string) (*transcription.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.calls
	e.calls++

	if idx < len(e.results) {
		return e.results[idx]()
	}
	return &transcription.Result{Text: "Fallback text.", Language: "en"}, nil
}

func (e *stubEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type memorySink struct {
	mu        sync.Mutex
	sentences []transcript.Sentence
}

func (s *memorySink) Emit(_ context.Context, _ string, sentence transcript.Sentence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentences = append(s.sentences, sentence)
	return nil
}

func (s *memorySink) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.sentences))
	for i, sent := range s.sentences {
		out[i] = sent.Text
	}
	return out
}

func newTestSession(t *testing.T, id string, pcm []byte, engine transcription.Engine, sink transcript.Sink, opts ...func(*Deps)) *Session {
	t.Helper()

	assembler, err := audio.NewAssembler(audio.AssemblerConfig{
		FrameDuration: testFrameMs * time.Millisecond,
		MinSegment:    40 * time.Millisecond,
		MaxSegment:    5 * time.Second,
		MinSpeech:     60 * time.Millisecond,
		MaxSilence:    100 * time.Millisecond,
		SampleRate:    testSampleRate,
	})
	if err != nil {
		t.Fatalf("Failed to create assembler: %v", err)
	}

	classifier, err := vad.Select(nil, 0, vad.EnergyConfig{
		Threshold:  vad.DefaultEnergyThreshold,
		FrameBytes: testFrameBytes,
	})
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	deps := Deps{
		Source:      capture.NewReaderSource(bytes.NewReader(pcm), testFrameBytes*5),
		Classifier:  classifier,
		Assembler:   assembler,
		Queue:       audio.NewSegmentQueue(8),
		Engine:      engine,
		Aggregator:  sentence.NewAggregator(sentence.Config{}),
		Dedup:       sentence.NewDeduplicator(10, 0.8),
		Sink:        sink,
		Logger:      slog.Default(),
		FrameBytes:  testFrameBytes,
		ReadTimeout: 50 * time.Millisecond,
		PopTimeout:  50 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&deps)
	}

	s, err := New(id, "test stream", deps)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestSessionEndToEnd(t *testing.T) {
	// 20 speech frames, silence past the max-silence threshold, then EOF
	var pcm []byte
	pcm = append(pcm, pcmFrames(20, 2000)...)
	pcm = append(pcm, pcmFrames(10, 0)...)

	engine := &stubEngine{results: []func() (*transcription.Result, error){
		func() (*transcription.Result, error) {
			return &transcription.Result{Text: "Hello from the stream.", Language: "en"}, nil
		},
	}}
	sink := &memorySink{}

	s := newTestSession(t, "stream-1", pcm, engine, sink)

	if s.State() != StateCreated {
		t.Errorf("Expected Created state, got %v", s.State())
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return len(sink.texts()) >= 1 })

	s.Stop()

	if s.State() != StateStopped {
		t.Errorf("Expected Stopped state, got %v", s.State())
	}

	texts := sink.texts()
	if len(texts) != 1 || texts[0] != "Hello from the stream." {
		t.Errorf("Unexpected sink output: %v", texts)
	}

	info := s.GetInfo()
	if info.SegmentsTranscribed != 1 {
		t.Errorf("Expected 1 transcribed segment, got %d", info.SegmentsTranscribed)
	}

	if info.Language != "en" {
		t.Errorf("Expected detected language en, got %q", info.Language)
	}
}

func TestSessionSurvivesTranscriptionFailure(t *testing.T) {
	// Two speech bursts separated by enough silence to finalize twice
	var pcm []byte
	pcm = append(pcm, pcmFrames(10, 2000)...)
	pcm = append(pcm, pcmFrames(8, 0)...)
	pcm = append(pcm, pcmFrames(10, 2000)...)
	pcm = append(pcm, pcmFrames(8, 0)...)

	engine := &stubEngine{results: []func() (*transcription.Result, error){
		func() (*transcription.Result, error) {
			return nil, errors.New("engine unavailable")
		},
		func() (*transcription.Result, error) {
			return &transcription.Result{Text: "Second segment made it.", Language: "en"}, nil
		},
	}}
	sink := &memorySink{}

	s := newTestSession(t, "stream-2", pcm, engine, sink)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return engine.callCount() >= 2 })

	s.Stop()

	texts := sink.texts()
	if len(texts) != 1 || texts[0] != "Second segment made it." {
		t.Errorf("Unexpected sink output: %v", texts)
	}

	info := s.GetInfo()
	if info.SegmentsFailed != 1 {
		t.Errorf("Expected 1 failed segment, got %d", info.SegmentsFailed)
	}

	if info.SegmentsTranscribed != 1 {
		t.Errorf("Expected 1 transcribed segment, got %d", info.SegmentsTranscribed)
	}
}

func TestSessionFlushesRemainderOnStop(t *testing.T) {
	// Speech that ends at EOF without trailing silence: the assembler
	// flush must still deliver the segment, and the unterminated text
	// must be emitted as the final sentence
	pcm := pcmFrames(10, 2000)

	engine := &stubEngine{results: []func() (*transcription.Result, error){
		func() (*transcription.Result, error) {
			return &transcription.Result{Text: "no terminator here", Language: "en"}, nil
		},
	}}
	sink := &memorySink{}

	s := newTestSession(t, "stream-3", pcm, engine, sink)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	s.Stop()

	texts := sink.texts()
	if len(texts) != 1 || texts[0] != "no terminator here" {
		t.Errorf("Expected flushed remainder, got %v", texts)
	}
}

func TestSessionSelfStopsOnSourceEnd(t *testing.T) {
	var exited sync.WaitGroup
	exited.Add(1)

	var exitedID string
	s := newTestSession(t, "stream-eof", nil, &stubEngine{}, &memorySink{}, func(d *Deps) {
		d.OnExit = func(s *Session) {
			exitedID = s.ID
			exited.Done()
		}
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Empty source: the producer sees EOF immediately and the session
	// winds itself down without an explicit Stop
	exited.Wait()

	if exitedID != "stream-eof" {
		t.Errorf("Unexpected exit callback id: %q", exitedID)
	}

	waitFor(t, time.Second, func() bool { return s.State() == StateStopped })
}

func TestSessionDoubleStartFails(t *testing.T) {
	s := newTestSession(t, "stream-4", nil, &stubEngine{}, &memorySink{})

	if err := s.Start(); err != nil {
		t.Fatalf("First Start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); err == nil {
		t.Error("Second Start should fail")
	}
}

func TestNewSessionValidation(t *testing.T) {
	if _, err := New("", "title", Deps{}); err == nil {
		t.Error("Expected error for empty id")
	}

	if _, err := New("id", "title", Deps{}); err == nil {
		t.Error("Expected error for missing dependencies")
	}
}
