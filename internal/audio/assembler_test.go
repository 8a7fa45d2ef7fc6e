package audio

import (
	"testing"
	"time"
)

func testAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		FrameDuration: 30 * time.Millisecond,
		MinSegment:    500 * time.Millisecond,
		MaxSegment:    10 * time.Second,
		MinSpeech:     300 * time.Millisecond,
		MaxSilence:    600 * time.Millisecond,
		SampleRate:    16000,
	}
}

// frame returns one 30ms PCM-16 frame at 16kHz (960 bytes)
func frame() []byte {
	return make([]byte, 960)
}

func TestNewAssemblerValidation(t *testing.T) {
	cfg := testAssemblerConfig()
	if _, err := NewAssembler(cfg); err != nil {
		t.Fatalf("NewAssembler failed for valid config: %v", err)
	}

	bad := cfg
	bad.FrameDuration = 0
	if _, err := NewAssembler(bad); err == nil {
		t.Error("Expected error for zero frame duration")
	}

	bad = cfg
	bad.MaxSegment = cfg.MinSegment
	if _, err := NewAssembler(bad); err == nil {
		t.Error("Expected error when max segment does not exceed min segment")
	}
}

func TestAssemblerIdleDiscardsSilence(t *testing.T) {
	a, err := NewAssembler(testAssemblerConfig())
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		if seg := a.Process(frame(), false); seg != nil {
			t.Fatalf("Silence while idle produced a segment at frame %d", i)
		}
	}

	if a.State() != StateIdle {
		t.Error("Assembler should remain idle on pure silence")
	}
}

func TestAssemblerSilenceExhaustionFinalize(t *testing.T) {
	a, err := NewAssembler(testAssemblerConfig())
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	// 30 speech frames = 900ms of speech, above MinSpeech and MinSegment
	speechFrames := 30
	for i := 0; i < speechFrames; i++ {
		if seg := a.Process(frame(), true); seg != nil {
			t.Fatalf("Unexpected finalize during speech at frame %d", i)
		}
	}

	// 600ms of silence = 20 frames triggers silence-exhaustion
	var seg *SpeechSegment
	for i := 0; i < 20; i++ {
		seg = a.Process(frame(), false)
		if seg != nil {
			break
		}
	}

	if seg == nil {
		t.Fatal("Expected segment after silence-exhaustion")
	}

	// Speech plus retained trailing silence
	wantFrames := speechFrames + 20
	wantDuration := time.Duration(wantFrames) * 30 * time.Millisecond
	if seg.Duration != wantDuration {
		t.Errorf("Expected duration %v, got %v", wantDuration, seg.Duration)
	}

	if len(seg.PCM) != wantFrames*960 {
		t.Errorf("Expected %d PCM bytes, got %d", wantFrames*960, len(seg.PCM))
	}

	if seg.Index != 0 {
		t.Errorf("Expected first segment index 0, got %d", seg.Index)
	}

	if seg.ID == "" {
		t.Error("Expected segment ID to be set")
	}

	if a.State() != StateIdle {
		t.Error("Assembler should be idle after finalize")
	}
}

func TestAssemblerTimeoutOnContinuousSpeech(t *testing.T) {
	cfg := testAssemblerConfig()
	cfg.MaxSegment = 1 * time.Second
	a, err := NewAssembler(cfg)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	// Continuous speech: timeout must fire with zero silence
	var seg *SpeechSegment
	var n int
	for n = 0; n < 100; n++ {
		seg = a.Process(frame(), true)
		if seg != nil {
			break
		}
	}

	if seg == nil {
		t.Fatal("Expected timeout finalize under continuous speech")
	}

	// 1s at 30ms per frame: finalize at frame 34 (1020ms), the first
	// frame where total duration reaches the cap
	if seg.Duration < cfg.MaxSegment {
		t.Errorf("Expected duration >= %v at timeout, got %v", cfg.MaxSegment, seg.Duration)
	}

	if seg.Duration > cfg.MaxSegment+30*time.Millisecond {
		t.Errorf("Timeout fired late: duration %v", seg.Duration)
	}
}

func TestAssemblerDiscardsBelowFloor(t *testing.T) {
	a, err := NewAssembler(testAssemblerConfig())
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	// 3 frames at 30ms = 90ms of speech, below the 500ms floor
	for i := 0; i < 3; i++ {
		a.Process(frame(), true)
	}

	if seg := a.Flush(); seg != nil {
		t.Errorf("Sub-floor accumulation must be discarded, got segment of %v", seg.Duration)
	}

	stats := a.Stats()
	if stats.SegmentsEmitted != 0 {
		t.Errorf("Expected 0 emitted segments, got %d", stats.SegmentsEmitted)
	}
	if stats.SegmentsDiscarded != 1 {
		t.Errorf("Expected 1 discarded segment, got %d", stats.SegmentsDiscarded)
	}
}

func TestAssemblerSingleOpenAccumulation(t *testing.T) {
	a, err := NewAssembler(testAssemblerConfig())
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	// Two speech bursts separated by silence: each finalize must fully
	// close the accumulation before the next one opens
	var segments []*SpeechSegment
	for burst := 0; burst < 2; burst++ {
		for i := 0; i < 30; i++ {
			if seg := a.Process(frame(), true); seg != nil {
				segments = append(segments, seg)
			}
		}
		for i := 0; i < 25; i++ {
			if seg := a.Process(frame(), false); seg != nil {
				segments = append(segments, seg)
			}
		}
	}

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments from 2 bursts, got %d", len(segments))
	}

	if segments[0].Index != 0 || segments[1].Index != 1 {
		t.Errorf("Expected strictly increasing indices 0,1, got %d,%d",
			segments[0].Index, segments[1].Index)
	}

	if segments[1].Start <= segments[0].Start {
		t.Errorf("Expected increasing start offsets, got %v then %v",
			segments[0].Start, segments[1].Start)
	}
}

func TestAssemblerSilenceRunResetBySpeech(t *testing.T) {
	a, err := NewAssembler(testAssemblerConfig())
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	// Speech, then a short pause (below MaxSilence), then more speech:
	// the pause must not finalize the segment
	for i := 0; i < 20; i++ {
		a.Process(frame(), true)
	}
	for i := 0; i < 10; i++ { // 300ms < 600ms MaxSilence
		if seg := a.Process(frame(), false); seg != nil {
			t.Fatal("Short pause must not finalize the segment")
		}
	}
	for i := 0; i < 10; i++ {
		if seg := a.Process(frame(), true); seg != nil {
			t.Fatal("Unexpected finalize while speech resumes")
		}
	}

	if a.State() != StateAccumulating {
		t.Error("Assembler should still be accumulating across a short pause")
	}
}

func TestAssemblerFlushEmitsRemainder(t *testing.T) {
	a, err := NewAssembler(testAssemblerConfig())
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	for i := 0; i < 25; i++ { // 750ms, above the floor
		a.Process(frame(), true)
	}

	seg := a.Flush()
	if seg == nil {
		t.Fatal("Expected Flush to emit the open accumulation")
	}

	if seg.Duration != 750*time.Millisecond {
		t.Errorf("Expected 750ms remainder, got %v", seg.Duration)
	}

	if again := a.Flush(); again != nil {
		t.Error("Second Flush must return nil")
	}
}
