package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AssemblerState represents the current state of segment assembly
type AssemblerState int

const (
	StateIdle AssemblerState = iota
	StateAccumulating
)

// SpeechSegment is a finalized, contiguous span of audio handed to the
// transcription engine as one unit. Immutable once emitted by the assembler.
type SpeechSegment struct {
	ID         string        `json:"id"`
	Index      uint64        `json:"index"`
	PCM        []byte        `json:"-"`
	Start      time.Duration `json:"start"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate"`
}

// AssemblerConfig contains segment assembly parameters
type AssemblerConfig struct {
	FrameDuration time.Duration
	MinSegment    time.Duration // segments below this floor are discarded as noise
	MaxSegment    time.Duration
	MinSpeech     time.Duration
	MaxSilence    time.Duration
	SampleRate    int
}

// Assembler consumes frame decisions and emits finalized speech segments.
// It holds at most one open accumulation at any time. Durations are counted
// in frames rather than wall clock, so behavior is deterministic for any
// given frame sequence.
type Assembler struct {
	cfg AssemblerConfig

	state AssemblerState
	buf   []byte

	framesSeen    uint64 // session clock: all frames observed, speech or not
	segStartFrame uint64
	speechFrames  int
	silenceRun    int

	nextIndex         uint64
	segmentsEmitted   uint64
	segmentsDiscarded uint64

	mu sync.Mutex
}

// AssemblerStats is a snapshot of assembler counters
type AssemblerStats struct {
	State             string `json:"state"`
	SegmentsEmitted   uint64 `json:"segments_emitted"`
	SegmentsDiscarded uint64 `json:"segments_discarded"`
	OpenBytes         int    `json:"open_bytes"`
}

// NewAssembler creates a segment assembler
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.FrameDuration <= 0 {
		return nil, fmt.Errorf("frame duration must be positive, got %v", cfg.FrameDuration)
	}

	if cfg.MinSegment <= 0 {
		return nil, fmt.Errorf("min segment duration must be positive, got %v", cfg.MinSegment)
	}

	if cfg.MaxSegment <= cfg.MinSegment {
		return nil, fmt.Errorf("max segment duration (%v) must exceed min segment duration (%v)",
			cfg.MaxSegment, cfg.MinSegment)
	}

	if cfg.MinSpeech <= 0 || cfg.MaxSilence <= 0 {
		return nil, fmt.Errorf("min speech and max silence durations must be positive")
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	return &Assembler{cfg: cfg, state: StateIdle}, nil
}

// Process consumes one classified frame and returns a finalized segment when
// a finalize trigger fires, or nil otherwise. Frames are copied into the
// accumulation, so the caller may reuse the frame buffer.
func (a *Assembler) Process(frame []byte, speech bool) *SpeechSegment {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.framesSeen++

	switch a.state {
	case StateIdle:
		if !speech {
			return nil
		}
		// First speech frame opens a new accumulation
		a.state = StateAccumulating
		a.segStartFrame = a.framesSeen - 1
		a.buf = append(a.buf[:0], frame...)
		a.speechFrames = 1
		a.silenceRun = 0
		return nil

	case StateAccumulating:
		// Silence is retained inside the segment so word endings are not clipped
		a.buf = append(a.buf, frame...)
		if speech {
			a.speechFrames++
			a.silenceRun = 0
		} else {
			a.silenceRun++
		}
		return a.checkFinalize()
	}

	return nil
}

// checkFinalize applies the finalize triggers, first match wins.
// Caller holds the mutex.
func (a *Assembler) checkFinalize() *SpeechSegment {
	total := a.frames() * int(a.cfg.FrameDuration)
	speech := a.speechFrames * int(a.cfg.FrameDuration)
	silence := a.silenceRun * int(a.cfg.FrameDuration)

	// Silence-exhaustion: enough trailing silence and enough speech collected
	if time.Duration(silence) >= a.cfg.MaxSilence && time.Duration(speech) >= a.cfg.MinSpeech {
		return a.finalize()
	}

	// A silence run this long without minimum speech is noise, not a pause:
	// drop the accumulation instead of letting it grow unbounded
	if time.Duration(silence) >= a.cfg.MaxSilence {
		a.discard()
		return nil
	}

	// Timeout: cap segment growth on continuous uninterrupted speech
	if time.Duration(total) >= a.cfg.MaxSegment {
		return a.finalize()
	}

	return nil
}

// Flush force-finalizes the open accumulation, used at session stop.
// Returns nil when idle or when the accumulation is below the noise floor.
func (a *Assembler) Flush() *SpeechSegment {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAccumulating {
		return nil
	}

	return a.finalize()
}

// finalize emits the accumulated buffer as an immutable segment and resets
// to idle. Accumulations below the minimum duration floor are discarded.
// Caller holds the mutex.
func (a *Assembler) finalize() *SpeechSegment {
	duration := time.Duration(a.frames()) * a.cfg.FrameDuration
	if duration < a.cfg.MinSegment {
		a.discard()
		return nil
	}

	pcm := make([]byte, len(a.buf))
	copy(pcm, a.buf)

	seg := &SpeechSegment{
		ID:         uuid.NewString(),
		Index:      a.nextIndex,
		PCM:        pcm,
		Start:      time.Duration(a.segStartFrame) * a.cfg.FrameDuration,
		Duration:   duration,
		SampleRate: a.cfg.SampleRate,
	}

	a.nextIndex++
	a.segmentsEmitted++
	a.reset()

	return seg
}

// discard drops the open accumulation. Caller holds the mutex.
func (a *Assembler) discard() {
	a.segmentsDiscarded++
	a.reset()
}

// reset returns the assembler to idle. Caller holds the mutex.
func (a *Assembler) reset() {
	a.state = StateIdle
	a.buf = a.buf[:0]
	a.speechFrames = 0
	a.silenceRun = 0
	a.segStartFrame = 0
}

// frames returns the number of frames in the open accumulation.
// Caller holds the mutex.
func (a *Assembler) frames() int {
	frameBytes := a.cfg.SampleRate * int(a.cfg.FrameDuration/time.Millisecond) / 1000 * 2
	if frameBytes == 0 {
		return 0
	}
	return len(a.buf) / frameBytes
}

// State returns the current assembly state
func (a *Assembler) State() AssemblerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Stats returns a snapshot of assembler counters
func (a *Assembler) Stats() AssemblerStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stateStr := "idle"
	if a.state == StateAccumulating {
		stateStr = "accumulating"
	}

	return AssemblerStats{
		State:             stateStr,
		SegmentsEmitted:   a.segmentsEmitted,
		SegmentsDiscarded: a.segmentsDiscarded,
		OpenBytes:         len(a.buf),
	}
}
