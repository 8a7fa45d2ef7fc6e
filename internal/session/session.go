package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamscribe/streamscribe/internal/audio"
	"github.com/streamscribe/streamscribe/internal/capture"
	"github.com/streamscribe/streamscribe/internal/metrics"
	"github.com/streamscribe/streamscribe/internal/sentence"
	"github.com/streamscribe/streamscribe/internal/transcript"
	"github.com/streamscribe/streamscribe/internal/transcription"
	"github.com/streamscribe/streamscribe/internal/vad"
)

// State is a session lifecycle state
type State int32

// Session lifecycle states
const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Default loop timeouts
const (
	DefaultReadTimeout = time.Second
	DefaultPopTimeout  = time.Second
)

// Deps bundles the collaborators a session pipeline is wired from
type Deps struct {
	Source     capture.Source
	Classifier vad.Classifier
	Assembler  *audio.Assembler
	Queue      *audio.SegmentQueue
	Engine     transcription.Engine
	Aggregator *sentence.Aggregator
	Dedup      *sentence.Deduplicator
	Sink       transcript.Sink
	Metrics    *metrics.Metrics // Optional
	Logger     *slog.Logger

	// OnExit is invoked once, from a session goroutine, after both
	// pipeline loops have finished. Used to unregister sessions whose
	// capture source ended on its own. Optional.
	OnExit func(*Session)

	FrameBytes  int // Exact classified frame size in bytes
	ReadTimeout time.Duration
	PopTimeout  time.Duration
}

// Session runs one capture-to-sentence pipeline for a single stream.
// A producer goroutine reads, classifies and assembles audio; a single
// dispatcher goroutine transcribes segments in emission order and
// aggregates sentences.
type Session struct {
	ID        string
	Title     string
	StartTime time.Time

	deps   Deps
	logger *slog.Logger

	state   atomic.Int32
	running atomic.Bool

	wg       sync.WaitGroup
	stopOnce sync.Once

	// Pipeline statistics
	segmentsQueued      uint64
	segmentsTranscribed uint64
	segmentsFailed      uint64
	sentencesEmitted    uint64
	sentencesDuplicate  uint64
	mu                  sync.RWMutex
}

// Info is a point-in-time snapshot of a session for monitoring and APIs
type Info struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title,omitempty"`
	State               string        `json:"state"`
	Language            string        `json:"language,omitempty"`
	StartTime           time.Time     `json:"start_time"`
	Duration            time.Duration `json:"duration"`
	SegmentsQueued      uint64        `json:"segments_queued"`
	SegmentsTranscribed uint64        `json:"segments_transcribed"`
	SegmentsFailed      uint64        `json:"segments_failed"`
	SentencesEmitted    uint64        `json:"sentences_emitted"`
	SentencesDuplicate  uint64        `json:"sentences_duplicate"`
}

// New creates a session in the Created state
func New(id, title string, deps Deps) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	if deps.Source == nil || deps.Classifier == nil || deps.Assembler == nil ||
		deps.Queue == nil || deps.Engine == nil || deps.Aggregator == nil ||
		deps.Dedup == nil || deps.Sink == nil {
		return nil, fmt.Errorf("session %s: missing pipeline dependency", id)
	}

	if deps.FrameBytes <= 0 {
		return nil, fmt.Errorf("session %s: frame size must be positive", id)
	}

	if deps.ReadTimeout <= 0 {
		deps.ReadTimeout = DefaultReadTimeout
	}

	if deps.PopTimeout <= 0 {
		deps.PopTimeout = DefaultPopTimeout
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Session{
		ID:     id,
		Title:  title,
		deps:   deps,
		logger: deps.Logger.With(slog.String("session_id", id)),
	}
	s.state.Store(int32(StateCreated))

	return s, nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Start launches the capture source and the pipeline goroutines
func (s *Session) Start() error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return fmt.Errorf("session %s: already started", s.ID)
	}

	if err := s.deps.Source.Start(); err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("session %s: failed to start capture: %w", s.ID, err)
	}

	s.StartTime = time.Now()
	s.running.Store(true)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.producerLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.dispatcherLoop()
	}()

	go func() {
		s.wg.Wait()
		// Reap the capture process if the loops wound down on their own
		if err := s.deps.Source.Stop(); err != nil {
			s.logger.Warn("Error stopping capture source", slog.String("error", err.Error()))
		}
		s.state.Store(int32(StateStopped))
		if s.deps.OnExit != nil {
			s.deps.OnExit(s)
		}
	}()

	s.logger.Info("Session started", slog.String("title", s.Title))

	return nil
}

// Stop requests a cooperative shutdown and waits for both loops to
// finish, draining queued segments first. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		s.running.Store(false)

		if err := s.deps.Source.Stop(); err != nil {
			s.logger.Warn("Error stopping capture source", slog.String("error", err.Error()))
		}
	})

	s.wg.Wait()
	s.state.Store(int32(StateStopped))
}

// producerLoop reads audio chunks, classifies frames and assembles
// speech segments until the source ends or a stop is requested
func (s *Session) producerLoop() {
	defer s.deps.Queue.Close()

	s.logger.Debug("Producer loop started")

	// Partial frame bytes carried between chunks
	var remainder []byte

	for s.running.Load() {
		chunk, err := s.deps.Source.Read(s.deps.ReadTimeout)
		if err == io.EOF {
			s.logger.Info("Capture source ended")
			s.beginStop()
			break
		}
		if err != nil {
			s.logger.Warn("Capture read failed", slog.String("error", err.Error()))
			s.beginStop()
			break
		}
		if chunk == nil {
			// Read timeout, check the running flag again
			continue
		}

		// A failure on one chunk must not kill the session
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Panic while processing audio chunk", slog.Any("panic", r))
					remainder = nil
				}
			}()
			remainder = s.processChunk(append(remainder, chunk...))
		}()
	}

	// Flush the partially assembled segment so trailing speech is not lost
	if seg := s.deps.Assembler.Flush(); seg != nil {
		s.enqueue(seg)
	}

	s.logger.Debug("Producer loop stopped")
}

// processChunk splits buffered bytes into exact-size frames, classifies
// and assembles each, and returns the unconsumed partial tail. A frame
// that fails classification is logged and skipped, never fatal.
func (s *Session) processChunk(buf []byte) []byte {
	frameBytes := s.deps.FrameBytes

	for len(buf) >= frameBytes {
		frame := buf[:frameBytes]
		buf = buf[frameBytes:]

		speech, err := s.deps.Classifier.Classify(frame)
		if err != nil {
			s.logger.Warn("Frame classification failed", slog.String("error", err.Error()))
			continue
		}

		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordFrameClassified(speech, false)
		}

		if seg := s.deps.Assembler.Process(frame, speech); seg != nil {
			s.enqueue(seg)
		}
	}

	return buf
}

// enqueue hands a finalized segment to the dispatcher
func (s *Session) enqueue(seg *audio.SpeechSegment) {
	if err := s.deps.Queue.Push(seg); err != nil {
		s.logger.Warn("Failed to enqueue segment",
			slog.String("segment_id", seg.ID),
			slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.segmentsQueued++
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSegmentFinalized(seg.Duration.Seconds(), len(seg.PCM))
		s.deps.Metrics.SetQueueDepth(s.deps.Queue.Len())
	}

	s.logger.Info("Speech segment queued",
		slog.String("segment_id", seg.ID),
		slog.Uint64("segment_index", seg.Index),
		slog.Float64("duration", seg.Duration.Seconds()),
		slog.Int("size_bytes", len(seg.PCM)))
}

// dispatcherLoop pops segments in emission order, transcribes them and
// feeds the results to sentence aggregation. It exits only once the
// queue is closed and drained, so queued segments survive a stop.
func (s *Session) dispatcherLoop() {
	s.logger.Debug("Dispatcher loop started")

	for {
		seg, err := s.deps.Queue.Pop(s.deps.PopTimeout)
		if err != nil {
			// Queue closed and drained
			break
		}
		if seg == nil {
			// Pop timeout
			continue
		}

		// A failure on one segment must not kill the session
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Panic while dispatching segment",
						slog.String("segment_id", seg.ID),
						slog.Any("panic", r))
				}
			}()
			s.dispatch(seg)
		}()

		if s.deps.Metrics != nil {
			s.deps.Metrics.SetQueueDepth(s.deps.Queue.Len())
		}
	}

	// Final unterminated sentence
	if remainder := s.deps.Aggregator.Flush(); remainder != "" {
		s.emit(remainder)
	}

	s.logger.Debug("Dispatcher loop stopped")
}

// dispatch transcribes one segment. A failed segment is logged and
// discarded, the session keeps running.
func (s *Session) dispatch(seg *audio.SpeechSegment) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTranscriptionRequest()
	}

	startTime := time.Now()
	result, err := s.deps.Engine.Transcribe(context.Background(), seg, s.deps.Aggregator.Language())
	elapsed := time.Since(startTime)

	if err != nil {
		s.mu.Lock()
		s.segmentsFailed++
		s.mu.Unlock()

		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordTranscriptionFailure(elapsed.Seconds())
		}

		s.logger.Error("Transcription failed, discarding segment",
			slog.String("segment_id", seg.ID),
			slog.Uint64("segment_index", seg.Index),
			slog.String("error", err.Error()),
			slog.Float64("duration", elapsed.Seconds()))
		return
	}

	s.mu.Lock()
	s.segmentsTranscribed++
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordTranscriptionSuccess(elapsed.Seconds())
	}

	s.logger.Info("Segment transcribed",
		slog.String("segment_id", seg.ID),
		slog.Uint64("segment_index", seg.Index),
		slog.String("language", result.Language),
		slog.Int("text_length", len(result.Text)),
		slog.Float64("duration", elapsed.Seconds()))

	s.deps.Aggregator.SetLanguage(result.Language)

	for _, text := range s.deps.Aggregator.Append(result.Text) {
		s.emit(text)
	}
}

// emit runs a sentence through deduplication and the output sink
func (s *Session) emit(text string) {
	if !s.deps.Dedup.Accept(text) {
		s.mu.Lock()
		s.sentencesDuplicate++
		s.mu.Unlock()

		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordSentenceDuplicate()
		}

		s.logger.Debug("Duplicate sentence suppressed", slog.String("text", text))
		return
	}

	out := transcript.Sentence{
		Text:      text,
		Language:  s.deps.Aggregator.Language(),
		EmittedAt: time.Now(),
	}

	if err := s.deps.Sink.Emit(context.Background(), s.ID, out); err != nil {
		s.logger.Error("Sentence delivery failed",
			slog.String("text", text),
			slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.sentencesEmitted++
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordSentenceEmitted()
	}
}

// beginStop flips the session into Stopping from inside a loop, used
// when the capture source ends on its own
func (s *Session) beginStop() {
	s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	s.running.Store(false)
}

// GetInfo returns a snapshot of the session
func (s *Session) GetInfo() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var duration time.Duration
	if !s.StartTime.IsZero() {
		duration = time.Since(s.StartTime)
	}

	return Info{
		ID:                  s.ID,
		Title:               s.Title,
		State:               s.State().String(),
		Language:            s.deps.Aggregator.Language(),
		StartTime:           s.StartTime,
		Duration:            duration,
		SegmentsQueued:      s.segmentsQueued,
		SegmentsTranscribed: s.segmentsTranscribed,
		SegmentsFailed:      s.segmentsFailed,
		SentencesEmitted:    s.sentencesEmitted,
		SentencesDuplicate:  s.sentencesDuplicate,
	}
}
