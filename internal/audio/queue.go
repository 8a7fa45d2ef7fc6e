package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Push after Close, and by Pop once the queue
// is closed and fully drained.
var ErrQueueClosed = errors.New("segment queue closed")

// SegmentQueue is a bounded FIFO hand-off between the capture path and the
// transcription path. Push blocks while the queue is full: speech/silence
// pacing makes the producer far slower than the consumer in steady state,
// and if transcription stalls completely the producer blocks rather than
// dropping audio. Pop returns (nil, nil) on timeout so the consumer can
// observe a stop request promptly.
type SegmentQueue struct {
	ch   chan *SpeechSegment
	done chan struct{}
	once sync.Once
}

// NewSegmentQueue creates a queue with the given capacity
func NewSegmentQueue(capacity int) *SegmentQueue {
	if capacity < 1 {
		capacity = 1
	}

	return &SegmentQueue{
		ch:   make(chan *SpeechSegment, capacity),
		done: make(chan struct{}),
	}
}

// Push enqueues a segment, blocking while the queue is full
func (q *SegmentQueue) Push(seg *SpeechSegment) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- seg:
		return nil
	case <-q.done:
		return ErrQueueClosed
	}
}

// Pop dequeues the next segment in arrival order. It returns (nil, nil)
// when the timeout expires with the queue empty, and ErrQueueClosed once
// the queue is closed and drained, so shutdown processes remaining
// segments instead of dropping them.
func (q *SegmentQueue) Pop(timeout time.Duration) (*SpeechSegment, error) {
	// Buffered segments are delivered even after Close
	select {
	case seg := <-q.ch:
		return seg, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case seg := <-q.ch:
		return seg, nil
	case <-q.done:
		select {
		case seg := <-q.ch:
			return seg, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-timer.C:
		return nil, nil
	}
}

// Close marks the queue closed. Buffered segments remain poppable.
func (q *SegmentQueue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Len returns the current queue depth
func (q *SegmentQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *SegmentQueue) Cap() int {
	return cap(q.ch)
}
