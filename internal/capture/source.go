package capture

import (
	"io"
	"sync"
	"time"
)

// Source produces a continuous stream of raw PCM audio chunks.
// Implementations must tolerate partial reads, stalls and abrupt
// termination of the underlying producer.
type Source interface {
	// Start begins producing audio. It must be called exactly once.
	Start() error

	// Read returns the next chunk of PCM bytes. It blocks for at most
	// the given timeout; on timeout it returns (nil, nil) so callers
	// can observe stop requests promptly. It returns io.EOF when the
	// source has ended and all buffered chunks are consumed.
	Read(timeout time.Duration) ([]byte, error)

	// Stop terminates the source. Safe to call more than once.
	Stop() error
}

// ReaderSource adapts an io.Reader into a Source. Used for replaying
// recorded PCM streams and in tests.
type ReaderSource struct {
	reader    io.Reader
	chunkSize int

	chunks chan []byte
	stop   chan struct{}
	once   sync.Once
}

// NewReaderSource creates a source that reads fixed-size chunks from r
func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = 3200
	}

	return &ReaderSource{
		reader:    r,
		chunkSize: chunkSize,
		chunks:    make(chan []byte, 4),
		stop:      make(chan struct{}),
	}
}

// Start launches the read pump
func (s *ReaderSource) Start() error {
	go s.pump()
	return nil
}

func (s *ReaderSource) pump() {
	defer close(s.chunks)

	for {
		buf := make([]byte, s.chunkSize)
		n, err := io.ReadFull(s.reader, buf)

		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.stop:
				return
			}
		}

		if err != nil {
			return
		}
	}
}

// Read returns the next chunk, (nil, nil) on timeout, io.EOF at end
func (s *ReaderSource) Read(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk, ok := <-s.chunks:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	case <-timer.C:
		return nil, nil
	}
}

// Stop terminates the pump
func (s *ReaderSource) Stop() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
