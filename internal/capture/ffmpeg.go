package capture

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Default ffmpeg source parameters
const (
	DefaultStopGrace = 5 * time.Second
	DefaultChunkSize = 3200 // 100 ms at 16 kHz mono s16le
)

// FFmpegConfig configures an ffmpeg capture subprocess
type FFmpegConfig struct {
	FFmpegPath string // Binary path, defaults to "ffmpeg"
	Input      string // Stream URL or file path
	SampleRate int    // Output sample rate in Hz
	Channels   int    // Output channel count
	ChunkSize  int    // Chunk size in bytes delivered per Read
	StopGrace  time.Duration
}

// FFmpegSource runs ffmpeg as a subprocess and streams decoded s16le PCM
// from its stdout. The process is terminated with SIGTERM on stop, then
// killed after the grace period.
type FFmpegSource struct {
	config FFmpegConfig
	logger *slog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	chunks chan []byte

	stop     chan struct{}
	stopOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

// NewFFmpegSource creates an ffmpeg capture source
func NewFFmpegSource(config FFmpegConfig, logger *slog.Logger) *FFmpegSource {
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}

	if config.Channels <= 0 {
		config.Channels = 1
	}

	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}

	if config.StopGrace <= 0 {
		config.StopGrace = DefaultStopGrace
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &FFmpegSource{
		config: config,
		logger: logger,
		chunks: make(chan []byte, 4),
		stop:   make(chan struct{}),
	}
}

// Start launches the ffmpeg subprocess and the read pump
func (s *FFmpegSource) Start() error {
	// ffmpeg -i input -f s16le -acodec pcm_s16le -ac 1 -ar 16000 pipe:1
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", s.config.Input,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", fmt.Sprintf("%d", s.config.Channels),
		"-ar", fmt.Sprintf("%d", s.config.SampleRate),
		"pipe:1",
	}

	s.cmd = exec.Command(s.config.FFmpegPath, args...)

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	s.stdout = stdout

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s.logger.Info("Capture process started",
		"binary", s.config.FFmpegPath,
		"input", s.config.Input,
		"sample_rate", s.config.SampleRate,
		"pid", s.cmd.Process.Pid)

	go s.pump()

	return nil
}

// pump reads fixed-size chunks from ffmpeg stdout until EOF or stop
func (s *FFmpegSource) pump() {
	defer close(s.chunks)

	for {
		buf := make([]byte, s.config.ChunkSize)
		n, err := io.ReadFull(s.stdout, buf)

		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.stop:
				return
			}
		}

		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.logger.Warn("Capture read error", "error", err)
			}
			return
		}
	}
}

// Read returns the next PCM chunk, (nil, nil) if none arrived within the
// timeout, or io.EOF once the process has ended and the buffer drained
func (s *FFmpegSource) Read(timeout time.Duration) ([]byte, error) {
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

// Stop terminates the ffmpeg process: SIGTERM first, SIGKILL after the
// grace period. Safe to call more than once.
func (s *FFmpegSource) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process already gone, just reap it
		s.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.config.StopGrace):
		s.logger.Warn("Capture process did not exit in time, killing",
			"pid", s.cmd.Process.Pid)
		s.cmd.Process.Kill()
		<-done
	}

	return nil
}

// Wait blocks until the ffmpeg process exits and returns its exit error
func (s *FFmpegSource) Wait() error {
	if s.cmd == nil {
		return nil
	}

	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})

	return s.waitErr
}
