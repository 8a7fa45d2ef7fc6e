package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	VAD           VADConfig           `yaml:"vad"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Sentence      SentenceConfig      `yaml:"sentence"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Archive       ArchiveConfig       `yaml:"archive"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// CaptureConfig contains audio capture parameters
type CaptureConfig struct {
	FFmpegPath  string  `yaml:"ffmpeg_path"`
	SampleRate  int     `yaml:"sample_rate"`
	Channels    int     `yaml:"channels"`
	ChunkMs     int     `yaml:"chunk_ms"`     // read chunk size in milliseconds
	ReadTimeout float64 `yaml:"read_timeout"` // seconds
	StopGrace   float64 `yaml:"stop_grace"`   // seconds before forced kill
}

// VADConfig contains voice activity detection configuration
type VADConfig struct {
	FrameMs           int     `yaml:"frame_ms"` // 10, 20 or 30
	EnergyThreshold   float64 `yaml:"energy_threshold"`
	DetectorThreshold float32 `yaml:"detector_threshold"`
}

// SegmenterConfig contains speech segment assembly parameters
type SegmenterConfig struct {
	MinSegmentDuration float64 `yaml:"min_segment_duration"` // seconds
	MaxSegmentDuration float64 `yaml:"max_segment_duration"` // seconds
	MinSpeechDuration  float64 `yaml:"min_speech_duration"`  // seconds
	MaxSilenceDuration float64 `yaml:"max_silence_duration"` // seconds
	QueueCapacity      int     `yaml:"queue_capacity"`
}

// SentenceConfig contains sentence aggregation and dedup parameters
type SentenceConfig struct {
	MaxBufferRunes int     `yaml:"max_buffer_runes"`
	MinBreakOffset int     `yaml:"min_break_offset"`
	DedupWindow    int     `yaml:"dedup_window"`
	DedupThreshold float64 `yaml:"dedup_threshold"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	UploadFormat  string `yaml:"upload_format"` // "wav" or "raw"
}

// ArchiveConfig contains the transcript archive configuration
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Sentence.Validate(); err != nil {
		return fmt.Errorf("sentence config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Archive.Validate(); err != nil {
		return fmt.Errorf("archive config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (cc *CaptureConfig) Validate() error {
	if cc.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if cc.SampleRate != 8000 && cc.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 8000 or 16000 Hz, got %d", cc.SampleRate)
	}

	if cc.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", cc.Channels)
	}

	if cc.ChunkMs < 100 || cc.ChunkMs > 2000 {
		return fmt.Errorf("chunk_ms must be between 100 and 2000, got %d", cc.ChunkMs)
	}

	if cc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got %f", cc.ReadTimeout)
	}

	if cc.StopGrace <= 0 {
		return fmt.Errorf("stop_grace must be positive, got %f", cc.StopGrace)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	switch v.FrameMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("frame_ms must be 10, 20 or 30, got %d", v.FrameMs)
	}

	if v.EnergyThreshold <= 0 {
		return fmt.Errorf("energy_threshold must be positive, got %f", v.EnergyThreshold)
	}

	if v.DetectorThreshold < 0 || v.DetectorThreshold > 1 {
		return fmt.Errorf("detector_threshold must be between 0 and 1, got %f", v.DetectorThreshold)
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if s.MinSegmentDuration <= 0 {
		return fmt.Errorf("min_segment_duration must be positive, got %f", s.MinSegmentDuration)
	}

	if s.MaxSegmentDuration <= s.MinSegmentDuration {
		return fmt.Errorf("max_segment_duration (%f) must be greater than min_segment_duration (%f)",
			s.MaxSegmentDuration, s.MinSegmentDuration)
	}

	if s.MinSpeechDuration <= 0 {
		return fmt.Errorf("min_speech_duration must be positive, got %f", s.MinSpeechDuration)
	}

	if s.MaxSilenceDuration <= 0 {
		return fmt.Errorf("max_silence_duration must be positive, got %f", s.MaxSilenceDuration)
	}

	if s.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", s.QueueCapacity)
	}

	return nil
}

// Validate validates sentence configuration
func (s *SentenceConfig) Validate() error {
	if s.MaxBufferRunes < 20 {
		return fmt.Errorf("max_buffer_runes must be at least 20, got %d", s.MaxBufferRunes)
	}

	if s.MinBreakOffset < 0 || s.MinBreakOffset >= s.MaxBufferRunes {
		return fmt.Errorf("min_break_offset must be in [0, max_buffer_runes), got %d", s.MinBreakOffset)
	}

	if s.DedupWindow < 1 {
		return fmt.Errorf("dedup_window must be at least 1, got %d", s.DedupWindow)
	}

	if s.DedupThreshold <= 0 || s.DedupThreshold > 1 {
		return fmt.Errorf("dedup_threshold must be in (0, 1], got %f", s.DedupThreshold)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	validFormats := map[string]bool{"wav": true, "raw": true}
	if !validFormats[t.UploadFormat] {
		return fmt.Errorf("upload_format must be 'wav' or 'raw', got '%s'", t.UploadFormat)
	}

	return nil
}

// Validate validates archive configuration
func (a *ArchiveConfig) Validate() error {
	if a.Enabled && a.Path == "" {
		return fmt.Errorf("path cannot be empty when archive is enabled")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the capture read timeout as a time.Duration
func (cc *CaptureConfig) GetReadTimeout() time.Duration {
	return time.Duration(cc.ReadTimeout * float64(time.Second))
}

// GetStopGrace returns the capture stop grace period as a time.Duration
func (cc *CaptureConfig) GetStopGrace() time.Duration {
	return time.Duration(cc.StopGrace * float64(time.Second))
}

// GetChunkDuration returns the capture read chunk size as a time.Duration
func (cc *CaptureConfig) GetChunkDuration() time.Duration {
	return time.Duration(cc.ChunkMs) * time.Millisecond
}

// ChunkBytes returns the byte length of one capture read chunk
func (cc *CaptureConfig) ChunkBytes() int {
	return cc.SampleRate * cc.ChunkMs / 1000 * 2 // 16-bit mono
}

// GetFrameDuration returns the VAD frame duration as a time.Duration
func (v *VADConfig) GetFrameDuration() time.Duration {
	return time.Duration(v.FrameMs) * time.Millisecond
}

// FrameBytes returns the exact byte length of one VAD frame at the given sample rate
func (v *VADConfig) FrameBytes(sampleRate int) int {
	return sampleRate * v.FrameMs / 1000 * 2 // 16-bit mono
}

// GetMinSegmentDuration returns the minimum segment duration as a time.Duration
func (s *SegmenterConfig) GetMinSegmentDuration() time.Duration {
	return time.Duration(s.MinSegmentDuration * float64(time.Second))
}

// GetMaxSegmentDuration returns the maximum segment duration as a time.Duration
func (s *SegmenterConfig) GetMaxSegmentDuration() time.Duration {
	return time.Duration(s.MaxSegmentDuration * float64(time.Second))
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (s *SegmenterConfig) GetMinSpeechDuration() time.Duration {
	return time.Duration(s.MinSpeechDuration * float64(time.Second))
}

// GetMaxSilenceDuration returns the maximum in-segment silence as a time.Duration
func (s *SegmenterConfig) GetMaxSilenceDuration() time.Duration {
	return time.Duration(s.MaxSilenceDuration * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
