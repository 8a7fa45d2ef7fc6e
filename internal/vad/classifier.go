package vad

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrFrameSize is returned when a frame's byte length does not match the
// configured frame size. Short frames are not classifiable and must not
// be submitted.
var ErrFrameSize = errors.New("frame size mismatch")

// DefaultEnergyThreshold is the RMS threshold used for capture-time
// classification. SensitiveEnergyThreshold is a lower preset suited to a
// more sensitive post-hoc pass.
const (
	DefaultEnergyThreshold   = 500.0
	SensitiveEnergyThreshold = 200.0
)

// Classifier decides whether a single fixed-size audio frame contains speech.
// Classify must not block and must not retain the frame past the call.
type Classifier interface {
	Classify(frame []byte) (bool, error)
	Stats() Stats
}

// Detector is a pluggable voice activity model returning a speech
// probability in [0, 1] for one frame of little-endian PCM-16 samples.
type Detector interface {
	SpeechProbability(frame []byte) (float32, error)
}

// Stats is a snapshot of classifier counters
type Stats struct {
	FramesTotal  uint64  `json:"frames_total"`
	FramesSpeech uint64  `json:"frames_speech"`
	SpeechRatio  float64 `json:"speech_ratio"`
}

// EnergyConfig configures the energy fallback classifier
type EnergyConfig struct {
	FrameBytes int
	Threshold  float64
}

// EnergyClassifier classifies frames by RMS amplitude of the 16-bit samples
type EnergyClassifier struct {
	frameBytes int
	threshold  float64

	framesTotal  uint64
	framesSpeech uint64
	mu           sync.Mutex
}

// NewEnergyClassifier creates an RMS energy classifier
func NewEnergyClassifier(cfg EnergyConfig) (*EnergyClassifier, error) {
	if cfg.FrameBytes <= 0 || cfg.FrameBytes%2 != 0 {
		return nil, fmt.Errorf("frame bytes must be positive and even, got %d", cfg.FrameBytes)
	}

	if cfg.Threshold <= 0 {
		return nil, fmt.Errorf("threshold must be positive, got %f", cfg.Threshold)
	}

	return &EnergyClassifier{
		frameBytes: cfg.FrameBytes,
		threshold:  cfg.Threshold,
	}, nil
}

// Classify returns true when the frame's RMS amplitude exceeds the threshold
func (e *EnergyClassifier) Classify(frame []byte) (bool, error) {
	if len(frame) != e.frameBytes {
		return false, fmt.Errorf("%w: expected %d bytes, got %d", ErrFrameSize, e.frameBytes, len(frame))
	}

	speech := RMS(frame) >= e.threshold

	e.mu.Lock()
	e.framesTotal++
	if speech {
		e.framesSpeech++
	}
	e.mu.Unlock()

	return speech, nil
}

// Stats returns current classifier counters
func (e *EnergyClassifier) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.framesTotal, e.framesSpeech)
}

// DetectorClassifier wraps a pluggable voice activity detector. When the
// detector fails on a well-sized frame, the frame is classified by the
// energy fallback instead of being dropped.
type DetectorClassifier struct {
	detector  Detector
	threshold float32
	fallback  *EnergyClassifier

	framesTotal  uint64
	framesSpeech uint64
	mu           sync.Mutex
}

// NewDetectorClassifier creates a detector-backed classifier with an energy fallback
func NewDetectorClassifier(det Detector, threshold float32, fallback *EnergyClassifier) (*DetectorClassifier, error) {
	if det == nil {
		return nil, fmt.Errorf("detector cannot be nil")
	}

	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if fallback == nil {
		return nil, fmt.Errorf("fallback classifier cannot be nil")
	}

	return &DetectorClassifier{
		detector:  det,
		threshold: threshold,
		fallback:  fallback,
	}, nil
}

// Classify returns true when the detector's speech probability meets the threshold
func (d *DetectorClassifier) Classify(frame []byte) (bool, error) {
	if len(frame) != d.fallback.frameBytes {
		return false, fmt.Errorf("%w: expected %d bytes, got %d", ErrFrameSize, d.fallback.frameBytes, len(frame))
	}

	speech, err := d.classifyFrame(frame)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	d.framesTotal++
	if speech {
		d.framesSpeech++
	}
	d.mu.Unlock()

	return speech, nil
}

func (d *DetectorClassifier) classifyFrame(frame []byte) (bool, error) {
	prob, err := d.detector.SpeechProbability(frame)
	if err != nil {
		// The frame is well-sized, so a detector error degrades to the
		// energy heuristic rather than losing the frame.
		return d.fallback.Classify(frame)
	}

	return prob >= d.threshold, nil
}

// Stats returns current classifier counters
func (d *DetectorClassifier) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return snapshot(d.framesTotal, d.framesSpeech)
}

// Select chooses the classifier implementation once at construction time:
// detector-backed when a detector is available, energy-only otherwise.
func Select(det Detector, detectorThreshold float32, energyCfg EnergyConfig) (Classifier, error) {
	fallback, err := NewEnergyClassifier(energyCfg)
	if err != nil {
		return nil, err
	}

	if det == nil {
		return fallback, nil
	}

	return NewDetectorClassifier(det, detectorThreshold, fallback)
}

// RMS computes the root-mean-square amplitude of little-endian PCM-16 bytes
func RMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}

	var energy float64
	for i := 0; i < n; i++ {
		sample := float64(int16(frame[i*2]) | int16(frame[i*2+1])<<8)
		energy += sample * sample
	}

	return math.Sqrt(energy / float64(n))
}

func snapshot(total, speech uint64) Stats {
	ratio := float64(0)
	if total > 0 {
		ratio = float64(speech) / float64(total)
	}

	return Stats{
		FramesTotal:  total,
		FramesSpeech: speech,
		SpeechRatio:  ratio,
	}
}
