// Package vad provides per-frame voice activity classification.
// It exposes a Classifier interface with a detector-backed implementation
// and an RMS energy fallback, selected once at construction time.
package vad
