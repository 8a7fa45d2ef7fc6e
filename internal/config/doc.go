// Package config handles service configuration loading and validation.
// It parses the YAML configuration file into typed sections and validates
// capture, VAD, segmenter, sentence, transcription and server parameters.
package config
