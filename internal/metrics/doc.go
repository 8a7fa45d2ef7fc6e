// Package metrics defines Prometheus metrics for the transcription
// pipeline.
package metrics
