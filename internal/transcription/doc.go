// Package transcription provides the transcription engine interface and its
// HTTP client implementation with retries, rate limiting and statistics.
package transcription
