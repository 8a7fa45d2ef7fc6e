// Package session orchestrates one end-to-end transcription pipeline per
// audio stream and maintains the process-wide registry of active
// sessions.
package session
