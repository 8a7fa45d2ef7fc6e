// Package audio implements speech segment assembly and hand-off.
// It turns per-frame voice activity decisions into finalized speech
// segments, provides the bounded queue between capture and transcription,
// and handles PCM conversion and WAV encoding.
package audio
