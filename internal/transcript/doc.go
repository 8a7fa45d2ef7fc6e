// Package transcript delivers finished sentences to output sinks:
// structured logs and an optional SQLite archive.
package transcript
