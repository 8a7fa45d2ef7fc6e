// Package sentence assembles transcribed text fragments into complete
// sentences using language-aware boundary rules and suppresses
// near-duplicate output caused by overlapping segment boundaries.
package sentence
