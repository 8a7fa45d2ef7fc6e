package sentence

import (
	"strings"
	"unicode"
)

// Default deduplicator parameters
const (
	DefaultDedupWindow    = 10
	DefaultDedupThreshold = 0.8
)

// Deduplicator suppresses near-duplicate sentences caused by overlapping
// segment boundaries. Candidates are compared against a bounded FIFO
// window of recently accepted sentences.
type Deduplicator struct {
	window    []string // Normalized recent sentences, oldest first
	capacity  int
	threshold float64

	accepted uint64
	rejected uint64
}

// DedupStats represents deduplicator statistics
type DedupStats struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// NewDeduplicator creates a deduplicator with the given window capacity
// and Jaccard similarity threshold
func NewDeduplicator(capacity int, threshold float64) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupWindow
	}

	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDedupThreshold
	}

	return &Deduplicator{
		window:    make([]string, 0, capacity),
		capacity:  capacity,
		threshold: threshold,
	}
}

// Accept reports whether the sentence should be emitted. Accepted
// sentences are recorded in the window, evicting the oldest entry when
// the window is full.
func (d *Deduplicator) Accept(text string) bool {
	normalized := normalize(text)
	if normalized == "" {
		d.rejected++
		return false
	}

	for _, recent := range d.window {
		if recent == normalized {
			d.rejected++
			return false
		}

		if jaccard(normalized, recent) > d.threshold {
			d.rejected++
			return false
		}
	}

	if len(d.window) >= d.capacity {
		d.window = d.window[1:]
	}
	d.window = append(d.window, normalized)

	d.accepted++
	return true
}

// Stats returns deduplicator statistics
func (d *Deduplicator) Stats() DedupStats {
	return DedupStats{
		Accepted: d.accepted,
		Rejected: d.rejected,
	}
}

// normalize lowercases, strips punctuation and collapses whitespace
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// Dropped
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// jaccard computes word-set Jaccard similarity of two normalized strings
func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(s) {
		set[word] = struct{}{}
	}
	return set
}
