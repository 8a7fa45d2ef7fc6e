package sentence

import (
	"strings"
	"sync"
)

// Default aggregator limits
const (
	DefaultMaxBufferRunes = 200
	DefaultMinBreakOffset = 20
)

// latinTerminators end a sentence in Latin-script languages
var latinTerminators = []rune{'.', '!', '?', '…'}

// cjkTerminators end a sentence in CJK languages
var cjkTerminators = []rune{'。', '！', '？', '．'}

// discourseMarkers are transition phrases used as secondary break points
// when the buffer overflows without a terminator
var discourseMarkers = []string{
	" and ", " but ", " so ", " then ", " because ", " however ", " also ",
	"それで", "でも", "だから", "しかし", "ところで", "然后", "但是", "所以",
}

// Config contains sentence aggregator configuration
type Config struct {
	MaxBufferRunes int // Buffer length that forces a secondary break
	MinBreakOffset int // Minimum rune offset for a secondary break point
}

// Aggregator accumulates transcribed text for one session and extracts
// complete sentences. Not safe for concurrent use by multiple goroutines
// except for SetLanguage.
type Aggregator struct {
	config Config
	buffer []rune

	mu       sync.RWMutex
	language string
}

// NewAggregator creates a sentence aggregator
func NewAggregator(config Config) *Aggregator {
	if config.MaxBufferRunes <= 0 {
		config.MaxBufferRunes = DefaultMaxBufferRunes
	}

	if config.MinBreakOffset <= 0 {
		config.MinBreakOffset = DefaultMinBreakOffset
	}

	return &Aggregator{
		config: config,
	}
}

// SetLanguage records the detected language, first write wins
func (a *Aggregator) SetLanguage(lang string) {
	if lang == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.language == "" {
		a.language = lang
	}
}

// Language returns the detected language, empty if not yet known
func (a *Aggregator) Language() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.language
}

// Append adds a transcribed fragment to the buffer and returns any
// complete sentences extracted from it, in order
func (a *Aggregator) Append(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if len(a.buffer) > 0 {
		a.buffer = append(a.buffer, ' ')
	}
	a.buffer = append(a.buffer, []rune(text)...)

	return a.extract()
}

// extract repeatedly cuts terminated sentences from the buffer, then
// applies a secondary break if the buffer is still over its limit
func (a *Aggregator) extract() []string {
	var sentences []string

	terminators := a.terminators()

	for {
		idx := a.firstTerminator(terminators)
		if idx < 0 {
			break
		}

		cut := strings.TrimSpace(string(a.buffer[:idx+1]))
		a.buffer = []rune(strings.TrimSpace(string(a.buffer[idx+1:])))

		if cut != "" {
			sentences = append(sentences, cut)
		}
	}

	if len(a.buffer) > a.config.MaxBufferRunes {
		if broken := a.secondaryBreak(); broken != "" {
			sentences = append(sentences, broken)
		}
	}

	return sentences
}

// firstTerminator returns the index of the first terminator rune in the
// buffer, or -1 if none is present
func (a *Aggregator) firstTerminator(terminators []rune) int {
	for i, r := range a.buffer {
		for _, t := range terminators {
			if r == t {
				return i
			}
		}
	}
	return -1
}

// secondaryBreak handles an overlong buffer with no terminator: cut after
// the last discourse marker found beyond the minimum offset, or hard-cut
// the whole buffer if no marker qualifies
func (a *Aggregator) secondaryBreak() string {
	text := string(a.buffer)

	bestEnd := -1
	for _, marker := range discourseMarkers {
		idx := strings.LastIndex(text, marker)
		if idx < 0 {
			continue
		}

		end := len([]rune(text[:idx+len(marker)]))
		if end >= a.config.MinBreakOffset && end > bestEnd {
			bestEnd = end
		}
	}

	if bestEnd < 0 {
		// Hard cut: emit everything and reset
		cut := strings.TrimSpace(text)
		a.buffer = nil
		return cut
	}

	cut := strings.TrimSpace(string(a.buffer[:bestEnd]))
	a.buffer = []rune(strings.TrimSpace(string(a.buffer[bestEnd:])))
	return cut
}

// terminators returns the terminator set for the detected language.
// Unknown language uses the union of both sets so buffered text never
// accumulates without bound while detection is pending.
func (a *Aggregator) terminators() []rune {
	switch a.Language() {
	case "ja", "zh", "ko", "japanese", "chinese", "korean":
		return cjkTerminators
	case "":
		combined := make([]rune, 0, len(latinTerminators)+len(cjkTerminators))
		combined = append(combined, latinTerminators...)
		combined = append(combined, cjkTerminators...)
		return combined
	default:
		return latinTerminators
	}
}

// Flush returns the buffered remainder as a final unterminated sentence
// and resets the buffer. Returns an empty string if nothing is buffered.
func (a *Aggregator) Flush() string {
	remainder := strings.TrimSpace(string(a.buffer))
	a.buffer = nil
	return remainder
}

// BufferLen returns the current buffer length in runes
func (a *Aggregator) BufferLen() int {
	return len(a.buffer)
}
