package session

// DefaultHistorySize is the number of accepted words a History remembers.
const DefaultHistorySize = 3

// History remembers the most recent accepted words of one classifier.
type History struct {
	size  int
	words []string
}

// NewHistory returns an empty history of the given size.
func NewHistory(size int) *History {
	if size < 2 {
		size = DefaultHistorySize
	}
	return &History{size: size, words: make([]string, 0, size)}
}

// Push records word, forgetting the oldest entry when full.
func (h *History) Push(word string) {
	if len(h.words) >= h.size {
		copy(h.words, h.words[1:])
		h.words = h.words[:h.size-1]
	}
	h.words = append(h.words, word)
}

// Stable reports whether the two most recent words agree. A history with
// fewer than two words is stable.
func (h *History) Stable() bool {
	n := len(h.words)
	return n < 2 || h.words[n-1] == h.words[n-2]
}

// Words returns a copy of the remembered words, oldest first.
func (h *History) Words() []string {
	return append([]string(nil), h.words...)
}

// Reset forgets every word.
func (h *History) Reset() {
	h.words = h.words[:0]
}
