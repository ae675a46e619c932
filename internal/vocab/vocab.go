// Package vocab holds the per-module label tables that map a classifier's
// class index to a vocabulary word and its display form.
package vocab

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ayusman/signvista/internal/config"
)

// Unknown is the word reported for an out-of-range class index.
const Unknown = "unknown"

// LegacyKey names the legacy model's table in a [Set].
const LegacyKey = "legacy"

// A cases.Caser keeps state between calls, so each goroutine borrows its own.
var titleCasers = sync.Pool{
	New: func() any {
		c := cases.Title(language.English)
		return &c
	},
}

// Table maps class indices of one classifier to words.
type Table struct {
	words   []string
	display map[string]string
}

// NewTable creates a Table for words. display may override the display name
// of individual words; the rest are derived from the word itself.
func NewTable(words []string, display map[string]string) *Table {
	t := &Table{
		words:   append([]string(nil), words...),
		display: make(map[string]string, len(display)),
	}
	for k, v := range display {
		t.display[k] = v
	}
	return t
}

// Len returns the number of classes.
func (t *Table) Len() int {
	return len(t.words)
}

// Word returns the word for class index i, or [Unknown] when i is out of range.
func (t *Table) Word(i int) string {
	if i < 0 || i >= len(t.words) {
		return Unknown
	}
	return t.words[i]
}

// Index returns the class index of word, or -1.
func (t *Table) Index(word string) int {
	for i, w := range t.words {
		if w == word {
			return i
		}
	}
	return -1
}

// DisplayName returns the human-readable form of word.
func (t *Table) DisplayName(word string) string {
	if d, ok := t.display[word]; ok {
		return d
	}
	return DisplayName(word)
}

// Words returns a copy of the table's words in class order.
func (t *Table) Words() []string {
	return append([]string(nil), t.words...)
}

// DisplayName derives a display name from a word: underscores become spaces
// and each word is title-cased ("how_are_you" -> "How Are You").
func DisplayName(word string) string {
	c := titleCasers.Get().(*cases.Caser)
	defer titleCasers.Put(c)
	return c.String(strings.ReplaceAll(word, "_", " "))
}

// Entry is one word of the unified vocabulary.
type Entry struct {
	Word        string `json:"word"`
	DisplayName string `json:"display_name"`
	Module      string `json:"module"`
}

// Set holds the tables of every module. It is safe for concurrent use.
type Set struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{tables: make(map[string]*Table)}
}

// Register installs table under module, replacing any previous table.
func (s *Set) Register(module string, table *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[module] = table
}

// Table returns the table registered for module.
func (s *Set) Table(module string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[module]
	return t, ok
}

// Unified merges every module's vocabulary into one list without duplicate
// words. When two modules share a word, the module with the lower priority
// number owns it; modules missing from priorities rank last. The result is
// sorted by word.
func (s *Set) Unified(priorities map[string]int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	modules := make([]string, 0, len(s.tables))
	for m := range s.tables {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		pi, pj := rank(priorities, modules[i]), rank(priorities, modules[j])
		if pi != pj {
			return pi < pj
		}
		return modules[i] < modules[j]
	})

	seen := make(map[string]bool)
	var out []Entry
	for _, m := range modules {
		t := s.tables[m]
		for _, w := range t.words {
			if seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, Entry{Word: w, DisplayName: t.DisplayName(w), Module: m})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out
}

func rank(priorities map[string]int, module string) int {
	if p, ok := priorities[module]; ok {
		return p
	}
	return 999
}

// Default returns a Set holding the built-in tables of the three modules and
// the legacy model.
func Default() *Set {
	s := NewSet()
	s.Register(string(config.ModuleDetection), NewTable(detectionWords(), nil))
	s.Register(string(config.ModuleRecognition), NewTable(
		[]string{"hello", "how_are_you", "thank_you"},
		map[string]string{"hello": "Hello", "how_are_you": "How Are You", "thank_you": "Thank You"},
	))
	s.Register(string(config.ModuleTranslation), NewTable(
		[]string{"G", "I", "K", "O", "P", "S", "U", "V", "X", "Y"}, nil,
	))
	s.Register(LegacyKey, NewTable([]string{
		"hello", "thank_you", "how_are_you", "help", "water",
		"food", "yes", "no", "good", "bad",
		"sorry", "please", "name", "family", "friend",
	}, nil))
	return s
}

// detectionWords returns the digits 1-9 followed by the letters A-Z.
func detectionWords() []string {
	words := make([]string, 0, 35)
	for d := '1'; d <= '9'; d++ {
		words = append(words, string(d))
	}
	for c := 'A'; c <= 'Z'; c++ {
		words = append(words, string(c))
	}
	return words
}
