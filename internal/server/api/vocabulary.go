package api

import (
	"net/http"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/vocab"
)

// VocabularyHandler serves the unified vocabulary of every module.
type VocabularyHandler struct {
	set      *vocab.Set
	registry *config.Registry
}

// NewVocabularyHandler creates a VocabularyHandler.
func NewVocabularyHandler(set *vocab.Set, reg *config.Registry) *VocabularyHandler {
	return &VocabularyHandler{set: set, registry: reg}
}

type vocabularyResponse struct {
	Count int           `json:"count"`
	Words []vocab.Entry `json:"words"`
}

// ServeHTTP handles GET /api/vocabulary. A word shared by several modules
// is attributed to the one with the best priority.
func (h *VocabularyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	priorities := make(map[string]int)
	for name, p := range h.registry.Current().Priorities() {
		priorities[string(name)] = p
	}

	words := h.set.Unified(priorities)
	if words == nil {
		words = []vocab.Entry{}
	}
	writeJSON(w, http.StatusOK, vocabularyResponse{Count: len(words), Words: words})
}
