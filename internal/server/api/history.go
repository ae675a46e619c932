package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/signvista/internal/store"
)

// maxHistoryLimit caps the limit query parameter.
const maxHistoryLimit = 500

// HistoryHandler serves the recognition log.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

type historyEntry struct {
	Word        string  `json:"word"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"`
	Module      string  `json:"module,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

type historyResponse struct {
	SessionID string         `json:"session_id,omitempty"`
	Entries   []historyEntry `json:"entries"`
}

func toHistory(recs []*store.Recognition) []historyEntry {
	out := make([]historyEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyEntry{
			Word:        rec.Word,
			DisplayName: rec.DisplayName,
			Confidence:  rec.Confidence,
			Module:      rec.Module,
			Timestamp:   rec.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// ServeHTTP handles GET and DELETE on /api/history.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	switch r.Method {
	case http.MethodGet:
		limit, err := queryInt(r, "limit", store.DefaultHistoryLimit)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(limit, maxHistoryLimit)

		recs, err := h.store.Recognitions().List(sessionID, limit)
		if err != nil {
			slog.Error("history: list failed", "session", sessionID, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to load history")
			return
		}
		writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Entries: toHistory(recs)})

	case http.MethodDelete:
		if sessionID == "" {
			writeError(w, http.StatusBadRequest, "session_id is required")
			return
		}
		n, err := h.store.Recognitions().DeleteSession(sessionID)
		if err != nil {
			slog.Error("history: delete failed", "session", sessionID, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to delete history")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
