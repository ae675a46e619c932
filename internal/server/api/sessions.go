package api

import (
	"net/http"

	"github.com/ayusman/signvista/internal/inference"
)

// SessionsHandler exposes the live session state held by the engine.
type SessionsHandler struct {
	engine *inference.Engine
}

// NewSessionsHandler creates a SessionsHandler.
func NewSessionsHandler(e *inference.Engine) *SessionsHandler {
	return &SessionsHandler{engine: e}
}

// ServeHTTP handles GET /api/sessions and DELETE /api/sessions/{id}.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/sessions")

	switch {
	case id == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]int{"active": h.engine.Sessions().Len()})
	case id != "" && r.Method == http.MethodDelete:
		if !h.engine.DropSession(id) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
