package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/store"
)

// recentHistory is the number of recognitions echoed back with a result.
const recentHistory = 10

// RecognizeHandler runs one recognition pass per posted frame.
type RecognizeHandler struct {
	engine   *inference.Engine
	registry *config.Registry
	store    *store.Store
}

// NewRecognizeHandler creates a RecognizeHandler. st may be nil, in which
// case responses carry no history.
func NewRecognizeHandler(e *inference.Engine, reg *config.Registry, st *store.Store) *RecognizeHandler {
	return &RecognizeHandler{engine: e, registry: reg, store: st}
}

type recognizeRequest struct {
	SessionID string `json:"session_id"`
	Frame     string `json:"frame"`
	Details   bool   `json:"details"`
}

// RecognizeResponse is the JSON body of a recognition answer, shared with
// the streaming endpoint.
type RecognizeResponse struct {
	inference.Result
	SessionID    string         `json:"session_id"`
	BufferStatus string         `json:"buffer_status"`
	History      []historyEntry `json:"history,omitempty"`
}

// NewRecognizeResponse wraps res for the wire.
func NewRecognizeResponse(sessionID string, res inference.Result) RecognizeResponse {
	res.Confidence = math.Round(res.Confidence*1000) / 1000
	return RecognizeResponse{
		Result:       res,
		SessionID:    sessionID,
		BufferStatus: res.Label(),
	}
}

// ServeHTTP handles POST /api/recognize.
func (h *RecognizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limits := h.registry.Current().Server
	// base64 grows the payload by a third; leave room for the JSON envelope.
	if limits.MaxFrameBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFrameBytes)*4/3+4096)
	}

	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Frame too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	frame, err := DecodeBase64Frame(req.Frame, limits.MaxFrameBytes)
	if err != nil {
		frame.Close()
		writeError(w, frameErrorStatus(err), err.Error())
		return
	}
	defer frame.Close()
	ResizeFrame(&frame, limits.FrameWidth)

	res := h.engine.Predict(r.Context(), req.SessionID, &frame, inference.Options{
		Diagnostics: req.Details || queryBool(r, "details"),
	})

	resp := NewRecognizeResponse(req.SessionID, res)
	if h.store != nil {
		recs, err := h.store.Recognitions().List(req.SessionID, recentHistory)
		if err != nil {
			slog.Warn("recognize: cannot load history", "session", req.SessionID, "err", err)
		}
		resp.History = toHistory(recs)
	}
	writeJSON(w, http.StatusOK, resp)
}

func frameErrorStatus(err error) int {
	if errors.Is(err, ErrFrameTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
