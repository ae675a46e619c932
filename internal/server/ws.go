package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/server/api"
)

// writeWait bounds a single reply write.
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StreamHandler recognizes frames pushed over a WebSocket. Each connection
// is one session: binary messages carry encoded images, text messages carry
// base64 or data URI frames, and every frame is answered with one JSON
// result. Connections may share a session_id; the session state is dropped
// when the last of them closes.
type StreamHandler struct {
	engine   *inference.Engine
	registry *config.Registry

	mu   sync.Mutex
	open map[string]int
}

// NewStreamHandler creates a new StreamHandler over the engine.
func NewStreamHandler(e *inference.Engine, reg *config.Registry) *StreamHandler {
	return &StreamHandler{engine: e, registry: reg, open: make(map[string]int)}
}

func (h *StreamHandler) acquire(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open[sessionID]++
}

// release drops the session state once no connection uses it.
func (h *StreamHandler) release(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open[sessionID]--
	if h.open[sessionID] > 0 {
		return
	}
	delete(h.open, sessionID)
	h.engine.DropSession(sessionID)
}

// Connections returns how many open streams use the session.
func (h *StreamHandler) Connections(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open[sessionID]
}

type streamHello struct {
	SessionID string `json:"session_id"`
}

type streamError struct {
	Error string `json:"error"`
}

// ServeHTTP handles GET /api/recognize/ws?session_id=&details=.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	details := r.URL.Query().Get("details") == "true"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	h.acquire(sessionID)
	defer h.release(sessionID)

	if limit := h.registry.Current().Server.MaxFrameBytes; limit > 0 {
		// Text frames are base64, a third larger than the image.
		conn.SetReadLimit(int64(limit)*4/3 + 1024)
	}

	logger := slog.With("session", sessionID, "remote", r.RemoteAddr)
	logger.Info("stream: client connected")
	defer logger.Info("stream: client disconnected")

	if err := h.reply(conn, streamHello{SessionID: sessionID}); err != nil {
		return
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("stream: read failed", "err", err)
			}
			return
		}

		limits := h.registry.Current().Server
		var frame gocv.Mat
		switch kind {
		case websocket.BinaryMessage:
			frame, err = api.DecodeFrame(data, limits.MaxFrameBytes)
		case websocket.TextMessage:
			frame, err = api.DecodeBase64Frame(string(data), limits.MaxFrameBytes)
		default:
			continue
		}
		if err != nil {
			frame.Close()
			if werr := h.reply(conn, streamError{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}

		api.ResizeFrame(&frame, limits.FrameWidth)
		res := h.engine.Predict(r.Context(), sessionID, &frame, inference.Options{Diagnostics: details})
		frame.Close()

		if err := h.reply(conn, api.NewRecognizeResponse(sessionID, res)); err != nil {
			logger.Warn("stream: write failed", "err", err)
			return
		}
	}
}

func (h *StreamHandler) reply(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
