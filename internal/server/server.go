// Package server exposes the recognition engine over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/observe"
	"github.com/ayusman/signvista/internal/server/api"
	"github.com/ayusman/signvista/internal/store"
	"github.com/ayusman/signvista/internal/vocab"
)

// Config holds the server collaborators. Only StaticDir is required to be
// meaningful on its own; the recognition routes are registered when Engine
// and Registry are set, and the history route when Store is set.
type Config struct {
	StaticDir string
	Registry  *config.Registry
	Engine    *inference.Engine
	Store     *store.Store
	Vocab     *vocab.Set

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the HTTP front end of the recognizer.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Metrics == nil {
		config.Metrics = observe.DefaultMetrics()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = observe.Middleware(config.Metrics)(s.mux)
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/metrics", observe.Handler())

	if s.config.Engine != nil && s.config.Registry != nil {
		s.mux.Handle("/api/recognize", api.NewRecognizeHandler(s.config.Engine, s.config.Registry, s.config.Store))
		s.mux.Handle("/api/recognize/ws", NewStreamHandler(s.config.Engine, s.config.Registry))

		sessions := api.NewSessionsHandler(s.config.Engine)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)

		modules := api.NewModulesHandler(s.config.Engine, s.config.Registry, s.config.Store)
		s.mux.Handle("/api/modules", modules)
		s.mux.Handle("/api/modules/", modules)
	}

	if s.config.Vocab != nil && s.config.Registry != nil {
		s.mux.Handle("/api/vocabulary", api.NewVocabularyHandler(s.config.Vocab, s.config.Registry))
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/history", api.NewHistoryHandler(s.config.Store))
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string                  `json:"status"`
	Uptime string                  `json:"uptime"`
	Engine *inference.EngineStatus `json:"engine,omitempty"`
}

// handleHealth reports "ok", or "degraded" when the configuration has
// problems or nothing is able to recognize a sign.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Engine != nil {
		st := s.config.Engine.Status()
		resp.Engine = &st
		if !st.ConfigurationValid || !canRecognize(st) {
			resp.Status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func canRecognize(st inference.EngineStatus) bool {
	for _, m := range st.Modules {
		if m.Enabled && m.Loaded {
			return true
		}
	}
	return st.FallbackToLegacy && st.LegacyAvailable
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
