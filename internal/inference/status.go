package inference

import (
	"context"
	"log/slog"
	"time"

	"github.com/ayusman/signvista/internal/config"
)

// ModuleStatus is the state of one module as seen by the engine.
type ModuleStatus struct {
	Name                config.ModuleName `json:"name"`
	Enabled             bool              `json:"enabled"`
	Loaded              bool              `json:"loaded"`
	Priority            int               `json:"priority"`
	ConfidenceThreshold float64           `json:"confidence_threshold"`
}

// EngineStatus summarises the engine for health reporting.
type EngineStatus struct {
	Modules            []ModuleStatus  `json:"modules"`
	Strategy           config.Strategy `json:"prediction_strategy"`
	FallbackToLegacy   bool            `json:"fallback_to_legacy"`
	LegacyAvailable    bool            `json:"legacy_available"`
	ParallelExecution  bool            `json:"parallel_execution"`
	ActiveSessions     int             `json:"active_sessions"`
	ConfigurationValid bool            `json:"configuration_valid"`
	Problems           []string        `json:"problems,omitempty"`
}

// Status reports every module together with the current configuration.
func (e *Engine) Status() EngineStatus {
	cfg := e.registry.Current()
	problems := config.Validate(cfg)

	st := EngineStatus{
		Strategy:           cfg.PredictionStrategy(),
		FallbackToLegacy:   cfg.FallbackToLegacy(),
		LegacyAvailable:    e.legacy.available(),
		ParallelExecution:  cfg.Inference.ParallelExecution,
		ActiveSessions:     e.sessions.Len(),
		ConfigurationValid: len(problems) == 0,
		Problems:           problems,
	}
	for _, name := range config.ModuleNames {
		mc, _ := cfg.ModuleConfig(name)
		_, loaded := e.modules[name]
		st.Modules = append(st.Modules, ModuleStatus{
			Name:                name,
			Enabled:             mc.Enabled,
			Loaded:              loaded,
			Priority:            mc.Priority,
			ConfidenceThreshold: mc.ConfidenceThreshold,
		})
	}
	return st
}

// RunSweeper drops sessions idle for longer than inference.session_ttl,
// checking every interval until ctx is done. A zero TTL disables sweeping
// until the configuration sets one.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ttl := e.registry.Current().Inference.SessionTTL
			if dropped := e.sessions.Sweep(ttl); len(dropped) > 0 {
				slog.Info("dropped idle sessions", "count", len(dropped), "ttl", ttl)
			}
		}
	}
}
