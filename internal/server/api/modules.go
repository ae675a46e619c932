package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/store"
)

// ModulesHandler inspects and overrides the per-module configuration.
// Overrides are persisted when a store is configured, so they survive
// restarts and configuration reloads.
type ModulesHandler struct {
	engine   *inference.Engine
	registry *config.Registry
	store    *store.Store
}

// NewModulesHandler creates a ModulesHandler. st may be nil, in which case
// overrides only live until the next reload.
func NewModulesHandler(e *inference.Engine, reg *config.Registry, st *store.Store) *ModulesHandler {
	return &ModulesHandler{engine: e, registry: reg, store: st}
}

type updateModuleRequest struct {
	Enabled             *bool          `json:"enabled"`
	Priority            *int           `json:"priority"`
	ConfidenceThreshold *float64       `json:"confidence_threshold"`
	PreprocessingParams map[string]any `json:"preprocessing_params"`
}

type moduleResponse struct {
	Name   config.ModuleName   `json:"name"`
	Loaded bool                `json:"loaded"`
	Config config.ModuleConfig `json:"config"`
}

// ServeHTTP handles /api/modules and /api/modules/{name}.
func (h *ModulesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := pathID(r.URL.Path, "/api/modules")
	if name == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, h.engine.Status())
		return
	}

	module := config.ModuleName(name)
	if !module.IsValid() {
		writeError(w, http.StatusNotFound, "Module not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.describe(module))
	case http.MethodPut:
		h.update(w, r, module)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *ModulesHandler) describe(module config.ModuleName) moduleResponse {
	mc, _ := h.registry.Current().ModuleConfig(module)
	resp := moduleResponse{Name: module, Config: mc}
	for _, ms := range h.engine.Status().Modules {
		if ms.Name == module {
			resp.Loaded = ms.Loaded
		}
	}
	return resp
}

// update handles PUT /api/modules/{name}. Only the fields present in the
// body change; the result must pass validation before it is published.
func (h *ModulesHandler) update(w http.ResponseWriter, r *http.Request, module config.ModuleName) {
	var req updateModuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Enabled == nil && req.Priority == nil && req.ConfidenceThreshold == nil && len(req.PreprocessingParams) == 0 {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	override := &store.ModuleOverride{
		Module:              module,
		Enabled:             req.Enabled,
		Priority:            req.Priority,
		ConfidenceThreshold: req.ConfidenceThreshold,
		PreprocessingParams: req.PreprocessingParams,
	}

	candidate := h.registry.Current().Clone()
	store.ApplyOverrides(candidate, []*store.ModuleOverride{override})
	if problems := moduleProblems(config.Validate(candidate), module); len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid module configuration", Problems: problems})
		return
	}

	if h.store != nil {
		if err := h.store.Overrides().Upsert(override); err != nil {
			slog.Error("modules: persist override failed", "module", module, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to save override")
			return
		}
	}

	h.registry.Update(func(c *config.Config) {
		store.ApplyOverrides(c, []*store.ModuleOverride{override})
	})
	slog.Info("modules: override applied", "module", module)

	writeJSON(w, http.StatusOK, h.describe(module))
}

// moduleProblems keeps the validation problems that concern module.
func moduleProblems(problems []string, module config.ModuleName) []string {
	prefix := "modules." + string(module) + "."
	var out []string
	for _, p := range problems {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}
