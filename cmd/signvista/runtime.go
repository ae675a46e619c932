package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/signvista/internal/classifier"
	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/detector"
	"github.com/ayusman/signvista/internal/inference"
	"github.com/ayusman/signvista/internal/model"
	"github.com/ayusman/signvista/internal/observe"
	"github.com/ayusman/signvista/internal/server"
	"github.com/ayusman/signvista/internal/store"
	"github.com/ayusman/signvista/internal/vocab"
)

// sweepInterval is how often idle sessions are checked against the TTL.
const sweepInterval = 30 * time.Second

// runtime holds everything the serve and camera commands share.
type runtime struct {
	registry *config.Registry
	store    *store.Store
	engine   *inference.Engine
	vocab    *vocab.Set
	metrics  *observe.Metrics
	watcher  *config.Watcher
	dataDir  string

	closers  []io.Closer
	shutdown func(context.Context) error
}

func newRuntime(ctx context.Context, opts *rootOptions) (*runtime, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	for _, p := range config.Validate(cfg) {
		slog.Warn("config problem", "problem", p)
	}

	rt := &runtime{vocab: vocab.Default()}

	rt.shutdown, err = observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		TraceStdout: opts.traceStdout || cfg.Telemetry.TraceStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	rt.metrics = observe.DefaultMetrics()

	rt.dataDir, err = dataDir(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store, err = store.New(filepath.Join(rt.dataDir, "signvista.db"))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt.closers = append(rt.closers, rt.store)

	if err := rt.applyOverrides(cfg); err != nil {
		slog.Warn("module overrides not applied", "err", err)
	}
	rt.registry = config.NewRegistry(cfg)

	modules, legacy, gate := rt.loadModels(cfg)
	rt.engine = inference.New(inference.Config{
		Registry: rt.registry,
		Modules:  modules,
		Legacy:   legacy,
		Gate:     gate,
		Metrics:  rt.metrics,
	})
	rt.engine.OnResult(rt.record)

	if opts.configPath != "" {
		rt.watcher, err = config.NewWatcher(opts.configPath, rt.reload)
		if err != nil {
			slog.Warn("config reload disabled", "path", opts.configPath, "err", err)
		}
	}
	return rt, nil
}

// reload publishes a changed config file with the environment and stored
// module overrides layered on top.
func (rt *runtime) reload(_, next *config.Config) {
	cfg := next.Clone()
	config.ApplyEnv(cfg)
	if err := rt.applyOverrides(cfg); err != nil {
		slog.Warn("module overrides not applied", "err", err)
	}
	rt.registry.Replace(cfg)
	slog.Info("configuration reloaded", "strategy", cfg.PredictionStrategy())
}

func (rt *runtime) applyOverrides(cfg *config.Config) error {
	overrides, err := rt.store.Overrides().List()
	if err != nil {
		return err
	}
	store.ApplyOverrides(cfg, overrides)
	return nil
}

// record appends a ready result to the recognition log.
func (rt *runtime) record(sessionID string, r inference.Result) {
	err := rt.store.Recognitions().Create(&store.Recognition{
		SessionID:   sessionID,
		Word:        r.Word,
		DisplayName: r.DisplayName,
		Confidence:  r.Confidence,
		Module:      string(r.Module),
	})
	if err != nil {
		slog.Warn("recording recognition", "session", sessionID, "err", err)
	}
}

// loadModels builds every module whose model loads. Models are loaded even
// for disabled modules so an override can switch them on at runtime.
func (rt *runtime) loadModels(cfg *config.Config) ([]classifier.Module, inference.Legacy, inference.SubjectGate) {
	loader := model.NewLoader()
	var modules []classifier.Module

	gate := detector.NewFaceGate(cfg.Detector.FaceCascade)
	rt.closers = append(rt.closers, gate)

	holistic, err := detector.NewHolisticDetector(detector.Config{
		Script:   cfg.Detector.Script,
		Python:   cfg.Detector.Python,
		MaxHands: cfg.Detector.MaxHands,
	})
	if err != nil {
		slog.Warn("landmark detector unavailable, landmark modules disabled", "err", err)
	} else {
		rt.closers = append(rt.closers, holistic)
	}

	load := func(name string, path string, shape []int, labels *vocab.Table) model.Model {
		m, err := loader.Initialize(model.Spec{Name: name, Path: path, InputShape: shape, Classes: labels.Len()})
		if err != nil {
			if errors.Is(err, model.ErrModelUnavailable) {
				slog.Warn("model not loaded", "model", name, "err", err)
			} else {
				slog.Error("model failed to load", "model", name, "err", err)
			}
			return nil
		}
		if c, ok := m.(io.Closer); ok {
			rt.closers = append(rt.closers, c)
		}
		return m
	}
	table := func(name string) *vocab.Table {
		t, _ := rt.vocab.Table(name)
		return t
	}

	if holistic != nil {
		mc := cfg.Modules.Detection
		labels := table(string(config.ModuleDetection))
		if m := load(string(config.ModuleDetection), mc.ModelPath, []int{1, 42}, labels); m != nil {
			modules = append(modules, classifier.NewSpatial(detector.NewHandExtractor(holistic), m, labels))
		}

		mc = cfg.Modules.Recognition
		labels = table(string(config.ModuleRecognition))
		shape := []int{1, mc.Int("buffer_size", 45), mc.Int("feature_count", 258)}
		if m := load(string(config.ModuleRecognition), mc.ModelPath, shape, labels); m != nil {
			modules = append(modules, classifier.NewTemporal(detector.NewKeypointExtractor(holistic), m, labels))
		}
	}

	mc := cfg.Modules.Translation
	yolo, err := detector.NewYOLODetector(detector.YOLOConfig{
		ConfigPath:   mc.String("yolo_config", ""),
		WeightsPath:  mc.String("yolo_weights", ""),
		Confidence:   mc.Float("yolo_confidence", 0.5),
		NMSThreshold: mc.Float("yolo_threshold", 0.3),
		Size:         mc.Int("yolo_size", 416),
	})
	if err != nil {
		slog.Warn("hand region detector unavailable, translation disabled", "err", err)
	} else {
		rt.closers = append(rt.closers, yolo)
		size := mc.Int("target_size", classifier.DefaultTargetSize)
		labels := table(string(config.ModuleTranslation))
		if m := load(string(config.ModuleTranslation), mc.ModelPath, []int{1, size, size, 3}, labels); m != nil {
			modules = append(modules, classifier.NewPipeline(yolo, m, labels))
		}
	}

	var legacy inference.Legacy
	if holistic != nil {
		lc := cfg.Legacy
		labels := table(vocab.LegacyKey)
		if m := load(vocab.LegacyKey, lc.ModelPath, []int{1, lc.BufferSize, lc.FeatureCount}, labels); m != nil {
			legacy = inference.Legacy{Extractor: detector.NewKeypointExtractor(holistic), Model: m, Labels: labels}
		}
	}

	slog.Info("models ready", "modules", len(modules), "legacy", legacy.Model != nil, "face_gate", gate.Loaded())
	return modules, legacy, gate
}

// newServer returns the HTTP server over the runtime.
func (rt *runtime) newServer(cfg *config.Config) *server.Server {
	static := cfg.Server.StaticDir
	if static == "" {
		static = findWebDir(rt.dataDir)
	}
	if static != "" {
		slog.Info("serving static files", "dir", static)
	}
	return server.New(server.Config{
		StaticDir: static,
		Registry:  rt.registry,
		Engine:    rt.engine,
		Store:     rt.store,
		Vocab:     rt.vocab,
		Metrics:   rt.metrics,
	})
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	if rt.watcher != nil {
		rt.watcher.Stop()
	}

	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dataDir returns the configured data directory, defaulting to
// ~/.signvista, and makes sure it exists.
func dataDir(cfg *config.Config) (string, error) {
	dir := cfg.Server.DataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home directory: %w", err)
		}
		dir = filepath.Join(home, ".signvista")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

// findWebDir looks for the dashboard in "web", "../web", "../../web" and
// finally <dataDir>/web.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
