// Package inference runs the recognition pass for a frame: it gates on the
// subject, fans out to the enabled classifier modules, applies the live
// thresholds, selects one prediction and falls back to the legacy model when
// no module can run.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/signvista/internal/classifier"
	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/model"
	"github.com/ayusman/signvista/internal/observe"
	"github.com/ayusman/signvista/internal/session"
	"github.com/ayusman/signvista/internal/vocab"
)

// SubjectGate decides whether anyone is in view.
type SubjectGate interface {
	Present(frame *gocv.Mat) bool
}

// Legacy is the single-model fallback path. A nil Model or Extractor means
// the path is unavailable.
type Legacy struct {
	Extractor classifier.FeatureExtractor
	Model     model.Model
	Labels    *vocab.Table
}

func (l Legacy) available() bool {
	return l.Model != nil && l.Extractor != nil
}

// Config wires an Engine to its collaborators.
type Config struct {
	Registry *config.Registry
	Sessions *session.Manager

	// Modules are the loaded classifier modules. A module whose model failed
	// to load is simply left out.
	Modules []classifier.Module

	Legacy Legacy

	// Gate is consulted when inference.require_subject is set. Nil lets
	// every frame through.
	Gate SubjectGate

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Options tune a single Predict call.
type Options struct {
	Diagnostics bool
}

// Engine orchestrates the classifier modules. It is safe for concurrent use;
// calls for the same session are serialized.
type Engine struct {
	registry *config.Registry
	sessions *session.Manager
	modules  map[config.ModuleName]classifier.Module
	legacy   Legacy
	gate     SubjectGate
	metrics  *observe.Metrics

	mu    sync.RWMutex
	hooks []func(sessionID string, r Result)
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = config.NewRegistry(config.Default())
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewManager()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	e := &Engine{
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		modules:  make(map[config.ModuleName]classifier.Module, len(cfg.Modules)),
		legacy:   cfg.Legacy,
		gate:     cfg.Gate,
		metrics:  cfg.Metrics,
	}
	for _, m := range cfg.Modules {
		e.modules[m.Name()] = m
	}

	metrics := cfg.Metrics
	e.sessions.OnCountChange(func(delta int64) {
		metrics.AddSessions(context.Background(), delta)
	})
	return e
}

// OnResult registers fn to be called with every ready result.
func (e *Engine) OnResult(fn func(sessionID string, r Result)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, fn)
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// DropSession discards the buffers and history of a session.
func (e *Engine) DropSession(id string) bool {
	return e.sessions.Delete(id)
}

// Predict runs one recognition pass for frame on behalf of sessionID. It
// never fails: every problem is reported through the result status.
func (e *Engine) Predict(ctx context.Context, sessionID string, frame *gocv.Mat, opts Options) Result {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "inference.predict",
		trace.WithAttributes(attribute.String("session_id", sessionID)),
	)
	defer span.End()

	// One snapshot per pass; a reload mid-pass only affects the next frame.
	cfg := e.registry.Current()

	sess := e.sessions.Get(sessionID)
	sess.Lock()
	res := e.predict(ctx, cfg, sess, frame, opts)
	sess.Unlock()

	elapsed := time.Since(start)
	if res.Diagnostics != nil {
		res.Diagnostics.TotalMs = ms(elapsed)
	}
	if budget := cfg.Inference.LatencyBudget; budget > 0 && elapsed > budget {
		observe.Logger(ctx).Warn("recognition pass exceeded latency budget",
			"session", sessionID, "elapsed", elapsed, "budget", budget)
		e.metrics.RecordBudgetExceeded(ctx)
	}
	e.metrics.RecordInference(ctx, elapsed, string(res.Status), string(res.Module))
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.String("word", res.Word),
	)

	if res.Status == StatusReady {
		e.mu.RLock()
		hooks := e.hooks
		e.mu.RUnlock()
		for _, fn := range hooks {
			fn(sessionID, res)
		}
	}
	return res
}

func (e *Engine) predict(ctx context.Context, cfg *config.Config, sess *session.State, frame *gocv.Mat, opts Options) Result {
	if cfg.Inference.RequireSubject && e.gate != nil && !e.gate.Present(frame) {
		return Result{Status: StatusNoSubject}
	}

	active := e.active(cfg)

	var diag *Diagnostics
	if opts.Diagnostics {
		diag = &Diagnostics{
			Timings:  make(map[config.ModuleName]Timing, len(active)),
			Failures: make(map[config.ModuleName]string),
		}
		for _, m := range active {
			diag.ActiveModules = append(diag.ActiveModules, m.Name())
		}
	}

	if len(active) == 0 {
		return e.fallback(ctx, cfg, sess, frame, diag)
	}

	outcomes := e.fanOut(ctx, cfg, active, frame, sess)

	failed := 0
	var survivors, rejected []*classifier.Prediction
	for _, o := range outcomes {
		if diag != nil {
			t := Timing{TotalMs: ms(o.elapsed)}
			if o.pred != nil {
				t.PreprocessingMs = ms(o.pred.PreprocessingTime)
				t.InferenceMs = ms(o.pred.InferenceTime)
			}
			diag.Timings[o.name] = t
		}
		if o.err != nil {
			failed++
			if diag != nil {
				diag.Failures[o.name] = o.err.Error()
			}
			continue
		}
		if o.pred == nil {
			continue
		}

		mc, _ := cfg.ModuleConfig(o.name)
		if o.pred.Confidence < mc.ConfidenceThreshold {
			slog.Debug("prediction below threshold",
				"module", o.name, "word", o.pred.Word,
				"confidence", o.pred.Confidence, "threshold", mc.ConfidenceThreshold)
			rejected = append(rejected, o.pred)
			continue
		}
		survivors = append(survivors, o.pred)
	}

	// Every module failing is a failed fan-out, the same as having none.
	if failed == len(active) {
		slog.Error("all modules failed, using legacy path", "session", sess.ID(), "modules", len(active))
		return e.fallback(ctx, cfg, sess, frame, diag)
	}

	if diag != nil {
		diag.Candidates = rank(survivors)
		if len(rejected) > 0 {
			diag.Rejected = rank(rejected)
		}
	}

	if len(survivors) == 0 {
		res := Result{Status: StatusLowConfidence, Diagnostics: diag}
		res.Progress = e.progress(active, sess)
		return res
	}

	requested := cfg.PredictionStrategy()
	pick, strategy := Select(survivors, requested, cfg.Priorities())
	if strategy != requested {
		slog.Warn("unknown prediction strategy, using highest confidence", "strategy", requested)
	}

	if diag != nil {
		reason := "strategy_" + string(strategy)
		if len(survivors) == 1 {
			reason = "single_candidate"
		}
		diag.Selected = &Selection{Module: pick.Module, Strategy: strategy, Reason: reason}
	}

	return Result{
		Word:        pick.Word,
		DisplayName: pick.DisplayName,
		Confidence:  pick.Confidence,
		Status:      StatusReady,
		Module:      pick.Module,
		Diagnostics: diag,
	}
}

// active returns the loaded modules enabled in cfg, in execution order.
func (e *Engine) active(cfg *config.Config) []classifier.Module {
	var out []classifier.Module
	for _, name := range cfg.EnabledModules() {
		if m, ok := e.modules[name]; ok {
			out = append(out, m)
		}
	}
	return out
}

// progress reports the fill ratio of the first sequence module that is
// still collecting, or 0.
func (e *Engine) progress(active []classifier.Module, sess *session.State) float64 {
	for _, m := range active {
		if pr, ok := m.(classifier.ProgressReporter); ok {
			if ratio, collecting := pr.Progress(sess); collecting {
				return ratio
			}
		}
	}
	return 0
}

type outcome struct {
	name    config.ModuleName
	pred    *classifier.Prediction
	err     error
	elapsed time.Duration
}

func (e *Engine) fanOut(ctx context.Context, cfg *config.Config, modules []classifier.Module, frame *gocv.Mat, sess *session.State) []outcome {
	outcomes := make([]outcome, len(modules))
	if !cfg.Inference.ParallelExecution || len(modules) == 1 {
		for i, m := range modules {
			outcomes[i] = e.run(ctx, cfg, m, frame, sess)
		}
		return outcomes
	}

	// Modules keep their state under distinct session keys, so they can
	// share the session concurrently.
	var g errgroup.Group
	for i, m := range modules {
		g.Go(func() error {
			outcomes[i] = e.run(ctx, cfg, m, frame, sess)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// run invokes one module, converting a panic into a failure.
func (e *Engine) run(ctx context.Context, cfg *config.Config, m classifier.Module, frame *gocv.Mat, sess *session.State) (o outcome) {
	o.name = m.Name()
	ctx, span := observe.StartSpan(ctx, "module."+string(o.name))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.pred = nil
			o.err = fmt.Errorf("panic: %v", r)
			slog.Error("module panicked", "module", o.name, "panic", r, "stack", string(debug.Stack()))
		}
		o.elapsed = time.Since(start)
		e.metrics.RecordModule(ctx, string(o.name), o.elapsed)
		if o.err != nil {
			observe.Logger(ctx).Error("module failed", "module", o.name, "error", o.err)
			e.metrics.RecordModuleFailure(ctx, string(o.name))
			span.RecordError(o.err)
		}
		span.End()
	}()

	mc, _ := cfg.ModuleConfig(o.name)
	o.pred, o.err = m.Predict(frame, sess, mc)
	return o
}
