package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/signvista/internal/config"
	"github.com/ayusman/signvista/internal/observe"
)

// AnyWord is the binding word that matches every recognized word.
const AnyWord = "*"

// Outcome statuses recorded per plugin execution.
const (
	StatusOK          = "ok"
	StatusFailed      = "failed"
	StatusError       = "error"
	StatusNotFound    = "not_found"
	StatusUnsupported = "unsupported"
)

// queueSize bounds the events waiting for the dispatch worker.
const queueSize = 32

// Event is a recognized word handed to the bound plugins.
type Event struct {
	SessionID   string
	Word        string
	DisplayName string
	Confidence  float64
}

// Outcome reports what happened to one binding of an event.
type Outcome struct {
	Binding  config.PluginBinding
	Status   string
	Response *Response
	Err      error
}

// Dispatcher runs the plugin actions bound to recognized words. Bindings
// come from the plugins section of the configuration and can be swapped at
// runtime. The same word does not re-trigger a binding within the cooldown.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	metrics  *observe.Metrics
	now      func() time.Time

	mu       sync.Mutex
	bindings []config.PluginBinding
	cooldown time.Duration
	fired    map[string]time.Time

	queue chan Event
}

// NewDispatcher returns a Dispatcher over the plugins known to manager.
// A nil metrics uses [observe.DefaultMetrics].
func NewDispatcher(manager *Manager, executor *Executor, metrics *observe.Metrics) *Dispatcher {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		metrics:  metrics,
		now:      time.Now,
		fired:    make(map[string]time.Time),
		queue:    make(chan Event, queueSize),
	}
}

// Configure replaces the bindings and cooldown with those of pc.
func (d *Dispatcher) Configure(pc config.PluginsConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings = append([]config.PluginBinding(nil), pc.Bindings...)
	d.cooldown = pc.Cooldown
}

// Match returns the bindings that apply to word, in configuration order.
func (d *Dispatcher) Match(word string) []config.PluginBinding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.match(word)
}

func (d *Dispatcher) match(word string) []config.PluginBinding {
	var out []config.PluginBinding
	for _, b := range d.bindings {
		if b.Word == word || b.Word == AnyWord {
			out = append(out, b)
		}
	}
	return out
}

// due picks the bindings of word that are outside their cooldown and marks
// them as fired.
func (d *Dispatcher) due(word string) []config.PluginBinding {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var out []config.PluginBinding
	for _, b := range d.match(word) {
		key := b.Plugin + "\x00" + b.Action + "\x00" + word
		if last, ok := d.fired[key]; ok && d.cooldown > 0 && now.Sub(last) < d.cooldown {
			continue
		}
		d.fired[key] = now
		out = append(out, b)
	}
	return out
}

// Dispatch runs every due binding of ev.Word in order and returns one
// outcome per execution. It blocks until the plugins have answered.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) []Outcome {
	if ev.Word == "" {
		return nil
	}
	bindings := d.due(ev.Word)
	outcomes := make([]Outcome, 0, len(bindings))
	for _, b := range bindings {
		o := d.run(ctx, b, ev)
		d.metrics.RecordPlugin(ctx, b.Plugin, o.Status)
		if o.Err != nil {
			slog.Warn("plugin: action failed", "plugin", b.Plugin, "action", b.Action, "word", ev.Word, "status", o.Status, "err", o.Err)
		} else {
			slog.Debug("plugin: action done", "plugin", b.Plugin, "action", b.Action, "word", ev.Word)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (d *Dispatcher) run(ctx context.Context, b config.PluginBinding, ev Event) Outcome {
	o := Outcome{Binding: b}

	p, err := d.manager.Get(b.Plugin)
	if err != nil {
		o.Status, o.Err = StatusNotFound, err
		return o
	}
	if !p.Manifest.Supports(b.Action) {
		o.Status, o.Err = StatusUnsupported, errors.New("action not listed in manifest")
		return o
	}

	req := &Request{
		Action:      b.Action,
		Word:        ev.Word,
		DisplayName: ev.DisplayName,
		Confidence:  ev.Confidence,
		SessionID:   ev.SessionID,
	}
	if len(b.Params) > 0 {
		params, err := json.Marshal(b.Params)
		if err != nil {
			o.Status, o.Err = StatusError, err
			return o
		}
		req.Params = params
	}

	resp, err := d.executor.Execute(ctx, p, req)
	o.Response = resp
	switch {
	case err != nil:
		o.Status, o.Err = StatusError, err
	case !resp.Success:
		o.Status, o.Err = StatusFailed, errors.New(resp.Error)
	default:
		o.Status = StatusOK
	}
	return o
}

// Notify queues ev for the worker started by [Dispatcher.Run]. It never
// blocks; when the queue is full the event is dropped.
func (d *Dispatcher) Notify(ev Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		slog.Warn("plugin: dispatch queue full, dropping word", "word", ev.Word, "session", ev.SessionID)
		return false
	}
}

// Run dispatches queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.Dispatch(ctx, ev)
		}
	}
}
