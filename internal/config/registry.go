package config

import (
	"sync"
	"sync/atomic"
)

// Registry holds the live configuration. Readers take an immutable snapshot
// with [Registry.Current]; writers publish a whole new value, so a pass that
// snapshots once never observes a half-applied change.
type Registry struct {
	cur atomic.Pointer[Config]

	// mu serialises writers so Update's read-modify-write is not lost.
	mu        sync.Mutex
	listeners []func(*Config)
}

// NewRegistry returns a Registry publishing cfg.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{}
	r.cur.Store(cfg)
	return r
}

// Current returns the published configuration. Callers must not mutate it.
func (r *Registry) Current() *Config {
	return r.cur.Load()
}

// Replace publishes cfg as the live configuration.
func (r *Registry) Replace(cfg *Config) {
	r.mu.Lock()
	r.cur.Store(cfg)
	listeners := r.listeners
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// Update applies fn to a copy of the live configuration and publishes the
// result. It returns the published value.
func (r *Registry) Update(fn func(*Config)) *Config {
	r.mu.Lock()
	next := r.cur.Load().Clone()
	fn(next)
	r.cur.Store(next)
	listeners := r.listeners
	r.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next
}

// OnChange registers fn to be called after every publish.
func (r *Registry) OnChange(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}
