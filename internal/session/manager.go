package session

import (
	"sync"
	"time"
)

// State is the recognition state of one session. Callers serialise passes
// over a session with Lock/Unlock; the buffer and history maps are guarded
// separately so modules running in parallel within a pass can create their
// own entries.
type State struct {
	id      string
	created time.Time

	pass sync.Mutex

	mu        sync.Mutex
	buffers   map[string]*Buffer
	histories map[string]*History
}

func newState(id string) *State {
	return &State{
		id:        id,
		created:   time.Now(),
		buffers:   make(map[string]*Buffer),
		histories: make(map[string]*History),
	}
}

// NewState returns a detached State, useful when no Manager is involved.
func NewState(id string) *State {
	return newState(id)
}

// ID returns the session identifier.
func (s *State) ID() string { return s.id }

// Created returns when the session was first seen.
func (s *State) Created() time.Time { return s.created }

// Lock begins a recognition pass over the session.
func (s *State) Lock() { s.pass.Lock() }

// Unlock ends a recognition pass.
func (s *State) Unlock() { s.pass.Unlock() }

// Buffer returns the buffer stored under key, creating it on first use. A
// buffer whose dimensions no longer match size and dim is replaced.
func (s *State) Buffer(key string, size, dim int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if dim <= 0 {
		dim = DefaultFeatureCount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buffers[key]
	if !ok || b.Size() != size || b.Dim() != dim {
		b = NewBuffer(size, dim)
		s.buffers[key] = b
	}
	return b
}

// PeekBuffer returns the buffer stored under key without creating it.
func (s *State) PeekBuffer(key string) (*Buffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[key]
	return b, ok
}

// History returns the history stored under key, creating it on first use.
func (s *State) History(key string, size int) *History {
	if size < 2 {
		size = DefaultHistorySize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histories[key]
	if !ok || h.size != size {
		h = NewHistory(size)
		s.histories[key] = h
	}
	return h
}

// Manager owns the State of every live session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	onCount  func(delta int64)
}

type entry struct {
	state    *State
	lastSeen time.Time
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*entry)}
}

// OnCountChange registers fn to be told about sessions being added (+1)
// or removed (-1).
func (m *Manager) OnCountChange(fn func(delta int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCount = fn
}

// Get returns the State for id, creating it lazily, and marks it as seen.
func (m *Manager) Get(id string) *State {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok {
		e = &entry{state: newState(id)}
		m.sessions[id] = e
	}
	e.lastSeen = time.Now()
	fn := m.onCount
	m.mu.Unlock()

	if !ok && fn != nil {
		fn(1)
	}
	return e.state
}

// Lookup returns the State for id without creating it.
func (m *Manager) Lookup(id string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.state, true
}

// Delete drops the State for id. It reports whether the session existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	fn := m.onCount
	m.mu.Unlock()

	if ok && fn != nil {
		fn(-1)
	}
	return ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions not seen for longer than ttl and returns their ids.
func (m *Manager) Sweep(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var dropped []string
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			dropped = append(dropped, id)
		}
	}
	fn := m.onCount
	m.mu.Unlock()

	if fn != nil && len(dropped) > 0 {
		fn(-int64(len(dropped)))
	}
	return dropped
}
