package plugin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// ManifestFile is the manifest name looked up in every plugin directory.
const ManifestFile = "plugin.json"

// Manager discovers plugins under a directory and serves them by name.
type Manager struct {
	dir     string
	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewManager returns a Manager rooted at dir. Call [Manager.Discover] to
// load the plugins.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:     dir,
		plugins: make(map[string]*Plugin),
	}
}

// Discover rescans the plugin directory, replacing what was loaded before.
// A missing directory yields no plugins. Subdirectories without a readable
// manifest, or whose executable is missing, are skipped with a warning.
func (m *Manager) Discover() error {
	found := make(map[string]*Plugin)

	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		m.swap(found)
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())

		data, err := os.ReadFile(filepath.Join(path, ManifestFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			slog.Warn("plugin: cannot read manifest", "dir", path, "err", err)
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			slog.Warn("plugin: invalid manifest", "dir", path, "err", err)
			continue
		}
		if manifest.Name == "" {
			manifest.Name = entry.Name()
		}

		exe := filepath.Join(path, manifest.Executable)
		if info, err := os.Stat(exe); err != nil || info.IsDir() {
			slog.Warn("plugin: executable not found", "plugin", manifest.Name, "path", exe)
			continue
		}

		found[manifest.Name] = &Plugin{Manifest: manifest, Path: path, Executable: exe}
	}

	m.swap(found)
	slog.Info("plugin: discovery finished", "dir", m.dir, "count", len(found))
	return nil
}

func (m *Manager) swap(plugins map[string]*Plugin) {
	m.mu.Lock()
	m.plugins = plugins
	m.mu.Unlock()
}

// Get returns the plugin called name, or [ErrPluginNotFound].
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return p, nil
}

// List returns the discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

// Dir returns the plugin directory.
func (m *Manager) Dir() string {
	return m.dir
}
