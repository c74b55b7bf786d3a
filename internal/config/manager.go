package config

import (
	"os"
	"sync"
	"sync/atomic"
)

// Watcher is notified after Manager.Reload atomically swaps in a new
// configuration value.
type Watcher func(old, new *Config)

// Manager owns the single, atomically-published Config reference. Reload
// constructs a new value and swaps the pointer in one step, so any
// reader of Get sees either the old config or the new one in full, never a
// mix of fields from both.
type Manager struct {
	current atomic.Pointer[Config]

	mu       sync.Mutex
	watchers []Watcher
}

// NewManager loads the initial configuration from the process environment.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the current configuration snapshot. Safe for concurrent use;
// callers should take one snapshot per unit of work rather than calling Get
// repeatedly mid-pipeline.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Reload rebuilds the configuration from the environment and swaps it in,
// then notifies registered watchers with the old and new values.
func (m *Manager) Reload() error {
	next, err := Load(os.LookupEnv)
	if err != nil {
		return err
	}
	old := m.current.Swap(next)

	m.mu.Lock()
	watchers := append([]Watcher(nil), m.watchers...)
	m.mu.Unlock()

	for _, w := range watchers {
		w(old, next)
	}
	return nil
}

// AddWatcher registers a callback invoked after every successful Reload.
func (m *Manager) AddWatcher(w Watcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, w)
}
