package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/malbeclabs/querybroker/pkg/backend"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	Logger  *slog.Logger
	Drivers []backend.Driver
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Drivers) == 0 {
		return errors.New("at least one driver is required")
	}
	return nil
}

// Manager lazily opens and caches one handle per (kind, target id). Cached handles are never
// replaced; failed opens are not cached.
type Manager struct {
	log     *slog.Logger
	drivers map[registry.Kind]backend.Driver

	mu      sync.RWMutex
	handles map[string]backend.Handle
	group   singleflight.Group
}

func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	drivers := make(map[registry.Kind]backend.Driver)
	for _, d := range cfg.Drivers {
		for _, k := range d.Kinds() {
			drivers[k] = d
		}
	}
	return &Manager{
		log:     cfg.Logger,
		drivers: drivers,
		handles: make(map[string]backend.Handle),
	}, nil
}

func key(t registry.Target) string {
	return string(t.Kind) + ":" + t.ID
}

func (m *Manager) cached(k string) (backend.Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[k]
	return h, ok
}

// Get returns the handle for target, opening it on first use. Concurrent first calls for the same
// key share a single open.
func (m *Manager) Get(ctx context.Context, target registry.Target) (backend.Handle, error) {
	k := key(target)
	if h, ok := m.cached(k); ok {
		return h, nil
	}

	driver, ok := m.drivers[target.Kind]
	if !ok {
		return nil, query.NewError(query.KindConnection, fmt.Sprintf("no driver for target kind %q", target.Kind))
	}

	v, err, _ := m.group.Do(k, func() (any, error) {
		if h, ok := m.cached(k); ok {
			return h, nil
		}

		// Detached from the caller so one canceled request does not fail the others sharing this open.
		h, err := driver.Open(context.WithoutCancel(ctx), target)
		if err != nil {
			OpenFailuresTotal.WithLabelValues(string(target.Kind)).Inc()
			return nil, err
		}
		OpensTotal.WithLabelValues(string(target.Kind)).Inc()

		m.mu.Lock()
		m.handles[k] = h
		m.mu.Unlock()

		m.log.Info("pool: handle opened", "target", target.ID, "kind", target.Kind)
		return h, nil
	})
	if err != nil {
		m.log.Warn("pool: failed to open handle", "target", target.ID, "kind", target.Kind, "error", err)
		return nil, query.WrapError(query.KindConnection, "could not connect to "+target.Name(), err)
	}
	return v.(backend.Handle), nil
}

// Len returns the number of cached handles.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// Ping checks every cached handle and returns the first error.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	handles := make(map[string]backend.Handle, len(m.handles))
	for k, h := range m.handles {
		handles[k] = h
	}
	m.mu.RUnlock()

	for k, h := range handles {
		if err := h.Ping(ctx); err != nil {
			return fmt.Errorf("handle %s: %w", k, err)
		}
	}
	return nil
}

// Close closes every cached handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for k, h := range m.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", k, err))
		}
		delete(m.handles, k)
	}
	return errors.Join(errs...)
}
