package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/malbeclabs/querybroker/pkg/query"
)

const DefaultTargetID = "default"

var ErrDuplicateTarget = errors.New("duplicate target id")

// Defaults are the discrete credentials used to synthesize a postgres target when no targets are
// configured.
type Defaults struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

type Config struct {
	Logger   *slog.Logger
	Targets  []Target
	Defaults Defaults
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Registry holds the configured targets. The list only grows after construction.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	targets []Target
}

func New(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{log: cfg.Logger}
	for _, t := range cfg.Targets {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}

	if len(r.targets) == 0 {
		d := cfg.Defaults
		t := Target{
			ID:          DefaultTargetID,
			Kind:        KindPostgres,
			DisplayName: "Default database",
			Host:        d.Host,
			Port:        d.Port,
			Database:    d.Database,
			User:        d.User,
			Password:    d.Password,
			SSLMode:     d.SSLMode,
		}
		t.URI = t.ConnString()
		r.targets = append(r.targets, t)
		r.log.Info("registry: no targets configured, using default", "target", t.ID, "uri", Redact(t.URI))
	}

	return r, nil
}

func (r *Registry) add(t Target) error {
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		return errors.New("target id is required")
	}
	kind, err := ParseKind(string(t.Kind))
	if err != nil {
		return fmt.Errorf("target %q: %w", t.ID, err)
	}
	t.Kind = kind
	for _, existing := range r.targets {
		if existing.ID == t.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateTarget, t.ID)
		}
	}
	r.targets = append(r.targets, t)
	return nil
}

// Add appends a target. Existing targets are never replaced or removed.
func (r *Registry) Add(t Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.add(t); err != nil {
		return err
	}
	r.log.Info("registry: target added", "target", t.ID, "kind", t.Kind)
	return nil
}

func (r *Registry) List() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// Resolve returns the target with the given id, or the first target when id is empty.
func (r *Registry) Resolve(id string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.targets) == 0 {
		return Target{}, false
	}
	if id == "" {
		return r.targets[0], true
	}
	for _, t := range r.targets {
		if t.ID == id {
			return t, true
		}
	}
	return Target{}, false
}

// InferTargetID guesses which target a message is about from its vocabulary. It falls back to
// the first target.
func (r *Registry) InferTargetID(message string) string {
	text := query.Fold(message)

	var hints []string
	switch {
	case text.MentionsTasks():
		hints = []string{"tasks", "task", "tareas"}
	case text.MentionsPeople():
		hints = []string{"users", "user", "usuarios"}
	case text.MentionsMoney():
		hints = []string{"finance", "finanzas"}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.targets) == 0 {
		return ""
	}
	for _, hint := range hints {
		for _, t := range r.targets {
			if strings.Contains(strings.ToLower(t.ID), hint) || strings.Contains(strings.ToLower(t.DisplayName), hint) {
				return t.ID
			}
		}
	}
	return r.targets[0].ID
}
