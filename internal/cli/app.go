package cli

import (
	"fmt"
	"log/slog"

	"github.com/malbeclabs/querybroker/config"
	"github.com/malbeclabs/querybroker/pkg/backend"
	"github.com/malbeclabs/querybroker/pkg/broker"
	"github.com/malbeclabs/querybroker/pkg/identity"
	"github.com/malbeclabs/querybroker/pkg/pool"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/synth"
)

// app holds the wired broker components for one process.
type app struct {
	log      *slog.Logger
	registry *registry.Registry
	pool     *pool.Manager
	synth    *synth.Synthesizer
	broker   *broker.Broker
}

func newApp(log *slog.Logger, cfg *config.Config) (*app, error) {
	reg, err := registry.New(registry.Config{
		Logger:   log,
		Targets:  cfg.Targets,
		Defaults: cfg.Defaults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	pm, err := pool.New(pool.Config{
		Logger:  log,
		Drivers: backend.DefaultDrivers(log, backend.PostgresConfig{}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pool manager: %w", err)
	}

	synthCfg := synth.Config{Logger: log}
	completer, err := synth.NewCompleter(log, cfg.Delegate)
	if err != nil {
		return nil, fmt.Errorf("failed to create completer: %w", err)
	}
	if completer != nil {
		synthCfg.Delegate = completer
		log.Info("synth: delegating to external model", "provider", cfg.Delegate.Provider, "model", cfg.Delegate.Model)
	}
	if cfg.IdentityURL != "" {
		users, err := identity.NewClient(identity.Config{Logger: log, BaseURL: cfg.IdentityURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create identity client: %w", err)
		}
		synthCfg.Users = users
	}
	sy, err := synth.New(synthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}

	b, err := broker.New(broker.Config{
		Logger:        log,
		Registry:      reg,
		Pool:          pm,
		Synthesizer:   sy,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	if err != nil {
		sy.Close()
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	return &app{log: log, registry: reg, pool: pm, synth: sy, broker: b}, nil
}

// Close drains in-flight requests before releasing backend handles.
func (a *app) Close() error {
	a.broker.Close()
	a.synth.Close()
	if err := a.pool.Close(); err != nil {
		return fmt.Errorf("failed to close pool: %w", err)
	}
	return nil
}
