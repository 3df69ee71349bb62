package synth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/schema"
)

const (
	defaultMaxSchemaBytes = 12000
	defaultLookupPoolSize = 8

	// Row caps used by the heuristic templates.
	taskRowLimit     = 100
	identityRowLimit = 10
)

// Completer sends a prompt to an external model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// UserLookup resolves a caller's numeric id from an out-of-band identity service.
type UserLookup interface {
	UserIDByUsername(ctx context.Context, username string) (int64, bool, error)
	UserIDByEmail(ctx context.Context, email string) (int64, bool, error)
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	// Location is used to compute calendar day and week boundaries.
	Location *time.Location

	// Delegate, when set, replaces the heuristic path entirely.
	Delegate       Completer
	MaxSchemaBytes int

	Users          UserLookup
	LookupPoolSize int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxSchemaBytes <= 0 {
		cfg.MaxSchemaBytes = defaultMaxSchemaBytes
	}
	if cfg.LookupPoolSize <= 0 {
		cfg.LookupPoolSize = defaultLookupPoolSize
	}
	return nil
}

// Synthesizer turns a question into a query candidate for one target.
type Synthesizer struct {
	log *slog.Logger
	cfg Config

	lookupPool pond.ResultPool[int64]
}

func New(cfg Config) (*Synthesizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Synthesizer{
		log:        cfg.Logger,
		cfg:        cfg,
		lookupPool: pond.NewResultPool[int64](cfg.LookupPoolSize),
	}, nil
}

// Delegating reports whether candidates come from the external model.
func (s *Synthesizer) Delegating() bool {
	return s.cfg.Delegate != nil
}

// Synthesize builds a candidate for message against snap. Delegate failures yield an empty
// candidate rather than an error; the guard rejects it downstream.
func (s *Synthesizer) Synthesize(ctx context.Context, message string, snap schema.Snapshot, target registry.Target, caller query.Caller) (query.Candidate, error) {
	if s.cfg.Delegate != nil {
		return s.delegate(ctx, message, snap, target), nil
	}

	text := query.Fold(message)
	if target.Kind == registry.KindMongoDB {
		return s.documentCandidate(text, snap)
	}

	if len(snap.Tables) == 0 {
		return query.Candidate{}, query.NewError(query.KindSynthesis, "the target has no tables to query")
	}

	d := dialect{kind: target.Kind}
	if text.IsIdentityIntent() {
		return s.identityCandidate(d, snap, caller), nil
	}
	return s.taskCandidate(ctx, d, text, snap, caller), nil
}

// Close stops the lookup worker pool.
func (s *Synthesizer) Close() {
	s.lookupPool.StopAndWait()
}
