// Package broker runs the question pipeline: resolve a target, introspect it, synthesize a
// candidate, guard it, execute it and summarize the rows.
package broker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/querybroker/pkg/backend"
	"github.com/malbeclabs/querybroker/pkg/guard"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/schema"
	"github.com/malbeclabs/querybroker/pkg/summary"
)

const (
	defaultMaxConcurrent = 32
	defaultMaxRows       = MaxLimit
)

type Registry interface {
	Resolve(id string) (registry.Target, bool)
	InferTargetID(message string) string
}

type Pool interface {
	Get(ctx context.Context, target registry.Target) (backend.Handle, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, message string, snap schema.Snapshot, target registry.Target, caller query.Caller) (query.Candidate, error)
}

type Config struct {
	Logger      *slog.Logger
	Registry    Registry
	Pool        Pool
	Synthesizer Synthesizer
	Clock       clockwork.Clock

	// MaxConcurrent bounds the number of pipelines running at once; the rest queue.
	MaxConcurrent int
	// MaxRows caps the rows returned when the request has no limit.
	MaxRows int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Registry == nil {
		return errors.New("registry is required")
	}
	if cfg.Pool == nil {
		return errors.New("pool is required")
	}
	if cfg.Synthesizer == nil {
		return errors.New("synthesizer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	return nil
}

type Broker struct {
	log *slog.Logger
	cfg Config

	pool pond.Pool
}

func New(cfg Config) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Broker{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewPool(cfg.MaxConcurrent),
	}, nil
}

// Close waits for running pipelines and stops accepting new ones.
func (b *Broker) Close() {
	b.pool.StopAndWait()
}

type requestIDKey struct{}

// WithRequestID attaches id to ctx so pipeline logs and responses carry it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Ask answers one question. Errors carry a query.Kind.
func (b *Broker) Ask(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	var resp *Response
	task := b.pool.SubmitErr(func() error {
		var err error
		resp, err = b.run(ctx, id, req)
		return err
	})

	select {
	case <-task.Done():
		if err := task.Wait(); err != nil {
			return nil, err
		}
		return resp, nil
	case <-ctx.Done():
		b.log.Warn("broker: request abandoned", "request_id", id, "error", ctx.Err())
		return nil, ctx.Err()
	}
}

func (b *Broker) resolve(req Request) (registry.Target, bool) {
	if req.ConnectionID != "" {
		if t, ok := b.cfg.Registry.Resolve(req.ConnectionID); ok {
			return t, true
		}
		b.log.Warn("broker: requested target not found, inferring from message", "target", req.ConnectionID)
	}
	return b.cfg.Registry.Resolve(b.cfg.Registry.InferTargetID(req.Message))
}

func (b *Broker) run(ctx context.Context, id string, req Request) (resp *Response, err error) {
	start := b.cfg.Clock.Now()
	log := b.log.With("request_id", id)

	target, ok := b.resolve(req)
	if !ok {
		RequestsTotal.WithLabelValues("", string(query.KindTargetNotFound)).Inc()
		return nil, query.NewError(query.KindTargetNotFound, "no target could be resolved for this question")
	}
	kind := string(target.Kind)
	log = log.With("target", target.ID, "kind", kind)

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(query.KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
		}
		duration := b.cfg.Clock.Since(start)
		RequestsTotal.WithLabelValues(kind, outcome).Inc()
		RequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
		if err != nil {
			log.Info("broker: request failed", "outcome", outcome, "duration", duration, "error", err)
			return
		}
		log.Info("broker: request completed", "duration", duration, "rows", len(resp.Result.Rows))
	}()

	handle, err := b.cfg.Pool.Get(ctx, target)
	if err != nil {
		return nil, err
	}

	snap, err := handle.Introspect(ctx)
	if err != nil {
		return nil, withKind(err, query.KindIntrospection, "failed to read the schema of "+target.Name())
	}
	log.Debug("broker: schema introspected", "tables", len(snap.Tables), "collections", len(snap.Collections))

	caller := req.caller()
	cand, err := b.cfg.Synthesizer.Synthesize(ctx, req.Message, snap, target, caller)
	if err != nil {
		return nil, withKind(err, query.KindSynthesis, "failed to build a query for this question")
	}
	log.Debug("broker: candidate synthesized", "sql", cand.SQL, "notes", cand.Notes)

	if err := guard.Check(cand, target.Kind); err != nil {
		GuardRejectionsTotal.WithLabelValues(kind).Inc()
		return nil, err
	}

	result, err := handle.Execute(ctx, cand)
	if err != nil {
		return nil, withKind(err, query.KindExecution, "failed to run the query on "+target.Name())
	}

	limit := req.Limit
	if limit == 0 {
		limit = b.cfg.MaxRows
	}
	if len(result.Rows) > limit {
		result.Rows = result.Rows[:limit]
	}
	if result.Rows == nil {
		result.Rows = []map[string]any{}
	}
	RowsReturned.WithLabelValues(kind).Observe(float64(len(result.Rows)))

	return &Response{
		Success:   true,
		RequestID: id,
		Target:    target.ID,
		Query:     QueryView{SQL: cand.SQL, Params: cand.Args, Mongo: cand.Mongo},
		Result:    result,
		Notes:     cand.Notes,
		Summary:   summary.Summarize(req.Message, result.Rows, target),
	}, nil
}

// withKind keeps an existing kind on err and wraps it with kind otherwise.
func withKind(err error, kind query.Kind, msg string) error {
	if query.KindOf(err) != "" {
		return err
	}
	return query.WrapError(kind, msg, err)
}
