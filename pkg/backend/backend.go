// Package backend implements introspection and execution for each supported target kind.
package backend

import (
	"context"
	"log/slog"

	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/schema"
)

// MaxDocuments bounds the number of documents returned by a document read.
const MaxDocuments = 100

// Handle is a live connection or pool to one target.
type Handle interface {
	Introspect(ctx context.Context) (schema.Snapshot, error)
	Execute(ctx context.Context, c query.Candidate) (query.Result, error)
	Ping(ctx context.Context) error
	Close() error
}

// Driver opens handles for the target kinds it supports.
type Driver interface {
	Kinds() []registry.Kind
	Open(ctx context.Context, target registry.Target) (Handle, error)
}

// DefaultDrivers returns a driver for every supported kind.
func DefaultDrivers(log *slog.Logger, pgCfg PostgresConfig) []Driver {
	return []Driver{
		NewPostgresDriver(log, pgCfg),
		NewSQLDriver(log),
		NewMongoDriver(log),
	}
}
