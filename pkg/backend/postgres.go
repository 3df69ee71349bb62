package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/schema"
)

// DefaultSearchPath is the schema resolution order applied before introspecting or querying a
// postgres target.
var DefaultSearchPath = []string{"household", "public", "tasks", "users", "finance", "notifications"}

const postgresCatalogQuery = `
	SELECT table_schema, table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
	ORDER BY table_schema, table_name, ordinal_position`

type PostgresConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	SearchPath      []string
}

func (cfg *PostgresConfig) Validate() error {
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = time.Hour
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 30 * time.Minute
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if len(cfg.SearchPath) == 0 {
		cfg.SearchPath = DefaultSearchPath
	}
	return nil
}

type postgresDriver struct {
	log *slog.Logger
	cfg PostgresConfig
}

func NewPostgresDriver(log *slog.Logger, cfg PostgresConfig) Driver {
	_ = cfg.Validate()
	return &postgresDriver{log: log, cfg: cfg}
}

func (d *postgresDriver) Kinds() []registry.Kind {
	return []registry.Kind{registry.KindPostgres}
}

func (d *postgresDriver) Open(ctx context.Context, target registry.Target) (Handle, error) {
	poolConfig, err := pgxpool.ParseConfig(target.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = d.cfg.MaxConns
	poolConfig.MinConns = d.cfg.MinConns
	poolConfig.MaxConnLifetime = d.cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = d.cfg.MaxConnIdleTime

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	searchPath := target.SearchPath
	if len(searchPath) == 0 {
		searchPath = d.cfg.SearchPath
	}

	d.log.Info("postgres: pool created", "target", target.ID, "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)

	return &postgresHandle{
		log:        d.log,
		target:     target,
		pool:       pool,
		searchPath: searchPath,
	}, nil
}

type postgresHandle struct {
	log        *slog.Logger
	target     registry.Target
	pool       *pgxpool.Pool
	searchPath []string
}

// setSearchPath applies the configured schema order to conn. Failures are logged and ignored,
// since most deployments only use the default schema.
func (h *postgresHandle) setSearchPath(ctx context.Context, conn *pgxpool.Conn) {
	if len(h.searchPath) == 0 {
		return
	}
	quoted := make([]string, len(h.searchPath))
	for i, s := range h.searchPath {
		quoted[i] = pgx.Identifier{s}.Sanitize()
	}
	if _, err := conn.Exec(ctx, "SET search_path TO "+strings.Join(quoted, ", ")); err != nil {
		h.log.Debug("postgres: failed to set search path", "target", h.target.ID, "error", err)
	}
}

func (h *postgresHandle) Introspect(ctx context.Context) (schema.Snapshot, error) {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	h.setSearchPath(ctx, conn)

	rows, err := conn.Query(ctx, postgresCatalogQuery)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var catalog []schema.ColumnRow
	for rows.Next() {
		var r schema.ColumnRow
		if err := rows.Scan(&r.Schema, &r.Table, &r.Column, &r.DataType); err != nil {
			return schema.Snapshot{}, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		catalog = append(catalog, r)
	}
	if err := rows.Err(); err != nil {
		return schema.Snapshot{}, fmt.Errorf("error iterating catalog rows: %w", err)
	}

	return schema.Fold(catalog), nil
}

func (h *postgresHandle) Execute(ctx context.Context, c query.Candidate) (query.Result, error) {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	h.setSearchPath(ctx, conn)

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return query.Result{}, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, c.SQL, c.Args...)
	if err != nil {
		return query.Result{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	fields := make([]map[string]any, len(descs))
	for i, fd := range descs {
		fields[i] = map[string]any{"name": fd.Name, "dataTypeID": fd.DataTypeOID}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return query.Result{}, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(values))
		for i, v := range values {
			row[descs[i].Name] = normalizeValue(v)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return query.Result{
		Rows: resultRows,
		Meta: map[string]any{"fields": fields},
	}, nil
}

func (h *postgresHandle) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func (h *postgresHandle) Close() error {
	h.pool.Close()
	return nil
}
