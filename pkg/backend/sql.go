package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/malbeclabs/querybroker/pkg/query"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/schema"
)

var catalogQueries = map[registry.Kind]string{
	registry.KindMySQL: `
		SELECT table_schema, table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`,
	registry.KindMSSQL: `
		SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE
		FROM INFORMATION_SCHEMA.COLUMNS
		ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION`,
	registry.KindClickHouse: `
		SELECT database, table, name, type
		FROM system.columns
		WHERE database = currentDatabase()
		ORDER BY table, position`,
}

// sqlDriver opens database/sql backed targets through sqlx.
type sqlDriver struct {
	log *slog.Logger
}

func NewSQLDriver(log *slog.Logger) Driver {
	return &sqlDriver{log: log}
}

func (d *sqlDriver) Kinds() []registry.Kind {
	return []registry.Kind{registry.KindMySQL, registry.KindMSSQL, registry.KindClickHouse}
}

func (d *sqlDriver) Open(ctx context.Context, target registry.Target) (Handle, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch target.Kind {
	case registry.KindMySQL:
		dsn, derr := mysqlDSN(target)
		if derr != nil {
			return nil, derr
		}
		db, err = sqlx.Open("mysql", dsn)
	case registry.KindMSSQL:
		db, err = sqlx.Open("sqlserver", target.ConnString())
	case registry.KindClickHouse:
		opts, oerr := clickhouseOptions(target)
		if oerr != nil {
			return nil, oerr
		}
		db = sqlx.NewDb(clickhouse.OpenDB(opts), "clickhouse")
	default:
		return nil, fmt.Errorf("unsupported sql target kind %q", target.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", target.Kind, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", target.Kind, err)
	}

	d.log.Info("sql: connection pool created", "target", target.ID, "kind", target.Kind)

	return &sqlHandle{
		log:    d.log,
		target: target,
		db:     db,
	}, nil
}

// mysqlDSN accepts either a native go-sql-driver DSN or a mysql:// URL.
func mysqlDSN(target registry.Target) (string, error) {
	conn := target.ConnString()
	if !strings.HasPrefix(conn, "mysql://") {
		if _, err := mysql.ParseDSN(conn); err != nil {
			return "", fmt.Errorf("failed to parse mysql dsn: %w", err)
		}
		return conn, nil
	}

	u, err := url.Parse(conn)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql url: %w", err)
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func clickhouseOptions(target registry.Target) (*clickhouse.Options, error) {
	if target.URI != "" {
		opts, err := clickhouse.ParseDSN(target.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse clickhouse dsn: %w", err)
		}
		return opts, nil
	}
	host := target.Host
	if host == "" {
		host = "localhost"
	}
	port := target.Port
	if port == 0 {
		port = 9000
	}
	return &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port)},
		Auth: clickhouse.Auth{
			Database: target.Database,
			Username: target.User,
			Password: target.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	}, nil
}

type sqlHandle struct {
	log    *slog.Logger
	target registry.Target
	db     *sqlx.DB
}

func (h *sqlHandle) Introspect(ctx context.Context) (schema.Snapshot, error) {
	catalog, ok := catalogQueries[h.target.Kind]
	if !ok {
		return schema.Snapshot{}, fmt.Errorf("no catalog query for kind %q", h.target.Kind)
	}

	rows, err := h.db.QueryContext(ctx, catalog)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var catalogRows []schema.ColumnRow
	for rows.Next() {
		var r schema.ColumnRow
		if err := rows.Scan(&r.Schema, &r.Table, &r.Column, &r.DataType); err != nil {
			return schema.Snapshot{}, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		catalogRows = append(catalogRows, r)
	}
	if err := rows.Err(); err != nil {
		return schema.Snapshot{}, fmt.Errorf("error iterating catalog rows: %w", err)
	}

	return schema.Fold(catalogRows), nil
}

func (h *sqlHandle) Execute(ctx context.Context, c query.Candidate) (query.Result, error) {
	var (
		rows *sqlx.Rows
		err  error
	)
	switch h.target.Kind {
	case registry.KindClickHouse:
		// readonly=2 refuses writes but still lets the client send its own settings.
		qctx := clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{"readonly": 2}))
		rows, err = h.db.QueryxContext(qctx, c.SQL, c.Args...)
	case registry.KindMySQL:
		tx, txErr := h.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
		if txErr != nil {
			return query.Result{}, fmt.Errorf("failed to begin read-only transaction: %w", txErr)
		}
		defer func() { _ = tx.Rollback() }()
		rows, err = tx.QueryxContext(ctx, c.SQL, c.Args...)
	default:
		rows, err = h.db.QueryxContext(ctx, c.SQL, c.Args...)
	}
	if err != nil {
		return query.Result{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("failed to get columns: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		row := make(map[string]any, len(columns))
		if err := rows.MapScan(row); err != nil {
			return query.Result{}, fmt.Errorf("failed to scan row: %w", err)
		}
		for k, v := range row {
			row[k] = normalizeValue(v)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return query.Result{
		Rows: resultRows,
		Meta: map[string]any{"columns": columns},
	}, nil
}

func (h *sqlHandle) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func (h *sqlHandle) Close() error {
	return h.db.Close()
}
