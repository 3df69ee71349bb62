package registry

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

type Kind string

const (
	KindPostgres   Kind = "postgres"
	KindMySQL      Kind = "mysql"
	KindMSSQL      Kind = "mssql"
	KindClickHouse Kind = "clickhouse"
	KindMongoDB    Kind = "mongodb"
)

// ParseKind maps a configured kind (including common aliases) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg", "relational-postgres":
		return KindPostgres, nil
	case "mysql", "mariadb", "relational-mysql":
		return KindMySQL, nil
	case "mssql", "sqlserver", "relational-mssql":
		return KindMSSQL, nil
	case "clickhouse", "ch":
		return KindClickHouse, nil
	case "mongodb", "mongo", "document":
		return KindMongoDB, nil
	}
	return "", fmt.Errorf("unknown target kind %q", s)
}

// IsRelational reports whether targets of this kind are queried with SQL.
func (k Kind) IsRelational() bool {
	return k != KindMongoDB
}

// Target is a configured data store the broker can query.
type Target struct {
	ID          string `json:"id" yaml:"id"`
	Kind        Kind   `json:"type" yaml:"type"`
	DisplayName string `json:"name,omitempty" yaml:"name,omitempty"`
	URI         string `json:"uri,omitempty" yaml:"uri,omitempty"`
	Host        string `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database    string `json:"database,omitempty" yaml:"database,omitempty"`
	User        string `json:"user,omitempty" yaml:"user,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode     string `json:"sslMode,omitempty" yaml:"sslMode,omitempty"`
	ReadOnly    bool   `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	// SearchPath overrides the default postgres schema search order.
	SearchPath []string `json:"searchPath,omitempty" yaml:"searchPath,omitempty"`
}

func (t Target) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.ID
}

func defaultPort(k Kind) int {
	switch k {
	case KindPostgres:
		return 5432
	case KindMySQL:
		return 3306
	case KindMSSQL:
		return 1433
	case KindClickHouse:
		return 9000
	case KindMongoDB:
		return 27017
	}
	return 0
}

// ConnString returns the connection string for the target. When URI is set it is returned as is;
// otherwise one is built from the discrete fields. An empty password is rendered as "user:@" so
// drivers see a present but empty password.
func (t Target) ConnString() string {
	if t.URI != "" {
		return t.URI
	}

	host := t.Host
	if host == "" {
		host = "localhost"
	}
	port := t.Port
	if port == 0 {
		port = defaultPort(t.Kind)
	}
	hostPort := net.JoinHostPort(host, strconv.Itoa(port))

	switch t.Kind {
	case KindMySQL:
		// go-sql-driver DSN: user:password@tcp(host:port)/db
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", t.User, t.Password, hostPort, t.Database)
	}

	u := &url.URL{
		Scheme: schemeFor(t.Kind),
		Host:   hostPort,
	}
	if t.User != "" {
		u.User = url.UserPassword(t.User, t.Password)
	}
	q := url.Values{}
	switch t.Kind {
	case KindMSSQL:
		if t.Database != "" {
			q.Set("database", t.Database)
		}
	case KindMongoDB:
		// The database is selected by name at query time.
	default:
		if t.Database != "" {
			u.Path = "/" + t.Database
		}
	}
	if t.Kind == KindPostgres && t.SSLMode != "" {
		q.Set("sslmode", t.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func schemeFor(k Kind) string {
	switch k {
	case KindMSSQL:
		return "sqlserver"
	case KindClickHouse:
		return "clickhouse"
	case KindMongoDB:
		return "mongodb"
	}
	return "postgres"
}

// Redacted returns a copy of the target that is safe to log or return to clients.
func (t Target) Redacted() Target {
	if t.Password != "" {
		t.Password = "xxxxx"
	}
	t.URI = Redact(t.URI)
	return t
}

var (
	reKeywordPassword = regexp.MustCompile(`(?i)\b(password|pwd)(\s*=\s*)('(?:[^'\\]|\\.)*'|[^\s;&]+)`)
	reUserPassword    = regexp.MustCompile(`^([^:@/\s]+):([^@\s]*)@`)
)

// Redact masks the password in a connection string. URL-style strings keep their shape; keyword
// DSNs (host=... password=...) and native mysql DSNs (user:pass@tcp(...)) are masked by pattern.
func Redact(conn string) string {
	if conn == "" {
		return conn
	}
	if u, err := url.Parse(conn); err == nil && u.User != nil {
		conn = u.Redacted()
	} else if !strings.Contains(conn, "://") {
		conn = reUserPassword.ReplaceAllString(conn, "$1:xxxxx@")
	}
	return reKeywordPassword.ReplaceAllString(conn, "${1}${2}xxxxx")
}
