package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/malbeclabs/querybroker/config"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/stretchr/testify/require"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestConfig_FromEnv_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.FromEnv(envOf(nil), "")
	require.NoError(t, err)
	require.Equal(t, config.EnvDevelopment, cfg.Env)
	require.False(t, cfg.IsProduction())
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, ":2112", cfg.MetricsAddr)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, 32, cfg.MaxConcurrent)
	require.Empty(t, cfg.Targets)
	require.Equal(t, registry.Defaults{
		Host:     "localhost",
		Port:     5432,
		Database: "household",
		User:     "postgres",
		SSLMode:  "disable",
	}, cfg.Defaults)
	require.False(t, cfg.Delegate.Enabled())
}

func TestConfig_FromEnv_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := config.FromEnv(envOf(map[string]string{
		"QB_ENV":             "Production",
		"QB_LISTEN_ADDR":     ":9000",
		"QB_REQUEST_TIMEOUT": "5s",
		"QB_MAX_CONCURRENT":  "4",
		"QB_AI_ENDPOINT":     "https://llm.internal/v1",
		"QB_AI_KEY":          "secret",
		"QB_AI_PROVIDER":     "anthropic",
		"QB_CORS_ORIGINS":    "http://localhost:5173, https://casa.example.com,",
		"PGPORT":             "6543",
		"PGPASSWORD":         "pw",
		"QB_TARGETS": `[
			{"id": "users", "type": "relational-postgres", "uri": "postgres://u:p@h/users"},
			{"id": "docs", "type": "document", "uri": "mongodb://h/household", "database": "household"}
		]`,
	}), "")
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, ":9000", cfg.ListenAddr)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, 4, cfg.MaxConcurrent)
	require.True(t, cfg.Delegate.Enabled())
	require.Equal(t, "anthropic", cfg.Delegate.Provider)
	require.Equal(t, []string{"http://localhost:5173", "https://casa.example.com"}, cfg.CORSOrigins)
	require.Equal(t, 6543, cfg.Defaults.Port)
	require.Equal(t, "pw", cfg.Defaults.Password)

	require.Len(t, cfg.Targets, 2)
	require.Equal(t, registry.KindPostgres, cfg.Targets[0].Kind)
	require.Equal(t, registry.KindMongoDB, cfg.Targets[1].Kind)
	require.Equal(t, "household", cfg.Targets[1].Database)
}

func TestConfig_FromEnv_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]map[string]string{
		"bad env":     {"QB_ENV": "staging"},
		"bad port":    {"PGPORT": "five"},
		"bad timeout": {"QB_REQUEST_TIMEOUT": "soon"},
		"bad targets": {"QB_TARGETS": "{"},
		"bad kind":    {"QB_TARGETS": `[{"id":"x","type":"oracle"}]`},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := config.FromEnv(envOf(vars), "")
			require.Error(t, err)
		})
	}

	_, err := config.FromEnv(envOf(map[string]string{"QB_ENV": "staging"}), "")
	require.ErrorIs(t, err, config.ErrInvalidEnvironment)
}

func TestConfig_TargetsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - id: tasks
    type: pg
    name: Tareas
    host: db.internal
    port: 5433
    database: household
    user: app
    searchPath: [household, public]
  - id: analytics
    type: ch
    uri: clickhouse://ch.internal:9000/default
`), 0o600))

	// The file argument wins over QB_TARGETS.
	cfg, err := config.FromEnv(envOf(map[string]string{"QB_TARGETS": `[{"id":"ignored","type":"mysql"}]`}), path)
	require.NoError(t, err)
	require.Len(t, cfg.Targets, 2)
	require.Equal(t, registry.Target{
		ID:          "tasks",
		Kind:        registry.KindPostgres,
		DisplayName: "Tareas",
		Host:        "db.internal",
		Port:        5433,
		Database:    "household",
		User:        "app",
		SearchPath:  []string{"household", "public"},
	}, cfg.Targets[0])
	require.Equal(t, registry.KindClickHouse, cfg.Targets[1].Kind)

	cfg, err = config.FromEnv(envOf(map[string]string{"QB_TARGETS_FILE": path}), "")
	require.NoError(t, err)
	require.Len(t, cfg.Targets, 2)

	_, err = config.FromEnv(envOf(nil), filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_Load_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("QB_TEST_ONLY_LISTEN=:7070\n"), 0o600))
	t.Setenv("QB_TEST_ONLY_LISTEN", "")
	require.NoError(t, os.Unsetenv("QB_TEST_ONLY_LISTEN"))

	_, err := config.Load(config.LoadOptions{EnvFile: path})
	require.NoError(t, err)
	require.Equal(t, ":7070", os.Getenv("QB_TEST_ONLY_LISTEN"))

	_, err = config.Load(config.LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
	require.Error(t, err)
}
