package config

import "time"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	DefaultListenAddr     = ":8080"
	DefaultMetricsAddr    = ":2112"
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxConcurrent  = 32

	DefaultPGHost     = "localhost"
	DefaultPGPort     = 5432
	DefaultPGDatabase = "household"
	DefaultPGUser     = "postgres"
	DefaultPGSSLMode  = "disable"
)

// Environment variables read by Load.
const (
	VarEnv            = "QB_ENV"
	VarListenAddr     = "QB_LISTEN_ADDR"
	VarMetricsAddr    = "QB_METRICS_ADDR"
	VarTargets        = "QB_TARGETS"
	VarTargetsFile    = "QB_TARGETS_FILE"
	VarAIEndpoint     = "QB_AI_ENDPOINT"
	VarAIKey          = "QB_AI_KEY"
	VarAIModel        = "QB_AI_MODEL"
	VarAIProvider     = "QB_AI_PROVIDER"
	VarIdentityURL    = "QB_IDENTITY_URL"
	VarAdminToken     = "QB_ADMIN_TOKEN"
	VarRequestTimeout = "QB_REQUEST_TIMEOUT"
	VarMaxConcurrent  = "QB_MAX_CONCURRENT"
	VarCORSOrigins    = "QB_CORS_ORIGINS"

	VarPGHost     = "PGHOST"
	VarPGPort     = "PGPORT"
	VarPGDatabase = "PGDATABASE"
	VarPGUser     = "PGUSER"
	VarPGPassword = "PGPASSWORD"
	VarPGSSLMode  = "PGSSLMODE"
)
