package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/malbeclabs/querybroker/pkg/registry"
	"github.com/malbeclabs/querybroker/pkg/synth"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidEnvironment = errors.New("invalid environment")
)

type Config struct {
	Env         string
	ListenAddr  string
	MetricsAddr string

	Targets  []registry.Target
	Defaults registry.Defaults

	Delegate    synth.DelegateConfig
	IdentityURL string
	AdminToken  string
	CORSOrigins []string

	RequestTimeout time.Duration
	MaxConcurrent  int
}

// IsProduction reports whether internal error detail must be hidden from callers.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

type LoadOptions struct {
	// EnvFile is loaded before reading the environment. When empty, a .env file in the working
	// directory is loaded if present.
	EnvFile string
	// TargetsFile overrides QB_TARGETS_FILE.
	TargetsFile string
}

// Load reads the configuration from the process environment.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	} else {
		_ = godotenv.Load()
	}
	return FromEnv(os.Getenv, opts.TargetsFile)
}

// FromEnv builds the configuration from getenv. targetsFile, when set, takes precedence over
// QB_TARGETS_FILE.
func FromEnv(getenv func(string) string, targetsFile string) (*Config, error) {
	cfg := &Config{
		Env:         strings.ToLower(strings.TrimSpace(getenv(VarEnv))),
		ListenAddr:  getenv(VarListenAddr),
		MetricsAddr: getenv(VarMetricsAddr),
		Delegate: synth.DelegateConfig{
			Provider: getenv(VarAIProvider),
			Endpoint: getenv(VarAIEndpoint),
			APIKey:   getenv(VarAIKey),
			Model:    getenv(VarAIModel),
		},
		IdentityURL: getenv(VarIdentityURL),
		AdminToken:  getenv(VarAdminToken),
		Defaults: registry.Defaults{
			Host:     stringOr(getenv(VarPGHost), DefaultPGHost),
			Database: stringOr(getenv(VarPGDatabase), DefaultPGDatabase),
			User:     stringOr(getenv(VarPGUser), DefaultPGUser),
			Password: getenv(VarPGPassword),
			SSLMode:  stringOr(getenv(VarPGSSLMode), DefaultPGSSLMode),
		},
	}

	switch cfg.Env {
	case "":
		cfg.Env = EnvDevelopment
	case EnvDevelopment, EnvProduction:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Env)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = DefaultMetricsAddr
	}

	var err error
	if cfg.Defaults.Port, err = intOr(getenv(VarPGPort), DefaultPGPort); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", VarPGPort, err)
	}
	if cfg.MaxConcurrent, err = intOr(getenv(VarMaxConcurrent), DefaultMaxConcurrent); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", VarMaxConcurrent, err)
	}
	cfg.RequestTimeout = DefaultRequestTimeout
	if v := getenv(VarRequestTimeout); v != "" {
		if cfg.RequestTimeout, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", VarRequestTimeout, err)
		}
	}
	if v := getenv(VarCORSOrigins); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	if targetsFile == "" {
		targetsFile = getenv(VarTargetsFile)
	}
	switch {
	case targetsFile != "":
		if cfg.Targets, err = ReadTargetsFile(targetsFile); err != nil {
			return nil, err
		}
	case getenv(VarTargets) != "":
		if cfg.Targets, err = ParseTargetsJSON([]byte(getenv(VarTargets))); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", VarTargets, err)
		}
	}

	return cfg, nil
}

// ParseTargetsJSON decodes a JSON array of targets.
func ParseTargetsJSON(data []byte) ([]registry.Target, error) {
	var targets []registry.Target
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, err
	}
	return normalizeTargets(targets)
}

type targetsFile struct {
	Targets []registry.Target `yaml:"targets"`
}

// ReadTargetsFile reads a YAML file with a top-level "targets" list.
func ReadTargetsFile(path string) ([]registry.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse targets file %s: %w", path, err)
	}
	targets, err := normalizeTargets(f.Targets)
	if err != nil {
		return nil, fmt.Errorf("invalid targets file %s: %w", path, err)
	}
	return targets, nil
}

func normalizeTargets(targets []registry.Target) ([]registry.Target, error) {
	for i, t := range targets {
		kind, err := registry.ParseKind(string(t.Kind))
		if err != nil {
			return nil, fmt.Errorf("target %d (%s): %w", i, t.ID, err)
		}
		targets[i].Kind = kind
	}
	return targets, nil
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
