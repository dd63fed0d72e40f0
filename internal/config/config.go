// Package config loads application configuration.
//
// Precedence, lowest to highest: built-in defaults, an optional sensei.yaml
// file, environment variables. Subsystem configs (matcher thresholds, oracle
// retry tuning) live next to their packages; this package covers the wiring
// choices: which storage backend, where the server listens, which model.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sensei-app/sensei/internal/storage"
	"github.com/sensei-app/sensei/internal/storage/postgres"
)

// Config is the top-level application configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Oracle  OracleConfig  `yaml:"oracle"`
}

// StorageConfig selects and configures the data store backend
type StorageConfig struct {
	// Backend is "sqlite" (default) or "postgres"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file (default: sensei.db)
	Path string `yaml:"path"`

	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// OracleConfig holds similarity oracle settings. The API key is env-only
// (ANTHROPIC_API_KEY); it never lives in the config file.
type OracleConfig struct {
	Model string `yaml:"model"`
}

// Default returns the built-in defaults
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "sensei.db",
		},
		Server: ServerConfig{
			Addr:           ":8787",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}

// Load reads configuration with full precedence. path may be empty, in which
// case sensei.yaml is used if present and silently skipped if not.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = "sensei.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case explicit || !os.IsNotExist(err):
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config
//
// Environment variables:
//   - SENSEI_STORAGE_BACKEND: "sqlite" or "postgres"
//   - SENSEI_DB_PATH: SQLite database file path
//   - SENSEI_PG_HOST, SENSEI_PG_PORT, SENSEI_PG_DATABASE, SENSEI_PG_USER,
//     SENSEI_PG_PASSWORD, SENSEI_PG_SSLMODE: Postgres connection settings
//   - SENSEI_SERVER_ADDR: HTTP listen address
//   - SENSEI_ORACLE_MODEL: oracle model override
func applyEnv(cfg *Config) {
	setFromEnv("SENSEI_STORAGE_BACKEND", &cfg.Storage.Backend)
	setFromEnv("SENSEI_DB_PATH", &cfg.Storage.Path)
	setFromEnv("SENSEI_PG_HOST", &cfg.Storage.Postgres.Host)
	setFromEnv("SENSEI_PG_DATABASE", &cfg.Storage.Postgres.Database)
	setFromEnv("SENSEI_PG_USER", &cfg.Storage.Postgres.User)
	setFromEnv("SENSEI_PG_PASSWORD", &cfg.Storage.Postgres.Password)
	setFromEnv("SENSEI_PG_SSLMODE", &cfg.Storage.Postgres.SSLMode)
	setFromEnv("SENSEI_SERVER_ADDR", &cfg.Server.Addr)
	setFromEnv("SENSEI_ORACLE_MODEL", &cfg.Oracle.Model)

	if v := os.Getenv("SENSEI_PG_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Storage.Postgres.Port = port
		}
	}
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "":
		// Path defaulted in StorageConfig()
	case "postgres":
		if c.Storage.Postgres.Database == "" {
			return fmt.Errorf("postgres backend requires a database name")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	return nil
}

// StorageConfig converts to the storage package's config type
func (c *Config) StorageConfig() *storage.Config {
	sc := &storage.Config{
		Backend: storage.Backend(c.Storage.Backend),
		Path:    c.Storage.Path,
	}
	if sc.Backend == "" {
		sc.Backend = storage.BackendSQLite
	}
	if sc.Path == "" {
		sc.Path = "sensei.db"
	}
	if sc.Backend == storage.BackendPostgres {
		pg := postgres.DefaultConfig()
		if c.Storage.Postgres.Host != "" {
			pg.Host = c.Storage.Postgres.Host
		}
		if c.Storage.Postgres.Port != 0 {
			pg.Port = c.Storage.Postgres.Port
		}
		pg.Database = c.Storage.Postgres.Database
		if c.Storage.Postgres.User != "" {
			pg.User = c.Storage.Postgres.User
		}
		pg.Password = c.Storage.Postgres.Password
		if c.Storage.Postgres.SSLMode != "" {
			pg.SSLMode = c.Storage.Postgres.SSLMode
		}
		sc.Postgres = pg
	}
	return sc
}

func setFromEnv(key string, dest *string) {
	if v := os.Getenv(key); v != "" {
		*dest = v
	}
}
