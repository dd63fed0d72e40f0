package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sensei-app/sensei/internal/types"
)

// PostgresStorage implements the Storage interface using PostgreSQL.
// This is the hosted deployment target; the schema matches what the SQLite
// backend creates locally.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthCheck     time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "sensei",
		User:            "sensei",
		SSLMode:         "prefer",
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		HealthCheck:     1 * time.Minute,
	}
}

// New creates a new PostgreSQL storage backend with connection pooling
func New(ctx context.Context, cfg *Config) (*PostgresStorage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close closes the connection pool
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// CreateProject inserts a new project row
func (s *PostgresStorage) CreateProject(ctx context.Context, project *types.Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, project.ID, project.UserID, project.Name, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by id
func (s *PostgresStorage) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var p types.Project
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at FROM projects WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// CreateDomain inserts a new domain row
func (s *PostgresStorage) CreateDomain(ctx context.Context, domain *types.Domain) error {
	if domain.CreatedAt.IsZero() {
		domain.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO domains (id, user_id, project_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, domain.ID, domain.UserID, domain.ProjectID, domain.Name, domain.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create domain: %w", err)
	}
	return nil
}

// GetDomain retrieves a domain by id
func (s *PostgresStorage) GetDomain(ctx context.Context, id string) (*types.Domain, error) {
	var d types.Domain
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, project_id, name, created_at FROM domains WHERE id = $1
	`, id).Scan(&d.ID, &d.UserID, &d.ProjectID, &d.Name, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("domain %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return &d, nil
}

// nilIfEmpty maps the empty string to a SQL NULL parameter
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// deref unwraps a nullable text column into its empty-string form
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
