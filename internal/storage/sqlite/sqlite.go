package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sensei-app/sensei/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage backend
func New(path string) (*SQLiteStorage, error) {
	// Ensure directory exists (":memory:" has no directory)
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; the pool must not open
	// a second one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateProject inserts a new project row
func (s *SQLiteStorage) CreateProject(ctx context.Context, project *types.Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`, project.ID, project.UserID, project.Name, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by id
func (s *SQLiteStorage) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var p types.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// CreateDomain inserts a new domain row
func (s *SQLiteStorage) CreateDomain(ctx context.Context, domain *types.Domain) error {
	if domain.CreatedAt.IsZero() {
		domain.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (id, user_id, project_id, name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, domain.ID, domain.UserID, domain.ProjectID, domain.Name, domain.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create domain: %w", err)
	}
	return nil
}

// GetDomain retrieves a domain by id
func (s *SQLiteStorage) GetDomain(ctx context.Context, id string) (*types.Domain, error) {
	var d types.Domain
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, project_id, name, created_at FROM domains WHERE id = ?
	`, id).Scan(&d.ID, &d.UserID, &d.ProjectID, &d.Name, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("domain %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return &d, nil
}

// nullable converts an empty string to a SQL NULL
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// orEmpty unwraps a nullable column into its empty-string form
func orEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
