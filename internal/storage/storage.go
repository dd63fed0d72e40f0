package storage

import (
	"context"
	"fmt"

	"github.com/sensei-app/sensei/internal/storage/postgres"
	"github.com/sensei-app/sensei/internal/storage/sqlite"
	"github.com/sensei-app/sensei/internal/types"
)

// Storage defines the interface for the data store backends.
//
// All rows are scoped by owner: query methods filter on the ids carried in
// their filters, and callers are responsible for passing the authenticated
// user's id. The two collections the core depends on are canonical_tasks and
// task_instances; projects and domains exist so referential checks are real.
type Storage interface {
	// Projects & domains
	CreateProject(ctx context.Context, project *types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	CreateDomain(ctx context.Context, domain *types.Domain) error
	GetDomain(ctx context.Context, id string) (*types.Domain, error)

	// Canonical tasks
	CreateCanonicalTask(ctx context.Context, task *types.CanonicalTask) error
	GetCanonicalTask(ctx context.Context, id string) (*types.CanonicalTask, error)
	ListCanonicalTasks(ctx context.Context, filter types.CanonicalFilter) ([]*types.CanonicalTask, error)
	// FindCanonicalTaskByName looks up a canonical task by exact trimmed name
	// within a scope. Returns types.ErrNotFound when no row matches.
	FindCanonicalTaskByName(ctx context.Context, filter types.CanonicalFilter, name string) (*types.CanonicalTask, error)
	UpdateCanonicalTaskNotes(ctx context.Context, id, notes string) error
	// DeleteCanonicalTask removes the canonical task and orphans (does not
	// delete) its task instances.
	DeleteCanonicalTask(ctx context.Context, id string) error

	// Task instances
	CreateTaskInstance(ctx context.Context, task *types.TaskInstance) error
	GetTaskInstance(ctx context.Context, id string) (*types.TaskInstance, error)
	ListTaskInstances(ctx context.Context, filter types.InstanceFilter) ([]*types.TaskInstance, error)
	// ListOrphanedInstances returns instances with no canonical link for a
	// project, oldest first (stable repair order).
	ListOrphanedInstances(ctx context.Context, projectID string) ([]*types.TaskInstance, error)
	// LinkTaskInstance sets the canonical task id on an instance.
	LinkTaskInstance(ctx context.Context, instanceID, canonicalID string) error
	UpdateTaskInstance(ctx context.Context, id string, updates map[string]interface{}) (*types.TaskInstance, error)
	CompleteTaskInstance(ctx context.Context, id string, completion types.Completion) (*types.TaskInstance, error)
	DeleteTaskInstance(ctx context.Context, id string) error

	// Lifecycle
	Close() error
}

// Backend selects the storage implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config holds data store configuration
type Config struct {
	// Backend is "sqlite" (default) or "postgres"
	Backend Backend

	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests).
	Path string

	// Postgres holds connection settings when Backend is "postgres".
	Postgres *postgres.Config
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
		Path:    "sensei.db",
	}
}

// NewStorage creates a data store backend from config
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case BackendPostgres:
		return postgres.New(ctx, cfg.Postgres)
	case BackendSQLite, "":
		path := cfg.Path
		if path == "" {
			path = "sensei.db"
		}
		return sqlite.New(path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
