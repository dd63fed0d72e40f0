package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sensei-app/sensei/internal/types"
)

// CreateCanonicalTask inserts a new canonical task row.
// An absent version is stored as NULL so the scope index treats the
// no-version bucket uniformly.
func (s *SQLiteStorage) CreateCanonicalTask(ctx context.Context, task *types.CanonicalTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.Name = strings.TrimSpace(task.Name)
	task.Version = types.NormalizeVersion(task.Version)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canonical_tasks (id, user_id, project_id, domain_id, canonical_name,
			description, notes, version, measure_type, measure_unit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.UserID, task.ProjectID, task.DomainID, task.Name,
		nullable(task.Description), nullable(task.Notes), nullable(task.Version),
		nullable(task.MeasureType), nullable(task.MeasureUnit), task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create canonical task: %w", err)
	}
	return nil
}

// GetCanonicalTask retrieves a canonical task by id
func (s *SQLiteStorage) GetCanonicalTask(ctx context.Context, id string) (*types.CanonicalTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, project_id, domain_id, canonical_name,
			description, notes, version, measure_type, measure_unit, created_at
		FROM canonical_tasks WHERE id = ?
	`, id)
	task, err := scanCanonical(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("canonical task %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canonical task: %w", err)
	}
	return task, nil
}

// ListCanonicalTasks returns canonical tasks in a (user, domain, version-bucket)
// scope in creation order. A filter with an empty Version selects rows whose
// version is absent.
func (s *SQLiteStorage) ListCanonicalTasks(ctx context.Context, filter types.CanonicalFilter) ([]*types.CanonicalTask, error) {
	query := `
		SELECT id, user_id, project_id, domain_id, canonical_name,
			description, notes, version, measure_type, measure_unit, created_at
		FROM canonical_tasks WHERE 1=1`
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.DomainID != "" {
		query += " AND domain_id = ?"
		args = append(args, filter.DomainID)
	}
	if v := types.NormalizeVersion(filter.Version); v != "" {
		query += " AND version = ?"
		args = append(args, v)
	} else {
		query += " AND version IS NULL"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list canonical tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.CanonicalTask
	for rows.Next() {
		task, err := scanCanonical(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan canonical task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// FindCanonicalTaskByName looks up a canonical task by exact trimmed name
// within a scope. Returns types.ErrNotFound when no row matches.
func (s *SQLiteStorage) FindCanonicalTaskByName(ctx context.Context, filter types.CanonicalFilter, name string) (*types.CanonicalTask, error) {
	query := `
		SELECT id, user_id, project_id, domain_id, canonical_name,
			description, notes, version, measure_type, measure_unit, created_at
		FROM canonical_tasks WHERE canonical_name = ?`
	args := []interface{}{strings.TrimSpace(name)}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.DomainID != "" {
		query += " AND domain_id = ?"
		args = append(args, filter.DomainID)
	}
	if v := types.NormalizeVersion(filter.Version); v != "" {
		query += " AND version = ?"
		args = append(args, v)
	} else {
		query += " AND version IS NULL"
	}
	query += " ORDER BY created_at ASC LIMIT 1"

	row := s.db.QueryRowContext(ctx, query, args...)
	task, err := scanCanonical(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find canonical task by name: %w", err)
	}
	return task, nil
}

// UpdateCanonicalTaskNotes updates the only mutable canonical task field
func (s *SQLiteStorage) UpdateCanonicalTaskNotes(ctx context.Context, id, notes string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE canonical_tasks SET notes = ? WHERE id = ?
	`, nullable(notes), id)
	if err != nil {
		return fmt.Errorf("failed to update canonical task notes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("canonical task %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// DeleteCanonicalTask removes the canonical task. The ON DELETE SET NULL
// constraint on task_instances orphans its instances rather than deleting them.
func (s *SQLiteStorage) DeleteCanonicalTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM canonical_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete canonical task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("canonical task %s: %w", id, types.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCanonical(row rowScanner) (*types.CanonicalTask, error) {
	var task types.CanonicalTask
	var description, notes, version, measureType, measureUnit sql.NullString
	err := row.Scan(&task.ID, &task.UserID, &task.ProjectID, &task.DomainID, &task.Name,
		&description, &notes, &version, &measureType, &measureUnit, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	task.Description = orEmpty(description)
	task.Notes = orEmpty(notes)
	task.Version = orEmpty(version)
	task.MeasureType = orEmpty(measureType)
	task.MeasureUnit = orEmpty(measureUnit)
	return &task, nil
}
