package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sensei-app/sensei/internal/types"
)

// CreateCanonicalTask inserts a new canonical task row
func (s *PostgresStorage) CreateCanonicalTask(ctx context.Context, task *types.CanonicalTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.Name = strings.TrimSpace(task.Name)
	task.Version = types.NormalizeVersion(task.Version)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO canonical_tasks (id, user_id, project_id, domain_id, canonical_name,
			description, notes, version, measure_type, measure_unit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, task.ID, task.UserID, task.ProjectID, task.DomainID, task.Name,
		nilIfEmpty(task.Description), nilIfEmpty(task.Notes), nilIfEmpty(task.Version),
		nilIfEmpty(task.MeasureType), nilIfEmpty(task.MeasureUnit), task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create canonical task: %w", err)
	}
	return nil
}

// GetCanonicalTask retrieves a canonical task by id
func (s *PostgresStorage) GetCanonicalTask(ctx context.Context, id string) (*types.CanonicalTask, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, project_id, domain_id, canonical_name,
			description, notes, version, measure_type, measure_unit, created_at
		FROM canonical_tasks WHERE id = $1
	`, id)
	task, err := scanCanonical(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("canonical task %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canonical task: %w", err)
	}
	return task, nil
}

// canonicalScopeClause appends the scope conditions of a CanonicalFilter to a
// query, returning the updated query and args.
func canonicalScopeClause(query string, args []interface{}, filter types.CanonicalFilter) (string, []interface{}) {
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if filter.DomainID != "" {
		args = append(args, filter.DomainID)
		query += fmt.Sprintf(" AND domain_id = $%d", len(args))
	}
	if v := types.NormalizeVersion(filter.Version); v != "" {
		args = append(args, v)
		query += fmt.Sprintf(" AND version = $%d", len(args))
	} else {
		query += " AND version IS NULL"
	}
	return query, args
}

// ListCanonicalTasks returns canonical tasks in a scope in creation order
func (s *PostgresStorage) ListCanonicalTasks(ctx context.Context, filter types.CanonicalFilter) ([]*types.CanonicalTask, error) {
	query := `
		SELECT id, user_id, project_id, domain_id, canonical_name,
			description, notes, version, measure_type, measure_unit, created_at
		FROM canonical_tasks WHERE TRUE`
	query, args := canonicalScopeClause(query, nil, filter)
	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
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

// FindCanonicalTaskByName looks up a canonical task by exact trimmed name within a scope
func (s *PostgresStorage) FindCanonicalTaskByName(ctx context.Context, filter types.CanonicalFilter, name string) (*types.CanonicalTask, error) {
	args := []interface{}{strings.TrimSpace(name)}
	query := `
		SELECT id, user_id, project_id, domain_id, canonical_name,
			description, notes, version, measure_type, measure_unit, created_at
		FROM canonical_tasks WHERE canonical_name = $1`
	query, args = canonicalScopeClause(query, args, filter)
	query += " ORDER BY created_at ASC LIMIT 1"

	row := s.pool.QueryRow(ctx, query, args...)
	task, err := scanCanonical(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find canonical task by name: %w", err)
	}
	return task, nil
}

// UpdateCanonicalTaskNotes updates the only mutable canonical task field
func (s *PostgresStorage) UpdateCanonicalTaskNotes(ctx context.Context, id, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE canonical_tasks SET notes = $1 WHERE id = $2
	`, nilIfEmpty(notes), id)
	if err != nil {
		return fmt.Errorf("failed to update canonical task notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("canonical task %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// DeleteCanonicalTask removes the canonical task; instances are orphaned by
// the ON DELETE SET NULL constraint.
func (s *PostgresStorage) DeleteCanonicalTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM canonical_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete canonical task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("canonical task %s: %w", id, types.ErrNotFound)
	}
	return nil
}

const instanceColumns = `
	t.id, t.user_id, t.project_id, t.domain_id, t.canonical_task_id,
	t.task_name, t.description, t.notes, t.version, t.measure_type, t.measure_unit,
	t.target_value, t.timebox_value, t.timebox_unit, t.scheduled_date, t.status,
	t.completed_at, t.actual_time_spent, t.actual_work_completed,
	t.created_at, t.updated_at,
	d.id, d.name,
	c.id, c.canonical_name, c.version, c.measure_type, c.measure_unit`

const instanceJoins = `
	FROM task_instances t
	JOIN domains d ON d.id = t.domain_id
	LEFT JOIN canonical_tasks c ON c.id = t.canonical_task_id`

// CreateTaskInstance inserts a new task instance row
func (s *PostgresStorage) CreateTaskInstance(ctx context.Context, task *types.TaskInstance) error {
	if err := task.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	task.Version = types.NormalizeVersion(task.Version)

	var canonicalID *string
	if task.CanonicalTaskID != nil && *task.CanonicalTaskID != "" {
		canonicalID = task.CanonicalTaskID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_instances (id, user_id, project_id, domain_id, canonical_task_id,
			task_name, description, notes, version, measure_type, measure_unit,
			target_value, timebox_value, timebox_unit, scheduled_date, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, task.ID, task.UserID, task.ProjectID, task.DomainID, canonicalID,
		task.Name, nilIfEmpty(task.Description), nilIfEmpty(task.Notes),
		nilIfEmpty(task.Version), nilIfEmpty(task.MeasureType), nilIfEmpty(task.MeasureUnit),
		task.TargetValue, task.TimeboxValue, nilIfEmpty(task.TimeboxUnit),
		task.ScheduledDate, string(task.Status), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task instance: %w", err)
	}
	return nil
}

// GetTaskInstance retrieves a denormalized task instance by id
func (s *PostgresStorage) GetTaskInstance(ctx context.Context, id string) (*types.TaskInstance, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+instanceColumns+instanceJoins+` WHERE t.id = $1`, id)
	task, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task instance %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task instance: %w", err)
	}
	return task, nil
}

// ListTaskInstances returns dashboard task queries, newest first, capped at 100
func (s *PostgresStorage) ListTaskInstances(ctx context.Context, filter types.InstanceFilter) ([]*types.TaskInstance, error) {
	args := []interface{}{filter.ProjectID}
	query := `SELECT ` + instanceColumns + instanceJoins + ` WHERE t.project_id = $1`

	if filter.Backlog {
		query += " AND t.scheduled_date IS NULL"
	} else if filter.ScheduledDate != "" {
		args = append(args, filter.ScheduledDate)
		query += fmt.Sprintf(" AND t.scheduled_date = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY t.created_at DESC LIMIT $%d", len(args))

	return s.queryInstances(ctx, query, args...)
}

// ListOrphanedInstances returns unlinked instances for a project, oldest first
func (s *PostgresStorage) ListOrphanedInstances(ctx context.Context, projectID string) ([]*types.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + instanceJoins + `
		WHERE t.project_id = $1 AND t.canonical_task_id IS NULL
		ORDER BY t.created_at ASC`
	return s.queryInstances(ctx, query, projectID)
}

// LinkTaskInstance sets the canonical task id on an instance
func (s *PostgresStorage) LinkTaskInstance(ctx context.Context, instanceID, canonicalID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_instances SET canonical_task_id = $1, updated_at = $2 WHERE id = $3
	`, canonicalID, time.Now().UTC(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to link task instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task instance %s: %w", instanceID, types.ErrNotFound)
	}
	return nil
}

var instanceUpdateColumns = map[string]bool{
	"task_name":      true,
	"description":    true,
	"notes":          true,
	"version":        true,
	"measure_type":   true,
	"measure_unit":   true,
	"target_value":   true,
	"timebox_value":  true,
	"timebox_unit":   true,
	"scheduled_date": true,
	"status":         true,
}

// UpdateTaskInstance applies a partial field update and returns the fresh row
func (s *PostgresStorage) UpdateTaskInstance(ctx context.Context, id string, updates map[string]interface{}) (*types.TaskInstance, error) {
	if len(updates) == 0 {
		return s.GetTaskInstance(ctx, id)
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		if !instanceUpdateColumns[k] {
			return nil, &types.ValidationError{Field: k, Msg: "is not an updatable column"}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	setClauses := make([]string, 0, len(keys)+1)
	args := make([]interface{}, 0, len(keys)+2)
	for _, k := range keys {
		args = append(args, updates[k])
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	args = append(args, time.Now().UTC())
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE task_instances SET %s WHERE id = $%d",
		strings.Join(setClauses, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("task instance %s: %w", id, types.ErrNotFound)
	}
	return s.GetTaskInstance(ctx, id)
}

// CompleteTaskInstance records completion metadata and flips status
func (s *PostgresStorage) CompleteTaskInstance(ctx context.Context, id string, completion types.Completion) (*types.TaskInstance, error) {
	completedAt := completion.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_instances
		SET status = $1, completed_at = $2, actual_time_spent = $3, actual_work_completed = $4, updated_at = $5
		WHERE id = $6
	`, string(types.StatusCompleted), completedAt, completion.ActualTimeSpent,
		nilIfEmpty(completion.ActualWorkCompleted), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("task instance %s: %w", id, types.ErrNotFound)
	}
	return s.GetTaskInstance(ctx, id)
}

// DeleteTaskInstance removes a task instance; the canonical task is untouched
func (s *PostgresStorage) DeleteTaskInstance(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM task_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task instance %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *PostgresStorage) queryInstances(ctx context.Context, query string, args ...interface{}) ([]*types.TaskInstance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task instances: %w", err)
	}
	defer rows.Close()

	var tasks []*types.TaskInstance
	for rows.Next() {
		task, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task instance: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCanonical(row rowScanner) (*types.CanonicalTask, error) {
	var task types.CanonicalTask
	var description, notes, version, measureType, measureUnit *string
	err := row.Scan(&task.ID, &task.UserID, &task.ProjectID, &task.DomainID, &task.Name,
		&description, &notes, &version, &measureType, &measureUnit, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	task.Description = deref(description)
	task.Notes = deref(notes)
	task.Version = deref(version)
	task.MeasureType = deref(measureType)
	task.MeasureUnit = deref(measureUnit)
	return &task, nil
}

func scanInstance(row rowScanner) (*types.TaskInstance, error) {
	var task types.TaskInstance
	var description, notes, version, measureType, measureUnit *string
	var timeboxUnit, actualWork, status *string
	var domainID, domainName *string
	var cID, cName, cVersion, cMeasureType, cMeasureUnit *string

	err := row.Scan(&task.ID, &task.UserID, &task.ProjectID, &task.DomainID, &task.CanonicalTaskID,
		&task.Name, &description, &notes, &version, &measureType, &measureUnit,
		&task.TargetValue, &task.TimeboxValue, &timeboxUnit, &task.ScheduledDate, &status,
		&task.CompletedAt, &task.ActualTimeSpent, &actualWork,
		&task.CreatedAt, &task.UpdatedAt,
		&domainID, &domainName,
		&cID, &cName, &cVersion, &cMeasureType, &cMeasureUnit)
	if err != nil {
		return nil, err
	}

	task.Description = deref(description)
	task.Notes = deref(notes)
	task.Version = deref(version)
	task.MeasureType = deref(measureType)
	task.MeasureUnit = deref(measureUnit)
	task.TimeboxUnit = deref(timeboxUnit)
	task.Status = types.Status(deref(status))
	task.ActualWorkCompleted = deref(actualWork)

	if domainID != nil {
		task.Domain = &types.DomainSummary{ID: *domainID, Name: deref(domainName)}
	}
	if cID != nil {
		task.Canonical = &types.CanonicalSummary{
			ID:          *cID,
			Name:        deref(cName),
			Version:     deref(cVersion),
			MeasureType: deref(cMeasureType),
			MeasureUnit: deref(cMeasureUnit),
		}
	}
	return &task, nil
}
