package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sensei-app/sensei/internal/types"
)

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
func (s *SQLiteStorage) CreateTaskInstance(ctx context.Context, task *types.TaskInstance) error {
	if err := task.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	task.Version = types.NormalizeVersion(task.Version)

	var canonicalID sql.NullString
	if task.CanonicalTaskID != nil && *task.CanonicalTaskID != "" {
		canonicalID = sql.NullString{String: *task.CanonicalTaskID, Valid: true}
	}
	var scheduled sql.NullString
	if task.ScheduledDate != nil && *task.ScheduledDate != "" {
		scheduled = sql.NullString{String: *task.ScheduledDate, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_instances (id, user_id, project_id, domain_id, canonical_task_id,
			task_name, description, notes, version, measure_type, measure_unit,
			target_value, timebox_value, timebox_unit, scheduled_date, status,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.UserID, task.ProjectID, task.DomainID, canonicalID,
		task.Name, nullable(task.Description), nullable(task.Notes),
		nullable(task.Version), nullable(task.MeasureType), nullable(task.MeasureUnit),
		task.TargetValue, task.TimeboxValue, nullable(task.TimeboxUnit),
		scheduled, string(task.Status), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task instance: %w", err)
	}
	return nil
}

// GetTaskInstance retrieves a task instance by id, denormalized with its
// domain name and canonical task summary.
func (s *SQLiteStorage) GetTaskInstance(ctx context.Context, id string) (*types.TaskInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+instanceJoins+` WHERE t.id = ?`, id)
	task, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task instance %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task instance: %w", err)
	}
	return task, nil
}

// ListTaskInstances returns dashboard task queries: one scheduled date or the
// backlog, newest first, capped at 100 rows unless the filter narrows it.
func (s *SQLiteStorage) ListTaskInstances(ctx context.Context, filter types.InstanceFilter) ([]*types.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + instanceJoins + ` WHERE t.project_id = ?`
	args := []interface{}{filter.ProjectID}

	if filter.Backlog {
		query += " AND t.scheduled_date IS NULL"
	} else if filter.ScheduledDate != "" {
		query += " AND t.scheduled_date = ?"
		args = append(args, filter.ScheduledDate)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY t.created_at DESC LIMIT ?"
	args = append(args, limit)

	return s.queryInstances(ctx, query, args...)
}

// ListOrphanedInstances returns instances with no canonical link for a
// project, oldest first so batch repair runs in a stable order.
func (s *SQLiteStorage) ListOrphanedInstances(ctx context.Context, projectID string) ([]*types.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + instanceJoins + `
		WHERE t.project_id = ? AND t.canonical_task_id IS NULL
		ORDER BY t.created_at ASC`
	return s.queryInstances(ctx, query, projectID)
}

// LinkTaskInstance sets the canonical task id on an instance
func (s *SQLiteStorage) LinkTaskInstance(ctx context.Context, instanceID, canonicalID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE task_instances SET canonical_task_id = ?, updated_at = ? WHERE id = ?
	`, canonicalID, time.Now().UTC(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to link task instance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check link result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task instance %s: %w", instanceID, types.ErrNotFound)
	}
	return nil
}

// instanceUpdateColumns whitelists the columns callers may update directly.
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
func (s *SQLiteStorage) UpdateTaskInstance(ctx context.Context, id string, updates map[string]interface{}) (*types.TaskInstance, error) {
	if len(updates) == 0 {
		return s.GetTaskInstance(ctx, id)
	}

	// Build SET clause in sorted key order for deterministic SQL
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
		setClauses = append(setClauses, k+" = ?")
		args = append(args, updates[k])
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := "UPDATE task_instances SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task instance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("task instance %s: %w", id, types.ErrNotFound)
	}
	return s.GetTaskInstance(ctx, id)
}

// CompleteTaskInstance records completion metadata and flips status
func (s *SQLiteStorage) CompleteTaskInstance(ctx context.Context, id string, completion types.Completion) (*types.TaskInstance, error) {
	completedAt := completion.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE task_instances
		SET status = ?, completed_at = ?, actual_time_spent = ?, actual_work_completed = ?, updated_at = ?
		WHERE id = ?
	`, string(types.StatusCompleted), completedAt, completion.ActualTimeSpent,
		nullable(completion.ActualWorkCompleted), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task instance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check completion result: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("task instance %s: %w", id, types.ErrNotFound)
	}
	return s.GetTaskInstance(ctx, id)
}

// DeleteTaskInstance removes a task instance. The canonical task is untouched.
func (s *SQLiteStorage) DeleteTaskInstance(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM task_instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task instance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task instance %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) queryInstances(ctx context.Context, query string, args ...interface{}) ([]*types.TaskInstance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func scanInstance(row rowScanner) (*types.TaskInstance, error) {
	var task types.TaskInstance
	var canonicalID, description, notes, version, measureType, measureUnit sql.NullString
	var timeboxUnit, scheduledDate, actualWork sql.NullString
	var targetValue, timeboxValue, actualTime sql.NullFloat64
	var completedAt sql.NullTime
	var status string
	var domainID, domainName sql.NullString
	var cID, cName, cVersion, cMeasureType, cMeasureUnit sql.NullString

	err := row.Scan(&task.ID, &task.UserID, &task.ProjectID, &task.DomainID, &canonicalID,
		&task.Name, &description, &notes, &version, &measureType, &measureUnit,
		&targetValue, &timeboxValue, &timeboxUnit, &scheduledDate, &status,
		&completedAt, &actualTime, &actualWork,
		&task.CreatedAt, &task.UpdatedAt,
		&domainID, &domainName,
		&cID, &cName, &cVersion, &cMeasureType, &cMeasureUnit)
	if err != nil {
		return nil, err
	}

	if canonicalID.Valid {
		task.CanonicalTaskID = &canonicalID.String
	}
	task.Description = orEmpty(description)
	task.Notes = orEmpty(notes)
	task.Version = orEmpty(version)
	task.MeasureType = orEmpty(measureType)
	task.MeasureUnit = orEmpty(measureUnit)
	task.TimeboxUnit = orEmpty(timeboxUnit)
	if targetValue.Valid {
		task.TargetValue = &targetValue.Float64
	}
	if timeboxValue.Valid {
		task.TimeboxValue = &timeboxValue.Float64
	}
	if scheduledDate.Valid {
		task.ScheduledDate = &scheduledDate.String
	}
	task.Status = types.Status(status)
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if actualTime.Valid {
		task.ActualTimeSpent = &actualTime.Float64
	}
	task.ActualWorkCompleted = orEmpty(actualWork)

	if domainID.Valid {
		task.Domain = &types.DomainSummary{ID: domainID.String, Name: orEmpty(domainName)}
	}
	if cID.Valid {
		task.Canonical = &types.CanonicalSummary{
			ID:          cID.String,
			Name:        orEmpty(cName),
			Version:     orEmpty(cVersion),
			MeasureType: orEmpty(cMeasureType),
			MeasureUnit: orEmpty(cMeasureUnit),
		}
	}
	return &task, nil
}
