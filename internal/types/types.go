package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by storage backends when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError marks malformed or missing caller input. It never triggers
// a fallback path and is surfaced to the caller as-is.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NormalizeVersion collapses the two "absent version" spellings (null and
// empty string) into a single canonical sentinel: the empty string after
// trimming. All scope matching goes through this.
func NormalizeVersion(v string) string {
	return strings.TrimSpace(v)
}

// Project is a top-level container owned by one user.
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Domain is a named slice of a project that tasks are logged against.
type Domain struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CanonicalTask represents one recurring activity within a project/domain
// scope. Many task instances can link back to it, enabling "how many times
// have I done X" aggregation.
//
// Within a (project, domain, version-bucket) scope canonical names should be
// semantically unique. The matcher prevents accidental duplicates on a
// best-effort basis; uniqueness is not enforced at the storage layer.
type CanonicalTask struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ProjectID   string    `json:"project_id"`
	DomainID    string    `json:"domain_id"`
	Name        string    `json:"canonical_name"`
	Description string    `json:"description,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Version     string    `json:"version,omitempty"` // "" = no-version bucket
	MeasureType string    `json:"measure_type,omitempty"`
	MeasureUnit string    `json:"measure_unit,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks if the canonical task has valid field values
func (c *CanonicalTask) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return &ValidationError{Field: "canonical_name", Msg: "is required"}
	}
	if len(name) > 200 {
		return &ValidationError{Field: "canonical_name", Msg: fmt.Sprintf("must be 200 characters or less (got %d)", len(name))}
	}
	if c.UserID == "" {
		return &ValidationError{Field: "user_id", Msg: "is required"}
	}
	if c.ProjectID == "" {
		return &ValidationError{Field: "project_id", Msg: "is required"}
	}
	if c.DomainID == "" {
		return &ValidationError{Field: "domain_id", Msg: "is required"}
	}
	if c.MeasureType != "" && !MeasureType(c.MeasureType).IsValid() {
		return &ValidationError{Field: "measure_type", Msg: fmt.Sprintf("invalid value: %s", c.MeasureType)}
	}
	return nil
}

// Status represents the current state of a task instance
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// MeasureType categorizes how progress on a task is measured
type MeasureType string

const (
	MeasureUnit       MeasureType = "unit"
	MeasurePercentage MeasureType = "percentage"
	MeasureStatus     MeasureType = "status"
	MeasureRevisions  MeasureType = "revisions"
)

// IsValid checks if the measure type value is valid
func (m MeasureType) IsValid() bool {
	switch m {
	case MeasureUnit, MeasurePercentage, MeasureStatus, MeasureRevisions:
		return true
	}
	return false
}

// TimeboxUnit is the unit for a task's timebox value
type TimeboxUnit string

const (
	TimeboxMinutes TimeboxUnit = "mins"
	TimeboxHours   TimeboxUnit = "hrs"
)

// IsValid checks if the timebox unit value is valid
func (u TimeboxUnit) IsValid() bool {
	switch u {
	case TimeboxMinutes, TimeboxHours:
		return true
	}
	return false
}

// CanonicalSummary is the denormalized canonical-task projection attached to
// task instances returned for display.
type CanonicalSummary struct {
	ID          string `json:"id"`
	Name        string `json:"canonical_name"`
	Version     string `json:"version,omitempty"`
	MeasureType string `json:"measure_type,omitempty"`
	MeasureUnit string `json:"measure_unit,omitempty"`
}

// DomainSummary is the denormalized domain projection attached to task
// instances returned for display.
type DomainSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TaskInstance is one concrete, dated (or backlog) unit of work.
//
// CanonicalTaskID, once set, always references a CanonicalTask in the same
// project and domain. A nil CanonicalTaskID marks the row orphaned and
// eligible for repair by the orphan linker.
type TaskInstance struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	ProjectID       string   `json:"project_id"`
	DomainID        string   `json:"domain_id"`
	CanonicalTaskID *string  `json:"canonical_task_id"`
	Name            string   `json:"task_name"`
	Description     string   `json:"description,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	Version         string   `json:"version,omitempty"` // "" = no-version bucket
	MeasureType     string   `json:"measure_type,omitempty"`
	MeasureUnit     string   `json:"measure_unit,omitempty"`
	TargetValue     *float64 `json:"target_value,omitempty"`
	TimeboxValue    *float64 `json:"timebox_value,omitempty"`
	TimeboxUnit     string   `json:"timebox_unit,omitempty"`
	ScheduledDate   *string  `json:"scheduled_date"` // ISO date, nil = backlog
	Status          Status   `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Completion metadata, populated only when Status is completed.
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ActualTimeSpent     *float64   `json:"actual_time_spent,omitempty"` // minutes
	ActualWorkCompleted string     `json:"actual_work_completed,omitempty"`

	// Denormalized display fields, populated on reads.
	Domain    *DomainSummary    `json:"domain,omitempty"`
	Canonical *CanonicalSummary `json:"canonical_task,omitempty"`
}

// IsOrphaned reports whether the instance lacks a canonical task link.
func (t *TaskInstance) IsOrphaned() bool {
	return t.CanonicalTaskID == nil || *t.CanonicalTaskID == ""
}

// Validate checks if the task instance has valid field values
func (t *TaskInstance) Validate() error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return &ValidationError{Field: "task_name", Msg: "is required"}
	}
	if len(name) > 200 {
		return &ValidationError{Field: "task_name", Msg: fmt.Sprintf("must be 200 characters or less (got %d)", len(name))}
	}
	if t.UserID == "" {
		return &ValidationError{Field: "user_id", Msg: "is required"}
	}
	if t.ProjectID == "" {
		return &ValidationError{Field: "project_id", Msg: "is required"}
	}
	if t.DomainID == "" {
		return &ValidationError{Field: "domain_id", Msg: "is required"}
	}
	if !t.Status.IsValid() {
		return &ValidationError{Field: "status", Msg: fmt.Sprintf("invalid value: %s", t.Status)}
	}
	if t.MeasureType != "" && !MeasureType(t.MeasureType).IsValid() {
		return &ValidationError{Field: "measure_type", Msg: fmt.Sprintf("invalid value: %s", t.MeasureType)}
	}
	if t.TimeboxUnit != "" && !TimeboxUnit(t.TimeboxUnit).IsValid() {
		return &ValidationError{Field: "timebox_unit", Msg: fmt.Sprintf("invalid value: %s", t.TimeboxUnit)}
	}
	if t.TargetValue != nil && *t.TargetValue <= 0 {
		return &ValidationError{Field: "target_value", Msg: "must be positive"}
	}
	if t.TimeboxValue != nil && *t.TimeboxValue <= 0 {
		return &ValidationError{Field: "timebox_value", Msg: "must be positive"}
	}
	return nil
}

// Completion carries the fields written when a task instance is checked in.
type Completion struct {
	CompletedAt         time.Time `json:"completed_at"`
	ActualTimeSpent     *float64  `json:"actual_time_spent,omitempty"`
	ActualWorkCompleted string    `json:"actual_work_completed,omitempty"`
}

// CanonicalFilter selects canonical tasks by scope. Version is compared
// after normalization: the empty string selects the no-version bucket.
type CanonicalFilter struct {
	UserID    string
	ProjectID string
	DomainID  string
	Version   string
}

// InstanceFilter selects task instances for dashboard queries.
// ScheduledDate selects one day; Backlog selects rows with no date.
// Limit caps the result set (0 = backend default).
type InstanceFilter struct {
	ProjectID     string
	ScheduledDate string
	Backlog       bool
	Limit         int
}
