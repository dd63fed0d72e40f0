// Package tasks implements the task creation flow and orphan repair.
//
// Creation is canonical-first: every new task instance is matched against the
// canonical tasks in its scope before insert, so repeat occurrences of the
// same activity link to one canonical row instead of spawning near-duplicate
// definitions. When the similarity oracle is unreachable the flow degrades to
// a direct insert with no canonical link; the orphan linker repairs those
// rows later.
package tasks

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/sensei-app/sensei/internal/ai"
	"github.com/sensei-app/sensei/internal/matcher"
	"github.com/sensei-app/sensei/internal/storage"
	"github.com/sensei-app/sensei/internal/types"
)

// CanonicalMatcher is the matching dependency of the creation flow.
// Satisfied by *matcher.Matcher; narrow so tests can substitute fakes.
type CanonicalMatcher interface {
	Match(ctx context.Context, input matcher.MatchInput) (*matcher.MatchDecision, error)
}

// Method records which path produced a task instance
type Method string

const (
	// MethodEnriched means the full flow ran: candidates were matched and
	// the instance is linked to a canonical task
	MethodEnriched Method = "enriched"

	// MethodDegraded means the oracle was unavailable and the instance was
	// inserted directly with no canonical link (orphaned, repairable)
	MethodDegraded Method = "degraded"
)

// CreateRequest describes one task to create
type CreateRequest struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	DomainID  string `json:"domain_id"`

	Name        string `json:"task_name"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Version     string `json:"version,omitempty"`

	MeasureType  string   `json:"measure_type,omitempty"`
	MeasureUnit  string   `json:"measure_unit,omitempty"`
	TargetValue  *float64 `json:"target_value,omitempty"`
	TimeboxValue *float64 `json:"timebox_value,omitempty"`
	TimeboxUnit  string   `json:"timebox_unit,omitempty"`

	// ScheduledDate is an ISO date (YYYY-MM-DD); nil schedules to backlog
	ScheduledDate *string `json:"scheduled_date"`
}

// CreateResult is the outcome of a task creation
type CreateResult struct {
	// Task is the created instance, re-read from storage with display fields
	Task *types.TaskInstance `json:"task"`

	// Canonical is the linked canonical task. Nil on the degraded path.
	Canonical *types.CanonicalTask `json:"canonical_task,omitempty"`

	// Method is "enriched" or "degraded"
	Method Method `json:"method"`

	// MatchedExisting is true when an existing canonical was reused rather
	// than a new one created
	MatchedExisting bool `json:"matched_existing"`

	// Confidence is the match confidence when MatchedExisting is true
	Confidence float64 `json:"confidence,omitempty"`
}

// Creator orchestrates canonical matching and task instance creation
type Creator struct {
	store   storage.Storage
	matcher CanonicalMatcher
}

// NewCreator creates a task creator backed by the given store and matcher
func NewCreator(store storage.Storage, m CanonicalMatcher) (*Creator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if m == nil {
		return nil, fmt.Errorf("matcher is required")
	}
	return &Creator{store: store, matcher: m}, nil
}

// Create runs the full creation flow for one task:
//
//  1. Validate the request and resolve its domain
//  2. Load canonical candidates scoped to (user, domain, version bucket)
//  3. Match against them (oracle with exact-name fallback)
//  4. Reuse the matched canonical, or create a new one
//  5. Insert the instance linked to that canonical
//
// If the oracle is unavailable (circuit open or service down) the flow
// degrades: the instance is inserted with no canonical link and the result
// method is "degraded". Validation and storage errors are returned as-is;
// they never trigger the degraded path.
func (c *Creator) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	instance := c.buildInstance(req)
	if err := instance.Validate(); err != nil {
		return nil, err
	}

	domain, err := c.store.GetDomain(ctx, req.DomainID)
	if err != nil {
		return nil, fmt.Errorf("resolving domain %s: %w", req.DomainID, err)
	}
	if domain.ProjectID != req.ProjectID {
		return nil, &types.ValidationError{Field: "domain_id", Msg: "domain does not belong to project"}
	}

	scope := types.CanonicalFilter{
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		DomainID:  req.DomainID,
		Version:   types.NormalizeVersion(req.Version),
	}
	candidates, err := c.store.ListCanonicalTasks(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("loading canonical candidates: %w", err)
	}

	decision, err := c.matcher.Match(ctx, matcher.MatchInput{
		Name:        req.Name,
		Description: req.Description,
		DomainName:  domain.Name,
		Candidates:  candidates,
	})
	if err != nil {
		if ai.IsUnavailable(err) {
			log.Printf("[TASKS] oracle unavailable, creating %q via degraded path: %v", req.Name, err)
			return c.createDegraded(ctx, instance)
		}
		return nil, fmt.Errorf("matching task %q: %w", req.Name, err)
	}

	var canonical *types.CanonicalTask
	if decision.Matched {
		canonical = decision.Canonical
		log.Printf("[TASKS] linking %q to existing canonical %s (confidence %.2f)",
			req.Name, canonical.ID, decision.Confidence)
	} else {
		canonical = &types.CanonicalTask{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			ProjectID:   req.ProjectID,
			DomainID:    req.DomainID,
			Name:        strings.TrimSpace(req.Name),
			Description: req.Description,
			Notes:       req.Notes,
			Version:     scope.Version,
			MeasureType: req.MeasureType,
			MeasureUnit: req.MeasureUnit,
		}
		if err := c.store.CreateCanonicalTask(ctx, canonical); err != nil {
			return nil, fmt.Errorf("creating canonical task: %w", err)
		}
		log.Printf("[TASKS] created new canonical %s for %q (compared %d candidates)",
			canonical.ID, canonical.Name, decision.ComparedCount)
	}

	instance.CanonicalTaskID = &canonical.ID
	if err := c.store.CreateTaskInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("creating task instance: %w", err)
	}

	created, err := c.store.GetTaskInstance(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("reading back task instance: %w", err)
	}

	return &CreateResult{
		Task:            created,
		Canonical:       canonical,
		Method:          MethodEnriched,
		MatchedExisting: decision.Matched,
		Confidence:      decision.Confidence,
	}, nil
}

// createDegraded inserts the instance with no canonical link. The row is
// orphaned and will be picked up by the orphan linker.
func (c *Creator) createDegraded(ctx context.Context, instance *types.TaskInstance) (*CreateResult, error) {
	instance.CanonicalTaskID = nil
	if err := c.store.CreateTaskInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("creating task instance (degraded): %w", err)
	}

	created, err := c.store.GetTaskInstance(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("reading back task instance: %w", err)
	}

	return &CreateResult{
		Task:   created,
		Method: MethodDegraded,
	}, nil
}

func (c *Creator) buildInstance(req CreateRequest) *types.TaskInstance {
	return &types.TaskInstance{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		ProjectID:     req.ProjectID,
		DomainID:      req.DomainID,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Notes:         req.Notes,
		Version:       types.NormalizeVersion(req.Version),
		MeasureType:   req.MeasureType,
		MeasureUnit:   req.MeasureUnit,
		TargetValue:   req.TargetValue,
		TimeboxValue:  req.TimeboxValue,
		TimeboxUnit:   req.TimeboxUnit,
		ScheduledDate: req.ScheduledDate,
		Status:        types.StatusPending,
	}
}
