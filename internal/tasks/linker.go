package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/sensei-app/sensei/internal/storage"
	"github.com/sensei-app/sensei/internal/types"
)

// LinkResult summarizes one orphan repair pass
type LinkResult struct {
	// Linked is the number of instances that gained a canonical link
	Linked int `json:"linked"`

	// Created is the number of canonical tasks created during the pass
	Created int `json:"created"`

	// Skipped is the number of orphans left untouched because of per-row
	// errors. They remain orphaned and eligible for the next pass.
	Skipped int `json:"skipped,omitempty"`
}

// Linker repairs orphaned task instances left behind by the degraded
// creation path.
type Linker struct {
	store storage.Storage
}

// NewLinker creates an orphan linker backed by the given store
func NewLinker(store storage.Storage) (*Linker, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Linker{store: store}, nil
}

// LinkOrphans links every orphaned instance in a project to a canonical task,
// creating canonicals that do not exist yet.
//
// Orphans are processed oldest first with exact trimmed-name lookup per row,
// so N orphans sharing a name converge on a single canonical (created once,
// found by the rest). The pass never uses the oracle: repair is deterministic
// and must work while the oracle is down, since that is what orphaned the
// rows in the first place. A failed row is logged and skipped; it stays
// orphaned for the next pass rather than aborting the batch.
//
// Running the pass twice is idempotent: a second run finds no orphans and
// returns zero counts.
func (l *Linker) LinkOrphans(ctx context.Context, projectID string) (*LinkResult, error) {
	if projectID == "" {
		return nil, &types.ValidationError{Field: "project_id", Msg: "is required"}
	}

	orphans, err := l.store.ListOrphanedInstances(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned instances: %w", err)
	}
	if len(orphans) == 0 {
		return &LinkResult{}, nil
	}

	log.Printf("[LINKER] repairing %d orphaned instances in project %s", len(orphans), projectID)

	result := &LinkResult{}
	for _, orphan := range orphans {
		canonical, created, err := l.resolveCanonical(ctx, orphan)
		if err != nil {
			log.Printf("[LINKER] skipping instance %s (%q): %v", orphan.ID, orphan.Name, err)
			result.Skipped++
			continue
		}
		if created {
			result.Created++
		}

		if err := l.store.LinkTaskInstance(ctx, orphan.ID, canonical.ID); err != nil {
			log.Printf("[LINKER] failed to link instance %s to canonical %s: %v",
				orphan.ID, canonical.ID, err)
			result.Skipped++
			continue
		}
		result.Linked++
	}

	log.Printf("[LINKER] pass complete: linked=%d created=%d skipped=%d",
		result.Linked, result.Created, result.Skipped)
	return result, nil
}

// resolveCanonical finds the canonical task for an orphan by exact trimmed
// name within the orphan's scope, creating it from the orphan's own fields
// when no row exists.
func (l *Linker) resolveCanonical(ctx context.Context, orphan *types.TaskInstance) (*types.CanonicalTask, bool, error) {
	scope := types.CanonicalFilter{
		UserID:    orphan.UserID,
		ProjectID: orphan.ProjectID,
		DomainID:  orphan.DomainID,
		Version:   types.NormalizeVersion(orphan.Version),
	}

	canonical, err := l.store.FindCanonicalTaskByName(ctx, scope, orphan.Name)
	if err == nil {
		return canonical, false, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up canonical by name: %w", err)
	}

	canonical = &types.CanonicalTask{
		ID:          uuid.New().String(),
		UserID:      orphan.UserID,
		ProjectID:   orphan.ProjectID,
		DomainID:    orphan.DomainID,
		Name:        orphan.Name,
		Description: orphan.Description,
		Version:     scope.Version,
		MeasureType: orphan.MeasureType,
		MeasureUnit: orphan.MeasureUnit,
	}
	if err := l.store.CreateCanonicalTask(ctx, canonical); err != nil {
		return nil, false, fmt.Errorf("creating canonical from orphan: %w", err)
	}
	return canonical, true, nil
}
