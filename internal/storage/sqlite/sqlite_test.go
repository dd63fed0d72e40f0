package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sensei-app/sensei/internal/types"
)

// newTestStorage returns an in-memory store seeded with one project and one
// domain.
func newTestStorage(t *testing.T) (*SQLiteStorage, *types.Project, *types.Domain) {
	t.Helper()

	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	project := &types.Project{ID: "p1", UserID: "u1", Name: "Thesis"}
	if err := store.CreateProject(ctx, project); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	domain := &types.Domain{ID: "d1", UserID: "u1", ProjectID: "p1", Name: "Writing"}
	if err := store.CreateDomain(ctx, domain); err != nil {
		t.Fatalf("failed to create domain: %v", err)
	}
	return store, project, domain
}

func testCanonical(id, name, version string) *types.CanonicalTask {
	return &types.CanonicalTask{
		ID:        id,
		UserID:    "u1",
		ProjectID: "p1",
		DomainID:  "d1",
		Name:      name,
		Version:   version,
	}
}

func testInstance(id, name string, canonicalID *string) *types.TaskInstance {
	return &types.TaskInstance{
		ID:              id,
		UserID:          "u1",
		ProjectID:       "p1",
		DomainID:        "d1",
		CanonicalTaskID: canonicalID,
		Name:            name,
		Status:          types.StatusPending,
	}
}

func TestProjectAndDomainRoundTrip(t *testing.T) {
	store, project, domain := newTestStorage(t)
	ctx := context.Background()

	got, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "Thesis" {
		t.Errorf("unexpected project name: %s", got.Name)
	}

	gotDomain, err := store.GetDomain(ctx, domain.ID)
	if err != nil {
		t.Fatalf("GetDomain failed: %v", err)
	}
	if gotDomain.ProjectID != project.ID {
		t.Errorf("unexpected domain project: %s", gotDomain.ProjectID)
	}

	if _, err := store.GetDomain(ctx, "nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCanonicalTaskVersionBuckets(t *testing.T) {
	store, _, _ := newTestStorage(t)
	ctx := context.Background()

	// Same name in two version buckets plus the no-version bucket
	for i, version := range []string{"", "v2", "v2", ""} {
		c := testCanonical(fmt.Sprintf("c%d", i), fmt.Sprintf("Task %d", i), version)
		c.CreatedAt = time.Date(2026, 8, 1, 10, i, 0, 0, time.UTC)
		if err := store.CreateCanonicalTask(ctx, c); err != nil {
			t.Fatalf("CreateCanonicalTask failed: %v", err)
		}
	}

	scope := types.CanonicalFilter{UserID: "u1", ProjectID: "p1", DomainID: "d1"}

	noVersion, err := store.ListCanonicalTasks(ctx, scope)
	if err != nil {
		t.Fatalf("ListCanonicalTasks failed: %v", err)
	}
	if len(noVersion) != 2 {
		t.Fatalf("expected 2 no-version canonicals, got %d", len(noVersion))
	}
	if noVersion[0].ID != "c0" || noVersion[1].ID != "c3" {
		t.Errorf("expected creation order c0,c3 got %s,%s", noVersion[0].ID, noVersion[1].ID)
	}

	scope.Version = "v2"
	v2, err := store.ListCanonicalTasks(ctx, scope)
	if err != nil {
		t.Fatalf("ListCanonicalTasks(v2) failed: %v", err)
	}
	if len(v2) != 2 {
		t.Errorf("expected 2 v2 canonicals, got %d", len(v2))
	}

	// Whitespace-only version is the no-version bucket
	scope.Version = "   "
	padded, err := store.ListCanonicalTasks(ctx, scope)
	if err != nil {
		t.Fatalf("ListCanonicalTasks(padded) failed: %v", err)
	}
	if len(padded) != 2 {
		t.Errorf("whitespace version should select the no-version bucket, got %d rows", len(padded))
	}
}

func TestFindCanonicalTaskByName(t *testing.T) {
	store, _, _ := newTestStorage(t)
	ctx := context.Background()

	c := testCanonical("c1", "Review chapter draft", "")
	if err := store.CreateCanonicalTask(ctx, c); err != nil {
		t.Fatalf("CreateCanonicalTask failed: %v", err)
	}

	scope := types.CanonicalFilter{UserID: "u1", ProjectID: "p1", DomainID: "d1"}

	found, err := store.FindCanonicalTaskByName(ctx, scope, "  Review chapter draft  ")
	if err != nil {
		t.Fatalf("FindCanonicalTaskByName failed: %v", err)
	}
	if found.ID != "c1" {
		t.Errorf("unexpected canonical: %s", found.ID)
	}

	if _, err := store.FindCanonicalTaskByName(ctx, scope, "Something else"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// A different version bucket does not see the row
	scope.Version = "v2"
	if _, err := store.FindCanonicalTaskByName(ctx, scope, "Review chapter draft"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound across version buckets, got %v", err)
	}
}

func TestTaskInstanceLifecycle(t *testing.T) {
	store, _, _ := newTestStorage(t)
	ctx := context.Background()

	c := testCanonical("c1", "Review chapter draft", "")
	if err := store.CreateCanonicalTask(ctx, c); err != nil {
		t.Fatalf("CreateCanonicalTask failed: %v", err)
	}

	date := "2026-09-01"
	inst := testInstance("t1", "Review chapter 3 draft", &c.ID)
	inst.ScheduledDate = &date
	if err := store.CreateTaskInstance(ctx, inst); err != nil {
		t.Fatalf("CreateTaskInstance failed: %v", err)
	}

	got, err := store.GetTaskInstance(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTaskInstance failed: %v", err)
	}
	if got.Canonical == nil || got.Canonical.Name != "Review chapter draft" {
		t.Error("expected denormalized canonical summary")
	}
	if got.Domain == nil || got.Domain.Name != "Writing" {
		t.Error("expected denormalized domain summary")
	}
	if got.ScheduledDate == nil || *got.ScheduledDate != date {
		t.Error("scheduled date not round-tripped")
	}

	// Date filter
	byDate, err := store.ListTaskInstances(ctx, types.InstanceFilter{ProjectID: "p1", ScheduledDate: date})
	if err != nil {
		t.Fatalf("ListTaskInstances failed: %v", err)
	}
	if len(byDate) != 1 {
		t.Errorf("expected 1 task on %s, got %d", date, len(byDate))
	}

	// Backlog filter excludes dated rows
	backlog, err := store.ListTaskInstances(ctx, types.InstanceFilter{ProjectID: "p1", Backlog: true})
	if err != nil {
		t.Fatalf("ListTaskInstances(backlog) failed: %v", err)
	}
	if len(backlog) != 0 {
		t.Errorf("expected empty backlog, got %d rows", len(backlog))
	}

	// Update through the whitelist
	updated, err := store.UpdateTaskInstance(ctx, "t1", map[string]interface{}{
		"notes":  "second pass",
		"status": "in_progress",
	})
	if err != nil {
		t.Fatalf("UpdateTaskInstance failed: %v", err)
	}
	if updated.Notes != "second pass" || updated.Status != types.StatusInProgress {
		t.Errorf("update not applied: notes=%q status=%s", updated.Notes, updated.Status)
	}

	// Non-whitelisted column rejected
	if _, err := store.UpdateTaskInstance(ctx, "t1", map[string]interface{}{"user_id": "other"}); !types.IsValidation(err) {
		t.Errorf("expected validation error for non-updatable column, got %v", err)
	}

	// Complete
	spent := 45.0
	completed, err := store.CompleteTaskInstance(ctx, "t1", types.Completion{
		CompletedAt:         time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
		ActualTimeSpent:     &spent,
		ActualWorkCompleted: "reviewed all sections",
	})
	if err != nil {
		t.Fatalf("CompleteTaskInstance failed: %v", err)
	}
	if completed.Status != types.StatusCompleted {
		t.Errorf("expected completed status, got %s", completed.Status)
	}
	if completed.CompletedAt == nil || completed.ActualTimeSpent == nil || *completed.ActualTimeSpent != 45.0 {
		t.Error("completion metadata not recorded")
	}

	// Delete
	if err := store.DeleteTaskInstance(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTaskInstance failed: %v", err)
	}
	if _, err := store.GetTaskInstance(ctx, "t1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListOrphanedInstancesOrder(t *testing.T) {
	store, _, _ := newTestStorage(t)
	ctx := context.Background()

	c := testCanonical("c1", "Linked task", "")
	if err := store.CreateCanonicalTask(ctx, c); err != nil {
		t.Fatalf("CreateCanonicalTask failed: %v", err)
	}

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"t-new", "t-old", "t-linked"} {
		var canonicalID *string
		if id == "t-linked" {
			canonicalID = &c.ID
		}
		inst := testInstance(id, "Task "+id, canonicalID)
		// t-old gets the earliest creation time
		switch id {
		case "t-old":
			inst.CreatedAt = base
		default:
			inst.CreatedAt = base.Add(time.Duration(i+1) * time.Hour)
		}
		if err := store.CreateTaskInstance(ctx, inst); err != nil {
			t.Fatalf("CreateTaskInstance(%s) failed: %v", id, err)
		}
	}

	orphans, err := store.ListOrphanedInstances(ctx, "p1")
	if err != nil {
		t.Fatalf("ListOrphanedInstances failed: %v", err)
	}
	if len(orphans) != 2 {
		t.Fatalf("expected 2 orphans, got %d", len(orphans))
	}
	if orphans[0].ID != "t-old" || orphans[1].ID != "t-new" {
		t.Errorf("expected oldest-first order t-old,t-new got %s,%s", orphans[0].ID, orphans[1].ID)
	}

	// Linking clears the orphan
	if err := store.LinkTaskInstance(ctx, "t-old", c.ID); err != nil {
		t.Fatalf("LinkTaskInstance failed: %v", err)
	}
	orphans, err = store.ListOrphanedInstances(ctx, "p1")
	if err != nil {
		t.Fatalf("ListOrphanedInstances failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != "t-new" {
		t.Errorf("expected only t-new orphaned after link, got %d rows", len(orphans))
	}
}

func TestDeleteCanonicalOrphansInstances(t *testing.T) {
	store, _, _ := newTestStorage(t)
	ctx := context.Background()

	c := testCanonical("c1", "Review chapter draft", "")
	if err := store.CreateCanonicalTask(ctx, c); err != nil {
		t.Fatalf("CreateCanonicalTask failed: %v", err)
	}
	if err := store.CreateTaskInstance(ctx, testInstance("t1", "Review ch3", &c.ID)); err != nil {
		t.Fatalf("CreateTaskInstance failed: %v", err)
	}

	if err := store.DeleteCanonicalTask(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCanonicalTask failed: %v", err)
	}

	got, err := store.GetTaskInstance(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTaskInstance failed: %v", err)
	}
	if !got.IsOrphaned() {
		t.Error("instance should be orphaned after canonical delete, not removed")
	}
}

func TestCreateCanonicalTaskValidation(t *testing.T) {
	store, _, _ := newTestStorage(t)
	ctx := context.Background()

	bad := testCanonical("c1", "  ", "")
	if err := store.CreateCanonicalTask(ctx, bad); !types.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	// Trimming applied on write
	c := testCanonical("c2", "  Review chapter draft  ", "  v2  ")
	if err := store.CreateCanonicalTask(ctx, c); err != nil {
		t.Fatalf("CreateCanonicalTask failed: %v", err)
	}
	got, err := store.GetCanonicalTask(ctx, "c2")
	if err != nil {
		t.Fatalf("GetCanonicalTask failed: %v", err)
	}
	if got.Name != "Review chapter draft" || got.Version != "v2" {
		t.Errorf("expected trimmed fields, got name=%q version=%q", got.Name, got.Version)
	}
}

func TestUpdateCanonicalTaskNotes(t *testing.T) {
	store, _, _ := newTestStorage(t)
	ctx := context.Background()

	c := testCanonical("c1", "Review chapter draft", "")
	if err := store.CreateCanonicalTask(ctx, c); err != nil {
		t.Fatalf("CreateCanonicalTask failed: %v", err)
	}

	if err := store.UpdateCanonicalTaskNotes(ctx, c.ID, "Start with the conclusion"); err != nil {
		t.Fatalf("UpdateCanonicalTaskNotes failed: %v", err)
	}
	got, err := store.GetCanonicalTask(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCanonicalTask failed: %v", err)
	}
	if got.Notes != "Start with the conclusion" {
		t.Errorf("notes not persisted: %q", got.Notes)
	}

	// Clearing notes stores NULL, read back as empty
	if err := store.UpdateCanonicalTaskNotes(ctx, c.ID, ""); err != nil {
		t.Fatalf("clearing notes failed: %v", err)
	}
	got, _ = store.GetCanonicalTask(ctx, c.ID)
	if got.Notes != "" {
		t.Errorf("expected cleared notes, got %q", got.Notes)
	}

	if err := store.UpdateCanonicalTaskNotes(ctx, "missing", "x"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}
