package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sensei-app/sensei/internal/types"
)

func seedOrphan(t *testing.T, store interface {
	CreateTaskInstance(ctx context.Context, task *types.TaskInstance) error
}, id, name, version string, createdAt time.Time) {
	t.Helper()
	err := store.CreateTaskInstance(context.Background(), &types.TaskInstance{
		ID:        id,
		UserID:    "u1",
		ProjectID: "p1",
		DomainID:  "d1",
		Name:      name,
		Version:   version,
		Status:    types.StatusPending,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("seed orphan %s failed: %v", id, err)
	}
}

func TestLinkOrphansConvergeOnOneCanonical(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedOrphan(t, store, fmt.Sprintf("t%d", i), "Review chapter 3 draft", "", base.Add(time.Duration(i)*time.Minute))
	}

	linker, err := NewLinker(store)
	if err != nil {
		t.Fatalf("NewLinker failed: %v", err)
	}

	result, err := linker.LinkOrphans(ctx, "p1")
	if err != nil {
		t.Fatalf("LinkOrphans failed: %v", err)
	}

	if result.Linked != 3 {
		t.Errorf("expected 3 linked, got %d", result.Linked)
	}
	if result.Created != 1 {
		t.Errorf("same-name orphans must create exactly 1 canonical, got %d", result.Created)
	}

	// All three point at the same canonical
	var canonicalID string
	for i := 0; i < 3; i++ {
		inst, err := store.GetTaskInstance(ctx, fmt.Sprintf("t%d", i))
		if err != nil {
			t.Fatalf("GetTaskInstance failed: %v", err)
		}
		if inst.IsOrphaned() {
			t.Fatalf("t%d still orphaned", i)
		}
		if canonicalID == "" {
			canonicalID = *inst.CanonicalTaskID
		} else if *inst.CanonicalTaskID != canonicalID {
			t.Errorf("t%d linked to different canonical", i)
		}
	}
}

func TestLinkOrphansUsesExistingCanonical(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := &types.CanonicalTask{
		ID: "c1", UserID: "u1", ProjectID: "p1", DomainID: "d1",
		Name: "Review chapter 3 draft",
	}
	if err := store.CreateCanonicalTask(ctx, existing); err != nil {
		t.Fatalf("seed canonical failed: %v", err)
	}
	seedOrphan(t, store, "t1", "Review chapter 3 draft", "", time.Now().UTC())

	linker, _ := NewLinker(store)
	result, err := linker.LinkOrphans(ctx, "p1")
	if err != nil {
		t.Fatalf("LinkOrphans failed: %v", err)
	}

	if result.Linked != 1 || result.Created != 0 {
		t.Errorf("expected linked=1 created=0, got linked=%d created=%d", result.Linked, result.Created)
	}

	inst, _ := store.GetTaskInstance(ctx, "t1")
	if inst.CanonicalTaskID == nil || *inst.CanonicalTaskID != "c1" {
		t.Error("orphan should link to the pre-existing canonical")
	}
}

func TestLinkOrphansRespectsVersionBuckets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	seedOrphan(t, store, "t1", "Revise outline", "", now)
	seedOrphan(t, store, "t2", "Revise outline", "v2", now.Add(time.Minute))

	linker, _ := NewLinker(store)
	result, err := linker.LinkOrphans(ctx, "p1")
	if err != nil {
		t.Fatalf("LinkOrphans failed: %v", err)
	}

	if result.Created != 2 {
		t.Errorf("same name in different version buckets needs 2 canonicals, got %d", result.Created)
	}

	a, _ := store.GetTaskInstance(ctx, "t1")
	b, _ := store.GetTaskInstance(ctx, "t2")
	if a.CanonicalTaskID == nil || b.CanonicalTaskID == nil {
		t.Fatal("both instances should be linked")
	}
	if *a.CanonicalTaskID == *b.CanonicalTaskID {
		t.Error("version buckets must not share a canonical")
	}
}

func TestLinkOrphansIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedOrphan(t, store, "t1", "Review chapter 3 draft", "", time.Now().UTC())

	linker, _ := NewLinker(store)
	first, err := linker.LinkOrphans(ctx, "p1")
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	if first.Linked != 1 || first.Created != 1 {
		t.Fatalf("unexpected first pass: %+v", first)
	}

	second, err := linker.LinkOrphans(ctx, "p1")
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if second.Linked != 0 || second.Created != 0 {
		t.Errorf("second pass must be a no-op, got %+v", second)
	}
}

func TestLinkOrphansEmptyProject(t *testing.T) {
	store := newTestStore(t)

	linker, _ := NewLinker(store)
	if _, err := linker.LinkOrphans(context.Background(), ""); !types.IsValidation(err) {
		t.Errorf("expected validation error for empty project id, got %v", err)
	}

	// Project with no orphans returns zero counts
	result, err := linker.LinkOrphans(context.Background(), "p1")
	if err != nil {
		t.Fatalf("LinkOrphans failed: %v", err)
	}
	if result.Linked != 0 || result.Created != 0 || result.Skipped != 0 {
		t.Errorf("expected zero counts, got %+v", result)
	}
}
