package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sensei-app/sensei/internal/ai"
	"github.com/sensei-app/sensei/internal/matcher"
	"github.com/sensei-app/sensei/internal/storage/sqlite"
	"github.com/sensei-app/sensei/internal/types"
)

// fakeMatcher returns a scripted decision or error
type fakeMatcher struct {
	decision *matcher.MatchDecision
	err      error
	calls    int
}

func (f *fakeMatcher) Match(ctx context.Context, input matcher.MatchInput) (*matcher.MatchDecision, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func newTestStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.CreateProject(ctx, &types.Project{ID: "p1", UserID: "u1", Name: "Thesis"}); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	if err := store.CreateDomain(ctx, &types.Domain{ID: "d1", UserID: "u1", ProjectID: "p1", Name: "Writing"}); err != nil {
		t.Fatalf("failed to create domain: %v", err)
	}
	return store
}

func baseRequest() CreateRequest {
	return CreateRequest{
		UserID:    "u1",
		ProjectID: "p1",
		DomainID:  "d1",
		Name:      "Review chapter 3 draft",
	}
}

func TestCreateFirstTaskCreatesCanonical(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &fakeMatcher{decision: &matcher.MatchDecision{Matched: false}}
	creator, err := NewCreator(store, m)
	if err != nil {
		t.Fatalf("NewCreator failed: %v", err)
	}

	result, err := creator.Create(ctx, baseRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if result.Method != MethodEnriched {
		t.Errorf("expected enriched method, got %s", result.Method)
	}
	if result.MatchedExisting {
		t.Error("first task in scope cannot match an existing canonical")
	}
	if result.Canonical == nil {
		t.Fatal("expected a canonical task")
	}
	if result.Task.IsOrphaned() {
		t.Error("instance should be linked")
	}
	if *result.Task.CanonicalTaskID != result.Canonical.ID {
		t.Error("instance linked to wrong canonical")
	}

	// Exactly one canonical and one instance exist
	canonicals, err := store.ListCanonicalTasks(ctx, types.CanonicalFilter{UserID: "u1", ProjectID: "p1", DomainID: "d1"})
	if err != nil {
		t.Fatalf("ListCanonicalTasks failed: %v", err)
	}
	if len(canonicals) != 1 {
		t.Errorf("expected exactly 1 canonical, got %d", len(canonicals))
	}
	instances, err := store.ListTaskInstances(ctx, types.InstanceFilter{ProjectID: "p1", Backlog: true})
	if err != nil {
		t.Fatalf("ListTaskInstances failed: %v", err)
	}
	if len(instances) != 1 {
		t.Errorf("expected exactly 1 instance, got %d", len(instances))
	}
}

func TestCreateReusesMatchedCanonical(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := &types.CanonicalTask{
		ID: "c1", UserID: "u1", ProjectID: "p1", DomainID: "d1",
		Name: "Review chapter draft",
	}
	if err := store.CreateCanonicalTask(ctx, existing); err != nil {
		t.Fatalf("seed canonical failed: %v", err)
	}

	m := &fakeMatcher{decision: &matcher.MatchDecision{
		Matched:    true,
		Canonical:  existing,
		Confidence: 0.88,
	}}
	creator, _ := NewCreator(store, m)

	result, err := creator.Create(ctx, baseRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if !result.MatchedExisting {
		t.Error("expected MatchedExisting")
	}
	if result.Canonical.ID != "c1" {
		t.Errorf("expected reuse of c1, got %s", result.Canonical.ID)
	}
	if result.Confidence != 0.88 {
		t.Errorf("confidence not carried through: %v", result.Confidence)
	}

	canonicals, _ := store.ListCanonicalTasks(ctx, types.CanonicalFilter{UserID: "u1", ProjectID: "p1", DomainID: "d1"})
	if len(canonicals) != 1 {
		t.Errorf("match must not create a second canonical, got %d", len(canonicals))
	}
}

func TestCreateDegradedWhenOracleUnavailable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &fakeMatcher{err: fmt.Errorf("similarity oracle unavailable: %w", ai.ErrOracleUnavailable)}
	creator, _ := NewCreator(store, m)

	result, err := creator.Create(ctx, baseRequest())
	if err != nil {
		t.Fatalf("degraded path must not fail creation: %v", err)
	}

	if result.Method != MethodDegraded {
		t.Errorf("expected degraded method, got %s", result.Method)
	}
	if result.Canonical != nil {
		t.Error("degraded path must not create a canonical")
	}
	if !result.Task.IsOrphaned() {
		t.Error("degraded instance must be orphaned")
	}

	canonicals, _ := store.ListCanonicalTasks(ctx, types.CanonicalFilter{UserID: "u1", ProjectID: "p1", DomainID: "d1"})
	if len(canonicals) != 0 {
		t.Errorf("expected no canonicals, got %d", len(canonicals))
	}
}

func TestCreateValidationErrorsSurface(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &fakeMatcher{decision: &matcher.MatchDecision{}}
	creator, _ := NewCreator(store, m)

	req := baseRequest()
	req.Name = "   "
	if _, err := creator.Create(ctx, req); !types.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if m.calls != 0 {
		t.Error("invalid request must not reach the matcher")
	}

	// Validation failure never falls through to the degraded path
	instances, _ := store.ListTaskInstances(ctx, types.InstanceFilter{ProjectID: "p1", Backlog: true})
	if len(instances) != 0 {
		t.Errorf("expected nothing persisted, got %d instances", len(instances))
	}
}

func TestCreateUnknownDomain(t *testing.T) {
	store := newTestStore(t)

	creator, _ := NewCreator(store, &fakeMatcher{decision: &matcher.MatchDecision{}})

	req := baseRequest()
	req.DomainID = "missing"
	_, err := creator.Create(context.Background(), req)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDomainProjectMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateProject(ctx, &types.Project{ID: "p2", UserID: "u1", Name: "Other"}); err != nil {
		t.Fatalf("seed project failed: %v", err)
	}
	if err := store.CreateDomain(ctx, &types.Domain{ID: "d2", UserID: "u1", ProjectID: "p2", Name: "Elsewhere"}); err != nil {
		t.Fatalf("seed domain failed: %v", err)
	}

	creator, _ := NewCreator(store, &fakeMatcher{decision: &matcher.MatchDecision{}})

	req := baseRequest()
	req.DomainID = "d2" // belongs to p2, request says p1
	_, err := creator.Create(ctx, req)
	if !types.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// failingOracle always errors without being "unavailable", exercising the
// matcher's exact-name fallback end to end.
type failingOracle struct{}

func (failingOracle) JudgeSimilarity(ctx context.Context, task ai.NewTask, domainName string, candidates []ai.Candidate) (*ai.Verdict, error) {
	return nil, errors.New("response was not valid JSON")
}

func TestCreateOracleFailureStillEnriched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	existing := &types.CanonicalTask{
		ID: "c1", UserID: "u1", ProjectID: "p1", DomainID: "d1",
		Name: "Review chapter 3 draft",
	}
	if err := store.CreateCanonicalTask(ctx, existing); err != nil {
		t.Fatalf("seed canonical failed: %v", err)
	}

	m, err := matcher.New(failingOracle{}, matcher.DefaultConfig())
	if err != nil {
		t.Fatalf("matcher.New failed: %v", err)
	}
	creator, _ := NewCreator(store, m)

	result, err := creator.Create(ctx, baseRequest())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if result.Method != MethodEnriched {
		t.Errorf("a single oracle failure must stay enriched, got %s", result.Method)
	}
	if !result.MatchedExisting || result.Canonical.ID != "c1" {
		t.Error("exact-name fallback should have linked the existing canonical")
	}
}

func TestCreateScheduledDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	creator, _ := NewCreator(store, &fakeMatcher{decision: &matcher.MatchDecision{}})

	date := "2026-09-01"
	req := baseRequest()
	req.ScheduledDate = &date

	result, err := creator.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if result.Task.ScheduledDate == nil || *result.Task.ScheduledDate != date {
		t.Error("scheduled date not persisted")
	}
	if result.Task.Status != types.StatusPending {
		t.Errorf("new tasks start pending, got %s", result.Task.Status)
	}
}
