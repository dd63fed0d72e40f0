// Package matcher decides whether a new task is a repeat occurrence of an
// existing canonical task within its scope (user, domain, version bucket).
//
// The decision is oracle-first with a deterministic fallback: one AI call
// judges the whole candidate list, and if that call fails the matcher falls
// back to exact name comparison rather than failing the creation flow. Only
// oracle unavailability (circuit open, service down) propagates as an error,
// so callers can switch to their own degraded path.
package matcher

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sensei-app/sensei/internal/ai"
	"github.com/sensei-app/sensei/internal/types"
)

// Oracle is the similarity judgment the matcher depends on. Satisfied by
// *ai.Client; narrow so tests can substitute fakes.
type Oracle interface {
	JudgeSimilarity(ctx context.Context, task ai.NewTask, domainName string, candidates []ai.Candidate) (*ai.Verdict, error)
}

// MatchInput describes one task to match against its scope's canonicals.
// Candidates must already be scoped and ordered oldest-first; the matcher
// never queries storage itself.
type MatchInput struct {
	Name        string
	Description string
	DomainName  string
	Candidates  []*types.CanonicalTask
}

// MatchDecision is the outcome of a match attempt
type MatchDecision struct {
	// Matched is true when an existing canonical task should be reused
	Matched bool

	// Canonical is the matched canonical task. Only set when Matched is true.
	Canonical *types.CanonicalTask

	// Confidence is the oracle's score (0.0-1.0), or 1.0 for an exact
	// name match found by the fallback path
	Confidence float64

	// Reasoning explains the determination, for logs and debugging
	Reasoning string

	// ComparedCount is how many candidates were considered
	ComparedCount int

	// UsedFallback is true when the oracle call failed and the decision
	// came from exact name comparison instead
	UsedFallback bool
}

// Matcher implements oracle-backed canonical matching
type Matcher struct {
	oracle Oracle
	config Config
}

// New creates a Matcher with the given oracle and configuration
func New(oracle Oracle, config Config) (*Matcher, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matcher config: %w", err)
	}
	return &Matcher{oracle: oracle, config: config}, nil
}

// Match decides whether the input task matches any candidate canonical.
//
// An empty candidate list short-circuits to no-match without touching the
// oracle. A failed oracle call degrades to exact name matching. The only
// error returned is oracle unavailability, which the caller maps to its
// degraded creation path.
func (m *Matcher) Match(ctx context.Context, input MatchInput) (*MatchDecision, error) {
	candidates := input.Candidates
	if len(candidates) > m.config.MaxCandidates {
		candidates = candidates[:m.config.MaxCandidates]
	}

	if len(candidates) == 0 {
		return &MatchDecision{
			Matched:   false,
			Reasoning: "no existing canonical tasks in scope",
		}, nil
	}

	oracleCandidates := make([]ai.Candidate, len(candidates))
	for i, c := range candidates {
		oracleCandidates[i] = ai.Candidate{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.config.RequestTimeout)
	defer cancel()

	verdict, err := m.oracle.JudgeSimilarity(callCtx, ai.NewTask{
		Name:        input.Name,
		Description: input.Description,
	}, input.DomainName, oracleCandidates)
	if err != nil {
		if ai.IsUnavailable(err) {
			return nil, fmt.Errorf("similarity oracle unavailable: %w", err)
		}
		log.Printf("[MATCHER] oracle call failed, falling back to exact match: %v", err)
		return m.exactFallback(input.Name, candidates), nil
	}

	if verdict.MatchFound && verdict.Confidence >= m.config.ConfidenceThreshold {
		canonical := findByID(candidates, verdict.MatchedCanonicalTaskID)
		if canonical == nil {
			// JudgeSimilarity validates id membership; guard anyway
			log.Printf("[MATCHER] verdict references unknown canonical %s, treating as no match",
				verdict.MatchedCanonicalTaskID)
		} else {
			return &MatchDecision{
				Matched:       true,
				Canonical:     canonical,
				Confidence:    verdict.Confidence,
				Reasoning:     verdict.Reasoning,
				ComparedCount: len(candidates),
			}, nil
		}
	}

	return &MatchDecision{
		Matched:       false,
		Confidence:    verdict.Confidence,
		Reasoning:     verdict.Reasoning,
		ComparedCount: len(candidates),
	}, nil
}

// exactFallback compares trimmed, case-insensitive names in candidate order.
// The first hit wins, so repeated fallbacks converge on the oldest canonical.
func (m *Matcher) exactFallback(name string, candidates []*types.CanonicalTask) *MatchDecision {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, c := range candidates {
		if strings.ToLower(strings.TrimSpace(c.Name)) == want {
			return &MatchDecision{
				Matched:       true,
				Canonical:     c,
				Confidence:    1.0,
				Reasoning:     "exact name match (oracle unavailable for semantic comparison)",
				ComparedCount: len(candidates),
				UsedFallback:  true,
			}
		}
	}
	return &MatchDecision{
		Matched:       false,
		Reasoning:     "no exact name match (oracle unavailable for semantic comparison)",
		ComparedCount: len(candidates),
		UsedFallback:  true,
	}
}

func findByID(candidates []*types.CanonicalTask, id string) *types.CanonicalTask {
	for _, c := range candidates {
		if c.ID == id {
			return c
		}
	}
	return nil
}
