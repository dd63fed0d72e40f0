package matcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensei-app/sensei/internal/ai"
	"github.com/sensei-app/sensei/internal/types"
)

// fakeOracle returns a scripted verdict or error and records what it was
// asked.
type fakeOracle struct {
	verdict *ai.Verdict
	err     error

	calls         int
	gotTask       ai.NewTask
	gotDomain     string
	gotCandidates []ai.Candidate
}

func (f *fakeOracle) JudgeSimilarity(ctx context.Context, task ai.NewTask, domainName string, candidates []ai.Candidate) (*ai.Verdict, error) {
	f.calls++
	f.gotTask = task
	f.gotDomain = domainName
	f.gotCandidates = candidates
	if f.err != nil {
		return nil, f.err
	}
	return f.verdict, nil
}

func canonical(id, name string) *types.CanonicalTask {
	return &types.CanonicalTask{
		ID:        id,
		UserID:    "u1",
		ProjectID: "p1",
		DomainID:  "d1",
		Name:      name,
	}
}

func newMatcher(t *testing.T, oracle Oracle) *Matcher {
	t.Helper()
	m, err := New(oracle, DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestMatchEmptyScopeSkipsOracle(t *testing.T) {
	oracle := &fakeOracle{}
	m := newMatcher(t, oracle)

	decision, err := m.Match(context.Background(), MatchInput{
		Name:       "Review chapter 3 draft",
		DomainName: "Writing",
		Candidates: nil,
	})
	require.NoError(t, err)

	assert.False(t, decision.Matched)
	assert.Equal(t, 0, oracle.calls, "oracle must not be called with no candidates")
}

func TestMatchConfidenceThreshold(t *testing.T) {
	candidates := []*types.CanonicalTask{
		canonical("c1", "Review chapter draft"),
		canonical("c2", "Write 500 words"),
	}

	tests := []struct {
		name       string
		verdict    ai.Verdict
		wantMatch  bool
		wantTarget string
	}{
		{
			name:       "high confidence matches",
			verdict:    ai.Verdict{MatchFound: true, MatchedCanonicalTaskID: "c1", Confidence: 0.82},
			wantMatch:  true,
			wantTarget: "c1",
		},
		{
			name:      "medium confidence rejected",
			verdict:   ai.Verdict{MatchFound: true, MatchedCanonicalTaskID: "c1", Confidence: 0.6},
			wantMatch: false,
		},
		{
			name:       "threshold boundary matches",
			verdict:    ai.Verdict{MatchFound: true, MatchedCanonicalTaskID: "c2", Confidence: 0.75},
			wantMatch:  true,
			wantTarget: "c2",
		},
		{
			name:      "oracle says no match",
			verdict:   ai.Verdict{MatchFound: false, Confidence: 0.3},
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &fakeOracle{verdict: &tt.verdict}
			m := newMatcher(t, oracle)

			decision, err := m.Match(context.Background(), MatchInput{
				Name:       "Review ch3 draft",
				DomainName: "Writing",
				Candidates: candidates,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantMatch, decision.Matched)
			if tt.wantMatch {
				require.NotNil(t, decision.Canonical)
				assert.Equal(t, tt.wantTarget, decision.Canonical.ID)
			} else {
				assert.Nil(t, decision.Canonical)
			}
			assert.Equal(t, len(candidates), decision.ComparedCount)
			assert.False(t, decision.UsedFallback)
		})
	}
}

func TestMatchOracleFailureFallsBackToExactMatch(t *testing.T) {
	candidates := []*types.CanonicalTask{
		canonical("c1", "Write 500 words"),
		canonical("c2", "Review Chapter 3 Draft"),
		canonical("c3", "review chapter 3 draft"), // later duplicate, must lose to c2
	}

	oracle := &fakeOracle{err: fmt.Errorf("malformed oracle response")}
	m := newMatcher(t, oracle)

	decision, err := m.Match(context.Background(), MatchInput{
		Name:       "  review chapter 3 DRAFT ",
		DomainName: "Writing",
		Candidates: candidates,
	})
	require.NoError(t, err, "single oracle failure must not surface as an error")

	assert.True(t, decision.UsedFallback)
	assert.True(t, decision.Matched)
	require.NotNil(t, decision.Canonical)
	assert.Equal(t, "c2", decision.Canonical.ID, "first candidate in order wins")
	assert.Equal(t, 1.0, decision.Confidence)
}

func TestMatchOracleFailureNoExactMatch(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("timeout waiting for response")}
	m := newMatcher(t, oracle)

	decision, err := m.Match(context.Background(), MatchInput{
		Name:       "Completely new activity",
		DomainName: "Writing",
		Candidates: []*types.CanonicalTask{canonical("c1", "Review chapter draft")},
	})
	require.NoError(t, err)

	assert.True(t, decision.UsedFallback)
	assert.False(t, decision.Matched)
}

func TestMatchOracleUnavailablePropagates(t *testing.T) {
	for _, sentinel := range []error{ai.ErrOracleUnavailable, ai.ErrCircuitOpen} {
		oracle := &fakeOracle{err: fmt.Errorf("call failed: %w", sentinel)}
		m := newMatcher(t, oracle)

		_, err := m.Match(context.Background(), MatchInput{
			Name:       "Review chapter draft",
			DomainName: "Writing",
			Candidates: []*types.CanonicalTask{canonical("c1", "Review chapter draft")},
		})
		require.Error(t, err)
		assert.True(t, ai.IsUnavailable(err), "unavailability must survive wrapping")
	}
}

func TestMatchCapsCandidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCandidates = 2

	oracle := &fakeOracle{verdict: &ai.Verdict{MatchFound: false, Confidence: 0.1}}
	m, err := New(oracle, cfg)
	require.NoError(t, err)

	_, err = m.Match(context.Background(), MatchInput{
		Name:       "New task",
		DomainName: "Writing",
		Candidates: []*types.CanonicalTask{
			canonical("c1", "a"),
			canonical("c2", "b"),
			canonical("c3", "c"),
		},
	})
	require.NoError(t, err)

	assert.Len(t, oracle.gotCandidates, 2)
	assert.Equal(t, "c1", oracle.gotCandidates[0].ID, "oldest candidates are kept")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}},
		{name: "threshold too high", mutate: func(c *Config) { c.ConfidenceThreshold = 1.5 }, expectError: true},
		{name: "threshold negative", mutate: func(c *Config) { c.ConfidenceThreshold = -0.1 }, expectError: true},
		{name: "zero candidates", mutate: func(c *Config) { c.MaxCandidates = 0 }, expectError: true},
		{name: "too many candidates", mutate: func(c *Config) { c.MaxCandidates = 1000 }, expectError: true},
		{name: "zero timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, expectError: true},
		{name: "huge timeout", mutate: func(c *Config) { c.RequestTimeout = time.Hour }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SENSEI_MATCH_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("SENSEI_MATCH_MAX_CANDIDATES", "10")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.ConfidenceThreshold)
	assert.Equal(t, 10, cfg.MaxCandidates)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout, "unset vars keep defaults")

	t.Setenv("SENSEI_MATCH_CONFIDENCE_THRESHOLD", "not-a-number")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}
