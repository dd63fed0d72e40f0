package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensei-app/sensei/internal/ai"
	"github.com/sensei-app/sensei/internal/config"
	"github.com/sensei-app/sensei/internal/matcher"
	"github.com/sensei-app/sensei/internal/storage"
	"github.com/sensei-app/sensei/internal/tasks"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "sensei",
	Short: "Sensei task tracker",
	Long: `Sensei tracks recurring work as canonical tasks.

Every task you add is matched against the canonical tasks already in its
project and domain, so logging "review chapter 3 draft" twice links both
entries to one canonical activity instead of creating near-duplicates.
Matching uses an AI similarity oracle with a deterministic exact-name
fallback; when the oracle is down, tasks are still created and repaired
later with 'sensei orphans link'.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: sensei.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves app config with CLI flag overrides applied
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.Backend = "sqlite"
		cfg.Storage.Path = dbPath
	}
	return cfg, nil
}

// openStore opens the configured storage backend
func openStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	return storage.NewStorage(ctx, cfg.StorageConfig())
}

// buildOracle creates the similarity oracle client, or nil when no API key
// is configured. Callers treat nil as "oracle unavailable".
func buildOracle(cfg *config.Config) *ai.Client {
	client, err := ai.NewClient(&ai.Config{Model: cfg.Oracle.Model})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: similarity oracle disabled: %v\n", err)
		return nil
	}
	return client
}

// buildCreator wires the task creator. With no oracle every creation takes
// the degraded path and is repairable via 'sensei orphans link'.
func buildCreator(store storage.Storage, oracle *ai.Client) (*tasks.Creator, error) {
	matchCfg, err := matcher.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	var m tasks.CanonicalMatcher
	if oracle != nil {
		m, err = matcher.New(oracle, matchCfg)
		if err != nil {
			return nil, err
		}
	} else {
		m = unavailableMatcher{}
	}

	return tasks.NewCreator(store, m)
}

// unavailableMatcher stands in when no oracle is configured, forcing the
// degraded creation path.
type unavailableMatcher struct{}

func (unavailableMatcher) Match(ctx context.Context, input matcher.MatchInput) (*matcher.MatchDecision, error) {
	return nil, ai.ErrOracleUnavailable
}
