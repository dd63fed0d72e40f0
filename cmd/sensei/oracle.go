package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var oracleCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Similarity oracle diagnostics",
}

var oraclePingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the similarity oracle",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		oracle := buildOracle(cfg)
		if oracle == nil {
			return fmt.Errorf("no oracle configured (set ANTHROPIC_API_KEY)")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		start := time.Now()
		if err := oracle.Ping(ctx); err != nil {
			return fmt.Errorf("oracle unreachable: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Oracle reachable (%s, %v)\n", green("✓"), oracle.Model(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	oracleCmd.AddCommand(oraclePingCmd)
	rootCmd.AddCommand(oracleCmd)
}
