package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sensei-app/sensei/internal/tasks"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Inspect and repair unlinked tasks",
}

var orphansLinkCmd = &cobra.Command{
	Use:   "link <project-id>",
	Short: "Link orphaned tasks to canonical tasks",
	Long: `Link every orphaned task in a project to a canonical task, creating
canonical tasks that do not exist yet. Matching is by exact name within the
task's (domain, version) scope; no AI calls are made, so repair works while
the similarity oracle is down. Safe to run repeatedly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		linker, err := tasks.NewLinker(store)
		if err != nil {
			return err
		}

		result, err := linker.LinkOrphans(ctx, args[0])
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Linked %d tasks (%d canonical tasks created", green("✓"), result.Linked, result.Created)
		if result.Skipped > 0 {
			fmt.Printf(", %d skipped", result.Skipped)
		}
		fmt.Println(")")
		return nil
	},
}

func init() {
	orphansCmd.AddCommand(orphansLinkCmd)
	rootCmd.AddCommand(orphansCmd)
}
