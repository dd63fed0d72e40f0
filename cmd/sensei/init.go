package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sensei-app/sensei/internal/types"
)

var (
	initProject string
	initDomain  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database and scaffold a project",
	Long: `Initialize the database and scaffold a project with one domain.

Example:
  sensei init --project "Thesis" --domain "Writing"`,
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

		project := &types.Project{
			ID:     uuid.New().String(),
			UserID: defaultUser(),
			Name:   initProject,
		}
		if err := store.CreateProject(ctx, project); err != nil {
			return fmt.Errorf("creating project: %w", err)
		}

		domain := &types.Domain{
			ID:        uuid.New().String(),
			UserID:    project.UserID,
			ProjectID: project.ID,
			Name:      initDomain,
		}
		if err := store.CreateDomain(ctx, domain); err != nil {
			return fmt.Errorf("creating domain: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s Initialized Sensei\n\n", green("✓"))
		fmt.Printf("  Project: %s (%s)\n", initProject, cyan(project.ID))
		fmt.Printf("  Domain:  %s (%s)\n", initDomain, cyan(domain.ID))
		fmt.Println()
		fmt.Printf("  Add your first task:\n")
		fmt.Printf("    sensei task add \"...\" --project %s --domain %s\n\n", project.ID, domain.ID)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initProject, "project", "My Project", "project name")
	initCmd.Flags().StringVar(&initDomain, "domain", "General", "domain name")
	rootCmd.AddCommand(initCmd)
}
