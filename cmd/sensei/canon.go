package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sensei-app/sensei/internal/types"
)

var canonCmd = &cobra.Command{
	Use:   "canon",
	Short: "Inspect canonical tasks",
}

var (
	canonUser    string
	canonDomain  string
	canonVersion string
)

var canonListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical tasks in a domain",
	Long: `List the canonical tasks in a (domain, version) scope, oldest first.
An empty --version selects tasks with no version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if canonDomain == "" {
			return fmt.Errorf("--domain is required")
		}

		ctx := context.Background()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		canonicals, err := store.ListCanonicalTasks(ctx, types.CanonicalFilter{
			UserID:   canonUser,
			DomainID: canonDomain,
			Version:  canonVersion,
		})
		if err != nil {
			return err
		}

		if len(canonicals) == 0 {
			fmt.Println("No canonical tasks found.")
			return nil
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, c := range canonicals {
			line := fmt.Sprintf("%s  %s", c.Name, gray(c.ID))
			if c.Notes != "" {
				line += "\n    " + gray(c.Notes)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var canonNotesCmd = &cobra.Command{
	Use:   "notes <canonical-id> <notes>",
	Short: "Set the notes on a canonical task",
	Args:  cobra.ExactArgs(2),
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

		if err := store.UpdateCanonicalTaskNotes(ctx, args[0], args[1]); err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Updated notes on %s\n", green("✓"), args[0])
		return nil
	},
}

func init() {
	canonCmd.PersistentFlags().StringVar(&canonUser, "user", defaultUser(), "user id")
	canonListCmd.Flags().StringVar(&canonDomain, "domain", "", "domain id")
	canonListCmd.Flags().StringVar(&canonVersion, "version", "", "version bucket (empty = no version)")

	canonCmd.AddCommand(canonListCmd, canonNotesCmd)
	rootCmd.AddCommand(canonCmd)
}
