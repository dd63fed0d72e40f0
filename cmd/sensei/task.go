package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sensei-app/sensei/internal/tasks"
	"github.com/sensei-app/sensei/internal/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and inspect tasks",
}

var (
	taskUser        string
	taskProject     string
	taskDomain      string
	taskDesc        string
	taskVersion     string
	taskDate        string
	taskMeasure     string
	taskMeasureUnit string
	taskTarget      float64
	taskTimebox     float64
	taskTimeboxUnit string
)

var taskAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a task, linking it to a canonical task in its domain",
	Long: `Add a task. The task is matched against existing canonical tasks in its
(project, domain, version) scope; a repeat occurrence links to the existing
canonical, a new activity creates one. Without a --date the task goes to
the backlog.

Example:
  sensei task add "Review chapter 3 draft" --project p1 --domain d1 --date 2026-09-01`,
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

		creator, err := buildCreator(store, buildOracle(cfg))
		if err != nil {
			return err
		}

		req := tasks.CreateRequest{
			UserID:      taskUser,
			ProjectID:   taskProject,
			DomainID:    taskDomain,
			Name:        args[0],
			Description: taskDesc,
			Version:     taskVersion,
			MeasureType: taskMeasure,
			MeasureUnit: taskMeasureUnit,
			TimeboxUnit: taskTimeboxUnit,
		}
		if taskDate != "" {
			if _, err := time.Parse("2006-01-02", taskDate); err != nil {
				return fmt.Errorf("invalid --date (want YYYY-MM-DD): %w", err)
			}
			req.ScheduledDate = &taskDate
		}
		if taskTarget > 0 {
			req.TargetValue = &taskTarget
		}
		if taskTimebox > 0 {
			req.TimeboxValue = &taskTimebox
		}

		result, err := creator.Create(ctx, req)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		fmt.Printf("%s Created task %s\n", green("✓"), cyan(result.Task.ID))
		switch {
		case result.Method == tasks.MethodDegraded:
			fmt.Printf("  %s oracle unavailable; task is unlinked (run 'sensei orphans link %s')\n",
				yellow("!"), taskProject)
		case result.MatchedExisting:
			fmt.Printf("  Linked to existing canonical %s (%s, confidence %.2f)\n",
				cyan(result.Canonical.ID), result.Canonical.Name, result.Confidence)
		default:
			fmt.Printf("  Created new canonical %s (%s)\n",
				cyan(result.Canonical.ID), result.Canonical.Name)
		}
		return nil
	},
}

var (
	taskListBacklog bool
	taskListDate    string
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks for a day or the backlog",
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

		instances, err := store.ListTaskInstances(ctx, types.InstanceFilter{
			ProjectID:     taskProject,
			ScheduledDate: taskListDate,
			Backlog:       taskListBacklog,
		})
		if err != nil {
			return err
		}

		if len(instances) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, t := range instances {
			marker := " "
			if t.Status == types.StatusCompleted {
				marker = "x"
			}
			line := fmt.Sprintf("[%s] %s  %s", marker, t.Name, gray(t.ID))
			if t.IsOrphaned() {
				line += "  " + yellow("(unlinked)")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var (
	completeTimeSpent float64
	completeWork      string
)

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
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

		completion := types.Completion{
			CompletedAt:         time.Now().UTC(),
			ActualWorkCompleted: completeWork,
		}
		if completeTimeSpent > 0 {
			completion.ActualTimeSpent = &completeTimeSpent
		}

		completed, err := store.CompleteTaskInstance(ctx, args[0], completion)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Completed %s\n", green("✓"), completed.Name)
		return nil
	},
}

func init() {
	taskCmd.PersistentFlags().StringVar(&taskUser, "user", defaultUser(), "user id")
	taskCmd.PersistentFlags().StringVar(&taskProject, "project", "", "project id")

	taskAddCmd.Flags().StringVar(&taskDomain, "domain", "", "domain id")
	taskAddCmd.Flags().StringVar(&taskDesc, "desc", "", "task description")
	taskAddCmd.Flags().StringVar(&taskVersion, "version", "", "version bucket (empty = no version)")
	taskAddCmd.Flags().StringVar(&taskDate, "date", "", "scheduled date (YYYY-MM-DD, empty = backlog)")
	taskAddCmd.Flags().StringVar(&taskMeasure, "measure", "", "measure type (unit|percentage|status|revisions)")
	taskAddCmd.Flags().StringVar(&taskMeasureUnit, "measure-unit", "", "measure unit label")
	taskAddCmd.Flags().Float64Var(&taskTarget, "target", 0, "target value")
	taskAddCmd.Flags().Float64Var(&taskTimebox, "timebox", 0, "timebox value")
	taskAddCmd.Flags().StringVar(&taskTimeboxUnit, "timebox-unit", "", "timebox unit (mins|hrs)")

	taskListCmd.Flags().BoolVar(&taskListBacklog, "backlog", false, "list backlog tasks")
	taskListCmd.Flags().StringVar(&taskListDate, "date", "", "list tasks for a date (YYYY-MM-DD)")

	taskCompleteCmd.Flags().Float64Var(&completeTimeSpent, "time-spent", 0, "actual time spent (minutes)")
	taskCompleteCmd.Flags().StringVar(&completeWork, "work", "", "what was actually done")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskCompleteCmd)
	rootCmd.AddCommand(taskCmd)
}

func defaultUser() string {
	if u := os.Getenv("SENSEI_USER_ID"); u != "" {
		return u
	}
	return "local"
}
