package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sensei-app/sensei/internal/auth"
	"github.com/sensei-app/sensei/internal/server"
	"github.com/sensei-app/sensei/internal/tasks"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server.

Endpoints:
  POST   /api/tasks                        Create a task (canonical matching)
  GET    /api/tasks                        List tasks by date or backlog
  PATCH  /api/tasks/{id}                   Update a task
  DELETE /api/tasks/{id}                   Delete a task
  POST   /api/tasks/{id}/complete          Complete a task
  POST   /api/projects/{id}/link-orphans   Repair orphaned tasks
  GET    /healthz                          Health check (includes oracle probe)

Set SENSEI_API_TOKEN to require bearer auth; without it the server runs in
local single-user mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		oracle := buildOracle(cfg)
		creator, err := buildCreator(store, oracle)
		if err != nil {
			return err
		}
		linker, err := tasks.NewLinker(store)
		if err != nil {
			return err
		}

		srvCfg := server.DefaultConfig()
		if serveAddr != "" {
			srvCfg.Addr = serveAddr
		} else if cfg.Server.Addr != "" {
			srvCfg.Addr = cfg.Server.Addr
		}
		if len(cfg.Server.AllowedOrigins) > 0 {
			srvCfg.AllowedOrigins = cfg.Server.AllowedOrigins
		}

		srv := server.New(store, creator, linker, oracle, auth.FromEnv(), srvCfg)

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Sensei API listening on %s\n", green("✓"), srvCfg.Addr)

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
