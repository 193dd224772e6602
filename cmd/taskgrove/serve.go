package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/taskgrove/taskgrove/internal/api"
	"github.com/taskgrove/taskgrove/internal/config"
	"github.com/taskgrove/taskgrove/internal/logging"
	"github.com/taskgrove/taskgrove/internal/query"
	"github.com/taskgrove/taskgrove/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task REST server",
	Long: `Start the REST server backed by the embedded SQLite store.

Endpoints:
  GET    /tasks                      paginated listing (parentId selects a subtree level)
  POST   /tasks                      create a task
  PUT    /tasks/{id}                 edit a task (status=completed cascades down)
  PATCH  /tasks/{id}/complete        complete a task and its subtree
  DELETE /tasks/{id}                 delete a task and its subtree
  GET    /health                     health check
  GET    /ws                         websocket mutation feed

Example usage:
  taskgrove serve                    # defaults: :8080, taskgrove.db
  taskgrove serve --addr :9000 --db /var/lib/taskgrove/tasks.db

Editing the config file while the server runs adjusts the log level
without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.ListenAddr = addr
		}
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			cfg.DBPath = dbPath
		}

		logger := logging.New(logging.Config{
			Level:      cfg.Log.Level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := st.InitSchema(ctx); err != nil {
			return err
		}
		if total, err := st.CountAll(ctx); err == nil {
			logger.Info("store opened", "path", cfg.DBPath, "tasks", total)
		}

		server := api.NewServer(api.Config{
			Addr:   cfg.ListenAddr,
			Store:  st,
			Engine: query.NewEngine(st, cfg.PageSize),
			Logger: logger.Logger,
		})
		if err := server.Start(); err != nil {
			return err
		}

		if err := config.Watch(cfgPath, func(fresh *config.Config) {
			logger.SetLevel(fresh.Log.Level)
			logger.Info("config reloaded", "log_level", fresh.Log.Level)
		}); err != nil {
			logger.Warn("config watch disabled", "error", err)
		}

		fmt.Printf("Server is running on http://%s\n", server.Addr())
		<-ctx.Done()

		logger.Info("shutting down")
		return server.Stop()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	serveCmd.Flags().String("db", "", "SQLite database path (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
