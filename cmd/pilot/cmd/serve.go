package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/pilot/internal/api"
	"github.com/hugo-lorenzo-mato/pilot/internal/config"
	"github.com/hugo-lorenzo-mato/pilot/internal/events"
	"github.com/hugo-lorenzo-mato/pilot/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent HTTP server",
	Long: `Start the pilot HTTP server. The server exposes session management,
goal and memory queries, manual overrides, and a Server-Sent Events
stream of agent activity.

Examples:
  # Start with defaults (127.0.0.1:8787)
  pilot serve

  # Start on a custom host and port
  pilot serve --host 0.0.0.0 --port 3000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"Host address to bind to (defaults to the configured value)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"Port to listen on (defaults to the configured value)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	agent, err := buildAgent(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = agent.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.New(100)
	defer eventBus.Close()

	// Hot-reload custom safety patterns on file change.
	if cfg.Safety.PatternsFile != "" {
		err := config.WatchSafetyPatterns(ctx, cfg.Safety.PatternsFile,
			func(patterns []config.SafetyPattern) {
				if err := agent.gate.SetCustomPatterns(toCustomPatterns(patterns)); err != nil {
					logger.Warn("rejected safety pattern reload", "error", err)
					return
				}
				logger.Info("reloaded safety patterns", "count", len(patterns))
			},
			func(err error) {
				logger.Warn("safety pattern watcher error", "error", err)
			},
		)
		if err != nil {
			logger.Warn("safety pattern watching disabled", "error", err)
		}
	}

	sessions := service.NewSessionManager(agent.orchestrator,
		service.WithSessionStore(agent.store),
		service.WithSessionSnapshotter(agent.snapshots),
		service.WithSessionBus(eventBus),
		service.WithSessionLogger(logger),
	)
	defer func() { _ = sessions.Close() }()

	server := api.NewServer(sessions,
		api.WithGoalStore(agent.store),
		api.WithOverrideRegistry(agent.overrides),
		api.WithEventBus(eventBus),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithLogger(logger),
	)

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	// Stop the listener on SIGINT/SIGTERM.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Info("shutting down server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := server.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
