package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/config"
	"github.com/fablepress/fable/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fable server",
	Long: `Start the fable HTTP server.

This starts the HTTP API server together with the generation worker
pools. When the server shuts down (via Ctrl+C or SIGTERM), in-flight
jobs drain before the store closes; anything still queued resumes on
the next start.

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes store status)

Examples:
  fable serve                    # Start on default port 8080
  fable serve --port 3000        # Start on custom port
  fable serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		srv, err := server.New(server.Config{
			Host:      serveHost,
			Port:      servePort,
			AppConfig: cfg,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default from config)")

	rootCmd.AddCommand(serveCmd)
}
