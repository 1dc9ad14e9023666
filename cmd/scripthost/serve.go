package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sandboxes over WebSocket",
		Long: `Start the HTTP server. Every WebSocket connection on /ws gets its own
sandbox; the connecting client acts as its host.

Routes:
  GET /health        liveness
  GET /metrics       Prometheus metrics
  GET /metrics/json  summary counters
  GET /ws            sandbox connection`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("port", "", "Server port (default: PORT)")
	cmd.Flags().String("host", "", "Bind address (default: HOST)")
	cmd.Flags().StringSlice("allow-func", nil, "Host function glob a client may register (repeatable, default: SANDBOX_ALLOWED_FUNCS)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetString("port")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("allow-func") {
		cfg.Sandbox.AllowedFuncs, _ = flags.GetStringSlice("allow-func")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		return err
	}
	if err := srv.Run(cmd.Context()); err != nil {
		logger.Error("Server error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}
