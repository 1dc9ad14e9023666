package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scripthost",
		Short: "Sandboxed script evaluation with tracked globals",
		Long: `scripthost - Evaluate untrusted scripts against a synthetic global scope.

Scripts never see the real global object. Global reads and writes are
tracked with versions, host functions are called over a message protocol
and results are normalized to plain data.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default: LOG_LEVEL)")
	root.PersistentFlags().Bool("dev", false, "Development logging (default: LOG_DEV)")

	root.AddCommand(newServeCmd(), newEvalCmd(), newReplCmd())
	return root
}

// loadConfig reads the environment and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("dev") {
		cfg.Logging.Development, _ = flags.GetBool("dev")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development), nil
}
