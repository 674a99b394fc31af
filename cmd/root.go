package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/levitate/internal/config"
	"github.com/okian/levitate/pkg/logger"
)

// rootState is filled by the root command before any subcommand runs.
type rootState struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	state := &rootState{}
	root := &cobra.Command{
		Use:          "levitate",
		Short:        "Turn music into generated cover art",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// stdout is reserved for command output.
			if err := logger.InitWriter(cmd.ErrOrStderr(), cfg.LogFormat); err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
					logger.String("log_level", cfg.LogLevel), logger.Error(err))
				_ = logger.SetLevelString("info")
			}
			state.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(state),
		newAnalyzeCmd(state),
	)
	addClientCommands(root)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
