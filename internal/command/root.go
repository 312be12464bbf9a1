// Package command contains the CLI command constructors.
package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lborres/whisper/internal/config"
	"github.com/lborres/whisper/internal/logging"
)

type configKey struct{}

// RootCommand instantiates the root command, with all sub-commands bound.
func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "whisper [command]",
		Short:        "Anonymous secrets behind password, Google and Facebook sign-in",
		Version:      version(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat)
			logger.DebugContext(cmd.Context(), "configuration loaded",
				slog.String("addr", cfg.Addr),
				slog.String("db_driver", cfg.DBDriver),
				slog.Bool("redis_sessions", cfg.RedisURL != ""),
			)
			slog.SetDefault(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}

	cmd.AddCommand(
		serveCommand(),
		migrateCommand(),
		sweepCommand(),
		revokeCommand(),
	)

	return cmd
}
