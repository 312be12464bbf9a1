package command

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/internal/config"
	"github.com/lborres/whisper/services"
)

// sessionManager runs without a cache; commands are one-shot
func sessionManager(cfg *config.Config, st *stack, log *slog.Logger) *services.SessionManager {
	return services.NewSessionManager(core.SessionConfig{MaxAge: cfg.SessionMaxAge}, st.sessions, st.accounts, nil, log)
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "delete expired sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (runErr error) {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			st, err := openStack(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { runErr = errors.Join(runErr, st.Close()) }()

			n, err := sessionManager(cfg, st, log).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
			return err
		},
	}
}

func revokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <account-id>",
		Short: "sign an account out of every session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (runErr error) {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			st, err := openStack(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { runErr = errors.Join(runErr, st.Close()) }()

			n, err := sessionManager(cfg, st, log).RevokeAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked %d sessions for %s\n", n, args[0])
			return err
		},
	}
}
