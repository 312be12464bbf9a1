package command

import (
	"github.com/spf13/cobra"
)

// migrateCommand applies pending migrations and exits. openStack migrates,
// so this only opens and closes the configured storage.
func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			st, err := openStack(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			return st.Close()
		},
	}
}
