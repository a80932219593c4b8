package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	Long:  "Applies all pending SQL migrations for the configured store driver in lexicographic order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := openStore(cmd.Context(), config.ModeMigrate)
		if err != nil {
			return err
		}
		defer o.Close()

		zap.L().Info("all migrations applied successfully", zap.String("driver", string(o.Dialect())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
