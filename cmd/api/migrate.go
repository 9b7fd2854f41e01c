package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/concierge-router/internal/config"
	"github.com/capitalize-ai/concierge-router/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var driver, dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if driver == "" {
				driver = cfg.DatabaseDriver
			}
			if dsn == "" {
				dsn = cfg.DatabaseURL
			}

			st, err := store.Open(cmd.Context(), store.Driver(driver), dsn)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "database driver (postgres or sqlite); defaults to DATABASE_DRIVER")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database connection string; defaults to DATABASE_URL")
	return cmd
}
