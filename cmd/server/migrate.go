package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vedran77/ontomatch/internal/config"
)

func newMigrateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			initLogger(cfg)

			// The sqlite store applies its schema on open.
			st, err := openStores(context.Background(), cfg, true)
			if err != nil {
				return err
			}
			st.close()
			return nil
		},
	}
}
