package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/cascade/store"
)

func migrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd.Context(), func(s store.Store) error {
				if err := s.Migrate(cmd.Context()); err != nil {
					return err
				}
				g.logger.Info("migrations applied")
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return err
			})
		},
	}
}
