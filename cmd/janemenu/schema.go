package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manages database tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Creates any missing tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(cmd.Context(), app)

			if err := app.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ok")
			return nil
		},
	})
	return cmd
}
