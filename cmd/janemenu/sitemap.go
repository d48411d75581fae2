package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSitemapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemap",
		Short: "Manages the aggregated sitemap",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "regenerate",
		Short: "Rewrites the sitemap from the current store configs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(cmd.Context(), app)

			agg := app.Sitemap()
			written, err := agg.Regenerate(cmd.Context())
			if err != nil {
				return fmt.Errorf("regenerate sitemap: %w", err)
			}
			app.Logger().Info("sitemap regenerated", zap.Bool("written", written))
			if written {
				fmt.Fprintln(cmd.OutOrStdout(), agg.URL(false))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "sitemap not written (disabled or no store configs)")
			}
			return nil
		},
	})
	return cmd
}
