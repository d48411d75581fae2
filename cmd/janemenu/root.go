package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/config"
	"github.com/JakeFAU/jane-menu-proxy/internal/server"
	"github.com/JakeFAU/jane-menu-proxy/internal/sitemap"
)

// application is what subcommands need from the built server. Tests swap in
// a fake through newApp.
type application interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Sitemap() *sitemap.Aggregator
	Logger() *zap.Logger
}

type appKeyType string

const appKey appKeyType = "app"

var newApp = func(ctx context.Context, cfg config.Config) (application, error) {
	return server.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:          "janemenu",
		Short:        "Serves partner-hosted storefronts under host site paths.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env JANEMENU_* overrides apply either way)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSitemapCmd())
	cmd.AddCommand(newSchemaCmd())
	return cmd
}

func resolveApp(ctx context.Context) (application, error) {
	app, ok := ctx.Value(appKey).(application)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}

// closeApp shuts app down after a one-shot command.
func closeApp(ctx context.Context, app application) {
	if err := app.Close(ctx); err != nil {
		app.Logger().Warn("close failed", zap.Error(err))
	}
}
