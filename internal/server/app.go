// Package server wires configuration into a running proxy application.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/admin"
	"github.com/JakeFAU/jane-menu-proxy/internal/api"
	"github.com/JakeFAU/jane-menu-proxy/internal/clock"
	"github.com/JakeFAU/jane-menu-proxy/internal/config"
	collyfetcher "github.com/JakeFAU/jane-menu-proxy/internal/fetcher/colly"
	"github.com/JakeFAU/jane-menu-proxy/internal/logging"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/partner"
	"github.com/JakeFAU/jane-menu-proxy/internal/policy/ratelimit"
	"github.com/JakeFAU/jane-menu-proxy/internal/resolver"
	"github.com/JakeFAU/jane-menu-proxy/internal/routing"
	"github.com/JakeFAU/jane-menu-proxy/internal/sitemap"
	"github.com/JakeFAU/jane-menu-proxy/internal/storage"
	gcsstorage "github.com/JakeFAU/jane-menu-proxy/internal/storage/gcs"
	localstorage "github.com/JakeFAU/jane-menu-proxy/internal/storage/local"
	memorystorage "github.com/JakeFAU/jane-menu-proxy/internal/storage/memory"
	pgstore "github.com/JakeFAU/jane-menu-proxy/internal/storage/postgres"
	"github.com/JakeFAU/jane-menu-proxy/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	db             *pgstore.DB
	gcsClient      *gcstorage.Client
	blobs          storage.BlobStore
	configs        menu.ConfigRepository
	posts          menu.PostDirectory
	settings       menu.Settings
	fetcher        menu.Fetcher
	sitemap        *sitemap.Aggregator
	tracerProvider *sdktrace.TracerProvider
}

// Build creates the application's dependencies and runs the startup upgrade
// check.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Service:     cfg.Telemetry.ServiceName,
		Version:     menu.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := newApp(cfg, logger)
	app.tracerProvider, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, menu.Version)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	if err := app.setupStorage(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := app.setupDatabase(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	app.fetcher = ratelimit.Wrap(collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.RequestTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	}), ratelimit.Config{RPS: cfg.HTTP.RateLimitRPS, Burst: cfg.HTTP.RateLimitBurst})
	app.logger.Info("using colly fetcher",
		zap.String("user_agent", cfg.HTTP.UserAgent),
		zap.Float64("rate_limit_rps", cfg.HTTP.RateLimitRPS),
	)

	if err := app.wire(); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := app.Upgrade(ctx); err != nil {
		app.logger.Error("startup upgrade failed", zap.Error(err))
	}
	return app, nil
}

func newApp(cfg config.Config, logger *zap.Logger) *App {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("site_path", cfg.Server.SitePath),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("database", cfg.DB.DSN != ""),
	)
	return &App{cfg: cfg, logger: logger}
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		a.logger.Info("using GCS storage backend")
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		a.blobs, err = gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Debug("GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
	case config.StorageLocal:
		a.logger.Info("using local storage backend")
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Debug("local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
	default:
		a.logger.Info("using in-memory storage backend")
		a.blobs = memorystorage.NewBlobStore()
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, using in-memory store configs, posts and settings")
		a.configs = memorystorage.NewConfigStore()
		a.posts = seedPosts(a.cfg.Seed)
		a.settings = memorystorage.NewSettings()
		a.logger.Info("seeded in-memory posts",
			zap.Int("post_types", len(a.cfg.Seed.PostTypes)),
			zap.Int("posts", len(a.cfg.Seed.Posts)),
		)
		return nil
	}
	if len(a.cfg.Seed.Posts) > 0 || len(a.cfg.Seed.PostTypes) > 0 {
		a.logger.Warn("ignoring seed posts, the database is the post directory")
	}
	db, err := pgstore.Open(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		TablePrefix:     a.cfg.DB.TablePrefix,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.MaxConnLifetime(),
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	a.db = db
	a.configs = db.Configs()
	a.posts = db.Posts()
	a.settings = db.Settings()
	a.logger.Info("database initialized", zap.String("config_table", db.ConfigTable()))
	return nil
}

// seedPosts builds the in-memory post directory from the configured seed.
func seedPosts(seed config.SeedConfig) *memorystorage.PostDirectory {
	posts := memorystorage.NewPostDirectory()
	for _, pt := range seed.PostTypes {
		posts.AddType(menu.PostType{
			Name:         pt.Name,
			Label:        pt.Label,
			SingularName: pt.SingularName,
			Public:       pt.Public,
			Hierarchical: pt.Hierarchical,
		})
	}
	for _, p := range seed.Posts {
		posts.AddPost(menu.Post{
			ID:        p.ID,
			Type:      p.Type,
			Slug:      p.Slug,
			Title:     p.Title,
			Permalink: p.Permalink,
		})
	}
	return posts
}

// wire builds the request-path components on top of the stores and fetcher.
func (a *App) wire() error {
	a.sitemap = sitemap.New(a.configs, a.settings, a.blobs, sitemap.Config{
		BaseURL:        a.cfg.Storage.BaseURL,
		EnabledDefault: a.cfg.Sitemap.EnabledDefault,
	}, clock.System{}, a.logger)

	res, err := resolver.New(resolver.Dependencies{
		Configs: a.configs,
		Posts:   a.posts,
		Fetcher: a.fetcher,
		Search: partner.NewSearchClient(a.fetcher, partner.SearchConfig{
			URLTemplate:   a.cfg.Search.URLTemplate,
			ApplicationID: a.cfg.Search.ApplicationID,
			APIKey:        a.cfg.Search.APIKey,
		}, a.logger),
		Stores: partner.NewStoreDirectory(a.fetcher, a.logger),
		Logger: a.logger,
		Tracer: telemetry.Tracer(),
		Settings: resolver.Config{
			PublicBaseURL: a.cfg.Server.PublicBaseURL,
			SitePath:      a.cfg.Server.SitePath,
		},
	})
	if err != nil {
		return fmt.Errorf("resolver init failed: %w", err)
	}

	adminSvc := admin.NewService(a.configs, a.posts, a.fetcher, a.sitemap,
		admin.Config{SiteURL: a.cfg.Server.PublicBaseURL}, a.logger)

	a.apiServer = api.NewServer(api.Dependencies{
		Resolver: res,
		Routing:  routing.NewAdapter(a.posts, a.cfg.Server.SitePath, a.logger),
		Admin:    adminSvc,
		Configs:  a.configs,
		Sitemaps: []*sitemap.Aggregator{a.sitemap},
		Ready:    a.ready,
	}, a.cfg, a.logger)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Sitemap returns the site's sitemap aggregator.
func (a *App) Sitemap() *sitemap.Aggregator {
	return a.sitemap
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// EnsureSchema creates the database tables. It is a no-op without a database.
func (a *App) EnsureSchema(ctx context.Context) error {
	if a.db == nil {
		a.logger.Info("no database configured, skipping schema")
		return nil
	}
	if err := a.db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
