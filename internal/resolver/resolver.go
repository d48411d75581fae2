// Package resolver matches inbound requests to store configs and builds the
// per-request render plan from the remote storefront.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/augment"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/metrics"
	"github.com/JakeFAU/jane-menu-proxy/internal/telemetry"
)

// ProductSearcher looks up product metadata in the search index.
type ProductSearcher interface {
	IndexURL(proxyURL string) string
	Product(ctx context.Context, indexURL string, storeID, productID int64) (menu.ProductMetadata, bool)
}

// StoreLookup fetches external store metadata.
type StoreLookup interface {
	Store(ctx context.Context, configURL string) (menu.ExternalStoreMetadata, bool)
}

// Config holds the host site settings the resolver needs.
type Config struct {
	// PublicBaseURL is the host site's home URL, including any multisite path.
	PublicBaseURL string
	// SitePath is the multisite path prefix, e.g. "/site2/". Empty or "/" means none.
	SitePath string
}

// Dependencies groups the collaborators of a Resolver.
type Dependencies struct {
	Configs  menu.ConfigRepository
	Posts    menu.PostDirectory
	Fetcher  menu.Fetcher
	Search   ProductSearcher
	Stores   StoreLookup
	Pruner   augment.Pruner
	Logger   *zap.Logger
	Tracer   trace.Tracer
	Settings Config
}

// Resolver turns inbound requests into RequestContexts.
type Resolver struct {
	configs menu.ConfigRepository
	posts   menu.PostDirectory
	fetcher menu.Fetcher
	search  ProductSearcher
	stores  StoreLookup
	pruner  augment.Pruner
	logger  *zap.Logger
	tracer  trace.Tracer
	cfg     Config
}

// New builds a Resolver. Configs, Posts and Fetcher are required.
func New(deps Dependencies) (*Resolver, error) {
	if deps.Configs == nil || deps.Posts == nil || deps.Fetcher == nil {
		return nil, errors.New("resolver requires configs, posts and fetcher")
	}
	if deps.Pruner == nil {
		deps.Pruner = augment.NewSubstringPruner()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = telemetry.Tracer()
	}
	return &Resolver{
		configs: deps.Configs,
		posts:   deps.Posts,
		fetcher: deps.Fetcher,
		search:  deps.Search,
		stores:  deps.Stores,
		pruner:  deps.Pruner,
		logger:  deps.Logger.Named("resolver"),
		tracer:  deps.Tracer,
		cfg:     deps.Settings,
	}, nil
}

// Config returns the host settings the resolver was built with.
func (r *Resolver) Config() Config {
	return r.cfg
}

// skip reports whether req must never be resolved against a store.
func skip(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return true
	}
	if strings.EqualFold(req.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	return strings.HasPrefix(req.URL.Path, "/admin/")
}

// Begin derives the request context for req. It performs the store lookup
// but no remote calls; those happen lazily in Plan.
func (r *Resolver) Begin(ctx context.Context, req *http.Request) *RequestContext {
	uri := req.URL.RequestURI()
	rc := &RequestContext{resolver: r, uri: uri}
	if skip(req) {
		return rc
	}

	cfg, err := r.configs.FindByLongestPrefix(ctx, uri)
	if err != nil {
		r.logger.Error("store config lookup failed", zap.String("path", uri), zap.Error(err))
		return rc
	}
	if cfg == nil {
		metrics.ObserveResolution("unmatched")
		return rc
	}

	store := &menu.ResolvedStore{Config: *cfg}
	post, err := r.posts.Post(ctx, cfg.PageID)
	if err != nil {
		r.logger.Warn("store config points at a missing post",
			zap.Int64("config_id", cfg.ID),
			zap.Int64("page_id", cfg.PageID),
			zap.Error(err),
		)
	} else {
		store.PostType = post.Type
		store.PostSlug = post.Slug
	}
	if store.PostType != "" {
		if rel, ok := strings.CutPrefix(cfg.StorePath, store.PostType+"/"); ok {
			store.RelativeSlug = rel
			store.HasRelativeSlug = true
		}
	}
	if r.search != nil {
		store.IndexURL = r.search.IndexURL(cfg.ProxyURL)
	}

	rc.store = store
	r.logger.Debug("request matched store config",
		zap.String("path", uri),
		zap.Int64("config_id", cfg.ID),
		zap.String("store_path", cfg.StorePath),
	)
	return rc
}

// fetchTemplate performs the proxy fetch for store under a span.
func (r *Resolver) fetchTemplate(ctx context.Context, store *menu.ResolvedStore) (menu.Response, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.fetch_template",
		trace.WithAttributes(
			attribute.String("janemenu.store_path", store.Config.StorePath),
			attribute.String("janemenu.proxy_url", store.Config.ProxyURL),
		))
	defer span.End()

	resp, err := r.fetcher.Fetch(ctx, menu.Request{
		Method:  http.MethodGet,
		URL:     store.Config.ProxyURL,
		Timeout: menu.DefaultTimeout,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "proxy fetch failed")
		return resp, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}
