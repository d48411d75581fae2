package resolver

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/augment"
	"github.com/JakeFAU/jane-menu-proxy/internal/fragment"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/metrics"
	"github.com/JakeFAU/jane-menu-proxy/internal/partner"
)

// RequestContext is the resolution state of one inbound request. It is
// created by Resolver.Begin and must not outlive the request.
type RequestContext struct {
	resolver *Resolver
	uri      string
	store    *menu.ResolvedStore

	mu       sync.Mutex
	plan     *menu.RenderPlan
	external *menu.ExternalStoreMetadata
}

// Matched reports whether the request resolved to a store config.
func (rc *RequestContext) Matched() bool {
	return rc != nil && rc.store != nil
}

// Store returns the resolved store, or nil when unmatched.
func (rc *RequestContext) Store() *menu.ResolvedStore {
	if rc == nil {
		return nil
	}
	return rc.store
}

// URI returns the request URI the context was resolved from.
func (rc *RequestContext) URI() string {
	return rc.uri
}

// SitePath returns the multisite prefix the resolver was configured with.
func (rc *RequestContext) SitePath() string {
	return rc.resolver.cfg.SitePath
}

// Plan fetches and assembles the render plan on first call and returns the
// memoized plan afterwards. An unmatched context yields an empty plan.
func (rc *RequestContext) Plan(ctx context.Context) menu.RenderPlan {
	if !rc.Matched() {
		return menu.RenderPlan{}
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.plan != nil {
		return *rc.plan
	}
	plan := rc.buildPlan(ctx)
	rc.plan = &plan
	return plan
}

func (rc *RequestContext) buildPlan(ctx context.Context) menu.RenderPlan {
	r := rc.resolver
	resp, err := r.fetchTemplate(ctx, rc.store)
	plan := menu.RenderPlan{ResponseCode: resp.StatusCode}
	if !menu.Available(resp, err) {
		metrics.ObserveResolution("degraded")
		r.logger.Warn("storefront unavailable",
			zap.String("proxy_url", rc.store.Config.ProxyURL),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return plan
	}

	document := string(resp.Body)
	head := fragment.Children(document, "head")
	if strings.Contains(rc.uri, "products") {
		head, plan.ProductTags = rc.appendProductMetadata(ctx, head)
	}
	plan.Body = fragment.Children(document, "body")
	plan.Head = r.pruner.Prune(head)
	metrics.ObserveResolution("rendered")
	return plan
}

// appendProductMetadata adds SEO tags when the store id, product id and a
// search hit are all available. Otherwise head is returned unchanged and
// the flag is false.
func (rc *RequestContext) appendProductMetadata(ctx context.Context, head []string) ([]string, bool) {
	r := rc.resolver
	if r.search == nil {
		return head, false
	}
	storeID, ok := augment.StoreID(head)
	if !ok {
		return head, false
	}
	productID, ok := augment.ProductID(rc.uri)
	if !ok {
		return head, false
	}
	product, ok := r.search.Product(ctx, rc.store.IndexURL, storeID, productID)
	if !ok {
		return head, false
	}
	siteName := rc.externalStoreLocked(ctx, head, false).Name
	return augment.InjectProductMetadata(head, product, rc.ProductURL(), siteName), true
}

// ExternalStore returns the partner's store metadata, fetching it at most
// once per request unless fresh is set. It needs the render plan's store id,
// so it builds the plan first when necessary.
func (rc *RequestContext) ExternalStore(ctx context.Context, fresh bool) (menu.ExternalStoreMetadata, bool) {
	if !rc.Matched() {
		return menu.ExternalStoreMetadata{}, false
	}
	plan := rc.Plan(ctx)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	meta := rc.externalStoreLocked(ctx, plan.Head, fresh)
	return meta, meta != (menu.ExternalStoreMetadata{})
}

// externalStoreLocked expects rc.mu to be held.
func (rc *RequestContext) externalStoreLocked(ctx context.Context, head []string, fresh bool) menu.ExternalStoreMetadata {
	if rc.external != nil && !fresh {
		return *rc.external
	}
	r := rc.resolver
	meta := menu.ExternalStoreMetadata{}
	defer func() { rc.external = &meta }()

	if r.stores == nil {
		return meta
	}
	storeID, ok := augment.StoreID(head)
	if !ok {
		return meta
	}
	configURL, ok := partner.StoreConfigURL(rc.store.Config.ProxyURL, storeID)
	if !ok {
		return meta
	}
	if found, ok := r.stores.Store(ctx, configURL); ok {
		meta = found
	}
	return meta
}

// ProductURL is the public URL of the current request. On a multisite
// install the site segment is dropped because the base URL already has it.
func (rc *RequestContext) ProductURL() string {
	base := strings.TrimRight(rc.resolver.cfg.PublicBaseURL, "/")
	path := rc.uri
	if sp := strings.Trim(rc.resolver.cfg.SitePath, "/"); sp != "" {
		segments := strings.Split(path, "/")
		if len(segments) > 1 {
			segments = append(segments[:1], segments[2:]...)
		}
		path = strings.Join(segments, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// StatusCode is the HTTP status the serving boundary should emit for a
// matched request: 200 when the plan rendered, 404 otherwise.
func (rc *RequestContext) StatusCode(ctx context.Context) int {
	if rc.Plan(ctx).OK() {
		return http.StatusOK
	}
	return http.StatusNotFound
}
