package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/admin"
	"github.com/JakeFAU/jane-menu-proxy/internal/config"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/partner"
	"github.com/JakeFAU/jane-menu-proxy/internal/resolver"
	"github.com/JakeFAU/jane-menu-proxy/internal/routing"
	"github.com/JakeFAU/jane-menu-proxy/internal/sitemap"
	"github.com/JakeFAU/jane-menu-proxy/internal/storage/memory"
)

const (
	proxyURL   = "https://partner.example/embed/dispensary-a"
	storefront = `<html><head><meta charset="utf-8"><title>X</title>` +
		`<script id="jane_frameless_embed_runtime_config">jane_frameless_embed_runtime_config = {"storeId":42,"partnerHostedPath":"/dispensary-a"}</script>` +
		`</head><body><div>menu</div></body></html>`
)

type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]menu.Response
}

func (f *stubFetcher) set(u string, resp menu.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[u] = resp
}

func (f *stubFetcher) Fetch(_ context.Context, req menu.Request) (menu.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return menu.Response{}, errors.New("connection refused")
}

type harness struct {
	server  *Server
	fetcher *stubFetcher
	configs *memory.ConfigStore
	posts   *memory.PostDirectory
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, PublicBaseURL: "https://host.example", SitePath: "/"},
		HTTP:   config.HTTPConfig{TimeoutSeconds: 30},
	}
}

func newHarness(t *testing.T, cfg config.Config, ready func(context.Context) error) harness {
	t.Helper()
	logger := zap.NewNop()
	configs := memory.NewConfigStore(menu.StoreConfig{
		ID: 1, PageID: 10, ProxyURL: proxyURL,
		SitemapURL: "https://partner.example/sitemaps/a.xml", StorePath: "dispensary-a",
	})
	posts := memory.NewPostDirectory()
	posts.AddPost(menu.Post{ID: 10, Type: "page", Slug: "dispensary-a", Title: "A", Permalink: "https://host.example/dispensary-a/"})
	posts.AddPost(menu.Post{ID: 11, Type: "page", Slug: "dispensary-b", Title: "B", Permalink: "https://host.example/dispensary-b/"})
	fetcher := &stubFetcher{responses: map[string]menu.Response{
		proxyURL:                             {StatusCode: http.StatusOK, Body: []byte(storefront)},
		"https://host.example/dispensary-a/": {StatusCode: http.StatusOK, Body: []byte(storefront)},
	}}
	blobs := memory.NewBlobStore()
	agg := sitemap.New(configs, memory.NewSettings(), blobs,
		sitemap.Config{BaseURL: "http://host.example/uploads", EnabledDefault: true}, nil, logger)

	res, err := resolver.New(resolver.Dependencies{
		Configs:  configs,
		Posts:    posts,
		Fetcher:  fetcher,
		Search:   partner.NewSearchClient(fetcher, partner.SearchConfig{}, logger),
		Stores:   partner.NewStoreDirectory(fetcher, logger),
		Logger:   logger,
		Settings: resolver.Config{PublicBaseURL: cfg.Server.PublicBaseURL, SitePath: cfg.Server.SitePath},
	})
	require.NoError(t, err)

	server := NewServer(Dependencies{
		Resolver: res,
		Routing:  routing.NewAdapter(posts, cfg.Server.SitePath, logger),
		Admin:    admin.NewService(configs, posts, fetcher, agg, admin.Config{SiteURL: cfg.Server.PublicBaseURL}, logger),
		Configs:  configs,
		Sitemaps: []*sitemap.Aggregator{agg},
		Ready:    ready,
	}, cfg, logger)
	return harness{server: server, fetcher: fetcher, configs: configs, posts: posts}
}

func (h harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStorefrontRendersMatchedStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/dispensary-a/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, headerComment)
	assert.Contains(t, body, footerComment)
	assert.Contains(t, body, `<meta name="jane:version" content="`+menu.Version+`" />`)
	assert.Contains(t, body, "<div>menu</div>")
	assert.Contains(t, body, `"storeId":42`)
	assert.NotContains(t, body, "<title>")
	assert.NotContains(t, body, `charset="utf-8"`)
	assert.Contains(t, body, `<link rel="canonical" href="https://host.example/dispensary-a/" />`)
	assert.Equal(t, "page", rec.Header().Get(HeaderRoute))
	assert.Equal(t, "pagename=dispensary-a&page=", rec.Header().Get(HeaderMatchedQuery))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStorefrontCanonicalFollowsRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/dispensary-a/brands/?b=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<link rel="canonical" href="https://host.example/dispensary-a/brands/?b=1" />`)
}

func TestStorefrontProductPageCanonical(t *testing.T) {
	t.Parallel()

	const index = "https://VFM4X0N23A-dsn.algolia.net/1/indexes/menu-products-production/query"
	testCases := []struct {
		name      string
		search    *menu.Response
		canonical string
		ogTitle   bool
	}{
		{
			name: "search hit uses product tags",
			search: &menu.Response{StatusCode: http.StatusOK, Body: []byte(
				`{"nbHits":1,"hits":[{"name":"Blue Dream","brand":"Acme","brand_subtype":"Flower"}]}`)},
			canonical: `<link rel="canonical" href="https://host.example/dispensary-a/products/5/blue-dream/" />`,
			ogTitle:   true,
		},
		{
			name:      "search miss keeps host canonical",
			search:    &menu.Response{StatusCode: http.StatusOK, Body: []byte(`{"nbHits":0,"hits":[]}`)},
			canonical: `<link rel="canonical" href="https://host.example/dispensary-a/products/5/blue-dream/" />`,
		},
		{
			name:      "search unavailable keeps host canonical",
			canonical: `<link rel="canonical" href="https://host.example/dispensary-a/products/5/blue-dream/" />`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, testConfig(), nil)
			if tc.search != nil {
				h.fetcher.set(index, *tc.search)
			}
			rec := h.do(httptest.NewRequest(http.MethodGet, "/dispensary-a/products/5/blue-dream/", nil))
			require.Equal(t, http.StatusOK, rec.Code)

			body := rec.Body.String()
			assert.Equal(t, 1, strings.Count(body, `rel="canonical"`))
			assert.Contains(t, body, tc.canonical)
			if tc.ogTitle {
				assert.Contains(t, body, `<meta name="og:title" content="Blue Dream | Acme | Flower">`)
			} else {
				assert.NotContains(t, body, `og:title`)
			}
		})
	}
}

func TestStorefrontEncodedStorePath(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.posts.AddPost(menu.Post{ID: 20, Type: "page", Slug: "tienda", Title: "Tienda", Permalink: "https://host.example/tienda-%C3%B1/"})
	_, err := h.configs.Save(context.Background(), menu.StoreConfig{
		PageID: 20, ProxyURL: "https://partner.example/embed/tienda",
		SitemapURL: "https://partner.example/sitemaps/t.xml", StorePath: "tienda-%C3%B1",
	})
	require.NoError(t, err)
	h.fetcher.set("https://partner.example/embed/tienda", menu.Response{StatusCode: http.StatusOK, Body: []byte(storefront)})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/tienda-%C3%B1/brands/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<link rel="canonical" href="https://host.example/tienda-%C3%B1/brands/" />`)
	assert.Equal(t, "page", rec.Header().Get(HeaderRoute))
}

func TestStorefrontUpstreamFailureIs404(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.fetcher.set(proxyURL, menu.Response{StatusCode: http.StatusServiceUnavailable, Body: []byte(storefront)})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/dispensary-a/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestStorefrontUnmatchedIs404(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/about/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderRoute))
}

func TestStorefrontHead(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	rec := h.do(httptest.NewRequest(http.MethodHead, "/dispensary-a/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRequestIDPropagates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "0190f5b4-6a1e-7c4e-9b1a-3f2d5c6e7a8b")
	rec := h.do(req)
	assert.Equal(t, "0190f5b4-6a1e-7c4e-9b1a-3f2d5c6e7a8b", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid")
	rec = h.do(req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get("X-Request-ID"))
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	assert.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)

	down := newHarness(t, testConfig(), func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := h.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRobotsAndSitemap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	assert.Equal(t, http.StatusNotFound, h.do(httptest.NewRequest(http.MethodGet, "/jane-menu/sitemap.xml", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/robots.txt", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := h.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: https://host.example/uploads/jane-menu/sitemap.xml\n")

	rec = h.do(httptest.NewRequest(http.MethodGet, "/jane-menu/sitemap.xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<loc>https://partner.example/sitemaps/a.xml</loc>")
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req = httptest.NewRequest(http.MethodGet, "/jane-menu/sitemap.xml", nil)
	req.Header.Set("If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, h.do(req).Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/sitemaps/jane.xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<lastmod>")
}

func TestAdminRequiresAPIKeyWhenEnabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	h := newHarness(t, cfg, nil)

	assert.Equal(t, http.StatusForbidden, h.do(httptest.NewRequest(http.MethodGet, "/admin/store-configs", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/store-configs", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, h.do(req).Code)

	assert.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/dispensary-a/", nil)).Code)
}

func TestListAndGetStoreConfigs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	rec := h.do(httptest.NewRequest(http.MethodGet, "/admin/store-configs?search=dispensary&number=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		StoreConfigs []menu.StoreConfig `json:"store_configs"`
		Total        int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.StoreConfigs, 1)
	assert.Equal(t, "dispensary-a", list.StoreConfigs[0].StorePath)

	assert.Equal(t, http.StatusBadRequest, h.do(httptest.NewRequest(http.MethodGet, "/admin/store-configs?number=x", nil)).Code)
	assert.Equal(t, http.StatusOK, h.do(httptest.NewRequest(http.MethodGet, "/admin/store-configs/1", nil)).Code)
	assert.Equal(t, http.StatusNotFound, h.do(httptest.NewRequest(http.MethodGet, "/admin/store-configs/9", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(httptest.NewRequest(http.MethodGet, "/admin/store-configs/abc", nil)).Code)
}

func TestSaveStoreConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)

	rec := h.do(httptest.NewRequest(http.MethodPost, "/admin/store-configs",
		strings.NewReader(`{"proxy_url":"","sitemap_url":"https://p.example/b.xml","page_id":11}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), admin.MsgProxyURL)

	rec = h.do(httptest.NewRequest(http.MethodPost, "/admin/store-configs",
		strings.NewReader(`{"proxy_url":"https://p.example/b","sitemap_url":"https://p.example/b.xml","page_id":11}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var saved saveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.False(t, saved.Verified)
	assert.Equal(t, admin.VerificationMessage, saved.Error)
	assert.Equal(t, "dispensary-b", saved.StorePath)

	rec = h.do(httptest.NewRequest(http.MethodPut, "/admin/store-configs/1",
		strings.NewReader(`{"proxy_url":"`+proxyURL+`","sitemap_url":"https://partner.example/sitemaps/a2.xml","page_id":10}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.True(t, saved.Verified)
	assert.Equal(t, int64(1), saved.ID)

	assert.Equal(t, http.StatusBadRequest, h.do(httptest.NewRequest(http.MethodPost, "/admin/store-configs", strings.NewReader("{"))).Code)
}

func TestDeleteStoreConfigs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	assert.Equal(t, http.StatusBadRequest, h.do(httptest.NewRequest(http.MethodDelete, "/admin/store-configs", strings.NewReader(`{"ids":[]}`))).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(httptest.NewRequest(http.MethodDelete, "/admin/store-configs?ids=1,x", nil)).Code)

	rec := h.do(httptest.NewRequest(http.MethodDelete, "/admin/store-configs", bytes.NewReader([]byte(`{"ids":[1]}`))))
	require.Equal(t, http.StatusOK, rec.Code)
	n, err := h.configs.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, http.StatusNotFound, h.do(httptest.NewRequest(http.MethodGet, "/dispensary-a/", nil)).Code)
}

func TestSitemapSetting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)
	rec := h.do(httptest.NewRequest(http.MethodPut, "/admin/settings/sitemap", strings.NewReader(`{"enabled":false}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(httptest.NewRequest(http.MethodGet, "/admin/settings/sitemap", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":false,"exists":false,"url":"http://host.example/uploads/jane-menu/sitemap.xml"}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, h.do(httptest.NewRequest(http.MethodPut, "/admin/settings/sitemap", strings.NewReader(`{}`))).Code)
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAjaxEndpoints(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)

	rec := h.do(postForm("/admin/ajax/page-relative-path", url.Values{"page_id": {"10"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":"https://host.example/dispensary-a/"}`, rec.Body.String())

	rec = h.do(postForm("/admin/ajax/page-path", url.Values{}))
	assert.JSONEq(t, `{"success":false,"data":{"message":"`+admin.MsgMissingPageID+`"}}`, rec.Body.String())

	rec = h.do(postForm("/admin/ajax/page-path", url.Values{"page_id": {"99"}}))
	assert.JSONEq(t, `{"success":false,"data":{"message":"`+admin.MsgUnknownPage+`"}}`, rec.Body.String())

	rec = h.do(postForm("/admin/ajax/post-type-items", url.Values{"post_type": {"page"}, "page_id": {"10"}}))
	var items struct {
		Success bool   `json:"success"`
		Data    string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.True(t, items.Success)
	assert.Contains(t, items.Data, `<option value="10" selected="selected">A</option>`)

	rec = h.do(postForm("/admin/ajax/post-types", url.Values{}))
	assert.Contains(t, rec.Body.String(), `"success":true`)

	rec = h.do(postForm("/admin/ajax/verify-store-path", url.Values{
		"proxy_url": {proxyURL}, "store_path": {"https://host.example/dispensary-a/"},
	}))
	assert.JSONEq(t, `{"success":true,"data":{"valid":true}}`, rec.Body.String())

	rec = h.do(postForm("/admin/ajax/verify-store-path", url.Values{
		"proxy_url": {proxyURL}, "store_path": {"https://host.example/elsewhere/"},
	}))
	assert.JSONEq(t, `{"success":true,"data":{"valid":false}}`, rec.Body.String())
}
