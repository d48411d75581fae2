package partner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

type stubFetcher struct {
	responses map[string]menu.Response
	err       error
	requests  []menu.Request
}

func (s *stubFetcher) Fetch(_ context.Context, req menu.Request) (menu.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return menu.Response{}, s.err
	}
	resp, ok := s.responses[req.URL]
	if !ok {
		return menu.Response{StatusCode: http.StatusNotFound}, nil
	}
	return resp, nil
}

func ok(body string) menu.Response {
	return menu.Response{StatusCode: http.StatusOK, Body: []byte(body)}
}

func TestIndexURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"https://VFM4X0N23A-dsn.algolia.net/1/indexes/menu-products-staging/query",
		IndexURL(DefaultIndexURLTemplate, "https://api.staging.partner.example/embed"))
	assert.Equal(t,
		"https://VFM4X0N23A-dsn.algolia.net/1/indexes/menu-products-production/query",
		IndexURL(DefaultIndexURLTemplate, "https://partner.example/embed/staging"))
	assert.Equal(t,
		"https://VFM4X0N23A-dsn.algolia.net/1/indexes/menu-products-production/query",
		IndexURL(DefaultIndexURLTemplate, "::not a url"))
}

func TestStoreConfigURL(t *testing.T) {
	t.Parallel()

	got, ok := StoreConfigURL("https://partner.example/embed/dispensary-a", 42)
	require.True(t, ok)
	assert.Equal(t, "https://partner.example/embed/stores/42", got)

	got, ok = StoreConfigURL("https://partner.example", 7)
	require.True(t, ok)
	assert.Equal(t, "https://partner.example//stores/7", got)

	_, ok = StoreConfigURL("not-a-url", 1)
	assert.False(t, ok)
}

func TestSearchClientProduct(t *testing.T) {
	t.Parallel()

	index := IndexURL(DefaultIndexURLTemplate, "https://partner.example/embed")
	fetcher := &stubFetcher{responses: map[string]menu.Response{
		index: ok(`{"nbHits":1,"hits":[{"name":"Blue Dream","brand":"Acme","brand_subtype":"Flower",` +
			`"description":"Sweet","photos":[{"urls":{"small":"https://img/s.jpg"}}],"extra":{"nested":true}}]}`),
	}}
	client := NewSearchClient(fetcher, SearchConfig{APIKey: "key"}, zap.NewNop())

	product, found := client.Product(context.Background(), index, 42, 5)
	require.True(t, found)
	assert.Equal(t, "Blue Dream", product.Name)
	assert.Equal(t, "Flower", product.BrandSubtype)
	assert.Equal(t, "https://img/s.jpg", product.ImageURL())

	require.Len(t, fetcher.requests, 1)
	req := fetcher.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "key", req.Headers.Get("X-Algolia-API-Key"))
	assert.Equal(t, DefaultApplicationID, req.Headers.Get("X-Algolia-Application-Id"))
	assert.Equal(t, "application/json", req.Headers.Get("Content-Type"))

	var query map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &query))
	assert.Equal(t, "filters=store_id = 42 AND product_id = 5", query["params"])
	assert.EqualValues(t, 1, query["hitsPerPage"])
}

func TestSearchClientProductUnavailable(t *testing.T) {
	t.Parallel()

	index := "https://search.example/query"
	cases := map[string]*stubFetcher{
		"no hits":      {responses: map[string]menu.Response{index: ok(`{"nbHits":0,"hits":[]}`)}},
		"bad json":     {responses: map[string]menu.Response{index: ok(`{"nbHits":`)}},
		"non-200":      {responses: map[string]menu.Response{index: {StatusCode: http.StatusForbidden}}},
		"transport":    {err: fmt.Errorf("%w: dial", menu.ErrUnavailable)},
		"hit mismatch": {responses: map[string]menu.Response{index: ok(`{"nbHits":1,"hits":[{"name":12}]}`)}},
	}
	for name, fetcher := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client := NewSearchClient(fetcher, SearchConfig{}, nil)
			_, found := client.Product(context.Background(), index, 1, 2)
			assert.False(t, found)
		})
	}
}

func TestStoreDirectory(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{responses: map[string]menu.Response{
		"https://partner.example/embed/stores/42": ok(`{"store":{"id":42,"name":"Acme Shop"}}`),
		"https://partner.example/embed/stores/43": ok(`{"other":{}}`),
	}}
	dir := NewStoreDirectory(fetcher, zap.NewNop())

	store, found := dir.Store(context.Background(), "https://partner.example/embed/stores/42")
	require.True(t, found)
	assert.Equal(t, "Acme Shop", store.Name)
	assert.Equal(t, "application/json", fetcher.requests[0].Headers.Get("Accept"))

	_, found = dir.Store(context.Background(), "https://partner.example/embed/stores/43")
	assert.False(t, found)

	_, found = dir.Store(context.Background(), "https://partner.example/embed/stores/44")
	assert.False(t, found)
}

func TestVerifyStorePath(t *testing.T) {
	t.Parallel()

	page := `<html><head><script id="jane_frameless_embed_runtime_config">` +
		`{"storeId":42,"partnerHostedPath":"dispensary-a","x":1}</script></head><body></body></html>`
	fetcher := &stubFetcher{responses: map[string]menu.Response{"https://partner.example/embed": ok(page)}}

	assert.True(t, VerifyStorePath(context.Background(), fetcher, "https://partner.example/embed", "dispensary-a"))
	assert.False(t, VerifyStorePath(context.Background(), fetcher, "https://partner.example/embed", "dispensary-b"))
	assert.False(t, VerifyStorePath(context.Background(), fetcher, "https://partner.example/missing", "dispensary-a"))

	failing := &stubFetcher{err: errors.New("boom")}
	assert.False(t, VerifyStorePath(context.Background(), failing, "https://partner.example/embed", "dispensary-a"))
}

func TestVerifyStorePathEncodedForms(t *testing.T) {
	t.Parallel()

	page := `<html><head><script id="jane_frameless_embed_runtime_config">` +
		`{"storeId":42,"partnerHostedPath":"/tienda-ñ"}</script></head><body></body></html>`
	fetcher := &stubFetcher{responses: map[string]menu.Response{"https://partner.example/embed": ok(page)}}

	assert.True(t, VerifyStorePath(context.Background(), fetcher, "https://partner.example/embed", "/tienda-%C3%B1"))
	assert.True(t, VerifyStorePath(context.Background(), fetcher, "https://partner.example/embed", "/tienda-ñ"))
	assert.False(t, VerifyStorePath(context.Background(), fetcher, "https://partner.example/embed", "/tienda-n"))
}
