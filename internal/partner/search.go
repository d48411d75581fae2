// Package partner talks to the storefront partner's search index and store
// config endpoints.
package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// Defaults for the product search index.
const (
	DefaultIndexURLTemplate = "https://VFM4X0N23A-dsn.algolia.net/1/indexes/menu-products-%s/query"
	DefaultApplicationID    = "VFM4X0N23A"
)

// SearchConfig carries search index credentials.
type SearchConfig struct {
	URLTemplate   string
	ApplicationID string
	APIKey        string
}

// SearchClient looks up single products in the search index.
type SearchClient struct {
	fetcher menu.Fetcher
	cfg     SearchConfig
	logger  *zap.Logger
}

// NewSearchClient builds a SearchClient, filling empty config with defaults.
func NewSearchClient(fetcher menu.Fetcher, cfg SearchConfig, logger *zap.Logger) *SearchClient {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultIndexURLTemplate
	}
	if cfg.ApplicationID == "" {
		cfg.ApplicationID = DefaultApplicationID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchClient{fetcher: fetcher, cfg: cfg, logger: logger.Named("search")}
}

// IndexURL returns the index query URL for proxyURL.
func (c *SearchClient) IndexURL(proxyURL string) string {
	return IndexURL(c.cfg.URLTemplate, proxyURL)
}

// IndexURL formats template with "staging" when the proxy host contains
// "staging", otherwise "production".
func IndexURL(template, proxyURL string) string {
	env := "production"
	if u, err := url.Parse(proxyURL); err == nil && strings.Contains(u.Host, "staging") {
		env = "staging"
	}
	return fmt.Sprintf(template, env)
}

type searchQuery struct {
	Params      string `json:"params"`
	HitsPerPage int    `json:"hitsPerPage"`
}

type searchResult struct {
	NbHits int               `json:"nbHits"`
	Hits   []json.RawMessage `json:"hits"`
}

// Product returns the single hit matching storeID and productID. Any
// transport failure, non-200 status, decode error or empty result reports
// false.
func (c *SearchClient) Product(ctx context.Context, indexURL string, storeID, productID int64) (menu.ProductMetadata, bool) {
	body, err := json.Marshal(searchQuery{
		Params:      fmt.Sprintf("filters=store_id = %d AND product_id = %d", storeID, productID),
		HitsPerPage: 1,
	})
	if err != nil {
		return menu.ProductMetadata{}, false
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Algolia-API-Key", c.cfg.APIKey)
	headers.Set("X-Algolia-Application-Id", c.cfg.ApplicationID)

	resp, err := c.fetcher.Fetch(ctx, menu.Request{
		Method:  http.MethodPost,
		URL:     indexURL,
		Headers: headers,
		Body:    body,
		Timeout: menu.DefaultTimeout,
	})
	if !menu.Available(resp, err) {
		c.logger.Debug("product search unavailable",
			zap.Int64("store_id", storeID),
			zap.Int64("product_id", productID),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return menu.ProductMetadata{}, false
	}

	var result searchResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		c.logger.Warn("failed to decode search response", zap.Error(err))
		return menu.ProductMetadata{}, false
	}
	if result.NbHits == 0 || len(result.Hits) == 0 {
		return menu.ProductMetadata{}, false
	}

	var product menu.ProductMetadata
	if err := json.Unmarshal(result.Hits[0], &product); err != nil {
		c.logger.Warn("failed to decode search hit", zap.Error(err))
		return menu.ProductMetadata{}, false
	}
	return product, true
}
