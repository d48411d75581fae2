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

// StoreConfigURL derives {scheme}://{host}/{first-segment}/stores/{id} from
// the proxy URL.
func StoreConfigURL(proxyURL string, storeID int64) (string, bool) {
	u, err := url.Parse(proxyURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	segments := strings.Split(u.Path, "/")
	first := ""
	if len(segments) > 1 {
		first = segments[1]
	}
	return fmt.Sprintf("%s://%s/%s/stores/%d", u.Scheme, u.Host, first, storeID), true
}

// StoreDirectory fetches store metadata from the partner config endpoint.
type StoreDirectory struct {
	fetcher menu.Fetcher
	logger  *zap.Logger
}

// NewStoreDirectory builds a StoreDirectory.
func NewStoreDirectory(fetcher menu.Fetcher, logger *zap.Logger) *StoreDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreDirectory{fetcher: fetcher, logger: logger.Named("stores")}
}

type storeEnvelope struct {
	Store *menu.ExternalStoreMetadata `json:"store"`
}

// Store fetches the "store" object at configURL.
func (d *StoreDirectory) Store(ctx context.Context, configURL string) (menu.ExternalStoreMetadata, bool) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	resp, err := d.fetcher.Fetch(ctx, menu.Request{
		Method:  http.MethodGet,
		URL:     configURL,
		Headers: headers,
		Timeout: menu.DefaultTimeout,
	})
	if !menu.Available(resp, err) {
		d.logger.Debug("store config unavailable", zap.String("url", configURL), zap.Int("status", resp.StatusCode), zap.Error(err))
		return menu.ExternalStoreMetadata{}, false
	}

	var env storeEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		d.logger.Warn("failed to decode store config", zap.String("url", configURL), zap.Error(err))
		return menu.ExternalStoreMetadata{}, false
	}
	if env.Store == nil {
		return menu.ExternalStoreMetadata{}, false
	}
	return *env.Store, true
}
