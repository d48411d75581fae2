package partner

import (
	"context"
	"net/http"
	"net/url"

	"github.com/JakeFAU/jane-menu-proxy/internal/augment"
	"github.com/JakeFAU/jane-menu-proxy/internal/fragment"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// VerifyStorePath reports whether the storefront at proxyURL advertises
// candidate as its partnerHostedPath. Percent-encoded and raw forms of the
// same path compare equal.
func VerifyStorePath(ctx context.Context, fetcher menu.Fetcher, proxyURL, candidate string) bool {
	resp, err := fetcher.Fetch(ctx, menu.Request{
		Method:  http.MethodGet,
		URL:     proxyURL,
		Timeout: menu.DefaultTimeout,
	})
	if !menu.Available(resp, err) {
		return false
	}
	hosted, ok := augment.PartnerHostedPath(fragment.Children(string(resp.Body), "head"))
	if !ok {
		return false
	}
	return unescapePath(hosted) == unescapePath(candidate)
}

func unescapePath(p string) string {
	if u, err := url.PathUnescape(p); err == nil {
		return u
	}
	return p
}
