// Package routing maps a resolved store onto the host's routing decision and
// rewrites canonical URLs for store pages.
package routing

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/resolver"
)

// Rules emitted for each routing strategy.
const (
	pageRule = `(.?.+?)(?:/([0-9]+))?/?$`
	postRule = `([^/]+)(?:/([0-9]+))?/?$`
	typeRule = `%s/(.+?)(?:/([0-9]+))?/?$`
)

// Strategy names the rewrite applied to a request.
type Strategy string

// Known strategies.
const (
	StrategyPage   Strategy = "page"
	StrategyPost   Strategy = "post"
	StrategyCustom Strategy = "custom"
	StrategyOther  Strategy = "other"
)

// Decision is the routing override for a matched store request. A key mapped
// to the empty string in QueryVars is present but null.
type Decision struct {
	Strategy     Strategy
	QueryVars    map[string]string
	MatchedRule  string
	MatchedQuery string
}

// Adapter decides how matched requests are routed.
type Adapter struct {
	posts    menu.PostDirectory
	sitePath string
	logger   *zap.Logger
}

// NewAdapter builds an Adapter. sitePath is the multisite prefix, e.g.
// "/site2/"; empty or "/" disables normalization.
func NewAdapter(posts menu.PostDirectory, sitePath string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{posts: posts, sitePath: sitePath, logger: logger.Named("routing")}
}

// NormalizeStorePath strips the multisite prefix from storePath.
func NormalizeStorePath(storePath, sitePath string) string {
	prefix := strings.TrimPrefix(sitePath, "/")
	if prefix == "" {
		return storePath
	}
	return strings.TrimPrefix(storePath, prefix)
}

// Route returns the routing override for rc. The second result is false
// when rc did not match a store, in which case the host routing stands.
func (a *Adapter) Route(ctx context.Context, rc *resolver.RequestContext) (Decision, bool) {
	if !rc.Matched() {
		return Decision{}, false
	}
	store := rc.Store()
	storePath := NormalizeStorePath(store.Config.StorePath, a.sitePath)
	postType := store.PostType

	vars := map[string]string{"page": ""}
	switch {
	case postType == "page":
		vars["pagename"] = storePath
		return Decision{
			Strategy:     StrategyPage,
			QueryVars:    vars,
			MatchedRule:  pageRule,
			MatchedQuery: "pagename=" + url.QueryEscape(storePath) + "&page=",
		}, true
	case postType == "post":
		vars["name"] = storePath
		return Decision{
			Strategy:     StrategyPost,
			QueryVars:    vars,
			MatchedRule:  postRule,
			MatchedQuery: "name=" + url.QueryEscape(storePath) + "&page=",
		}, true
	case a.isCustomPublic(ctx, postType):
		vars["post_type"] = postType
		vars["do_not_redirect"] = "true"
		vars["page_id"] = strconv.FormatInt(store.Config.PageID, 10)
		return Decision{
			Strategy:     StrategyCustom,
			QueryVars:    vars,
			MatchedRule:  strings.Replace(typeRule, "%s", postType, 1),
			MatchedQuery: url.QueryEscape(postType) + "=" + url.QueryEscape(store.PostSlug) + "&page=",
		}, true
	default:
		vars[postType] = store.RelativeSlug
		vars["post_type"] = postType
		vars["name"] = store.RelativeSlug
		return Decision{
			Strategy:     StrategyOther,
			QueryVars:    vars,
			MatchedRule:  strings.Replace(typeRule, "%s", postType, 1),
			MatchedQuery: url.QueryEscape(postType) + "=" + url.QueryEscape(store.RelativeSlug) + "&page=",
		}, true
	}
}

// isCustomPublic reports whether name is a registered, public, non-builtin type.
func (a *Adapter) isCustomPublic(ctx context.Context, name string) bool {
	if name == "" || a.posts == nil {
		return false
	}
	pt, err := a.posts.PostType(ctx, name)
	if err != nil {
		a.logger.Debug("post type lookup failed", zap.String("post_type", name), zap.Error(err))
		return false
	}
	return pt.Public && !pt.Builtin
}

// IsStorePath reports whether path falls under the matched store path.
func IsStorePath(rc *resolver.RequestContext, path string) bool {
	if !rc.Matched() {
		return false
	}
	return strings.HasPrefix(path, "/"+rc.Store().Config.StorePath)
}

// IsProductPath reports whether path is a product page of the matched store.
func IsProductPath(rc *resolver.RequestContext, path string) bool {
	if !rc.Matched() {
		return false
	}
	return strings.HasPrefix(path, "/"+rc.Store().Config.StorePath+"/products")
}

// SuppressSEOHead reports whether third-party SEO head output should be
// dropped for requestURI.
func SuppressSEOHead(rc *resolver.RequestContext, requestURI string) bool {
	if !rc.Matched() {
		return false
	}
	return strings.HasPrefix(requestURI, "/"+rc.Store().Config.StorePath+"/products/")
}

// replacementPath is requestURI with the query removed on product pages.
func replacementPath(rc *resolver.RequestContext, requestURI string) string {
	if IsProductPath(rc, requestURI) {
		path, _, _ := strings.Cut(requestURI, "?")
		return path
	}
	return requestURI
}

// CanonicalURL swaps the path of canonical for requestURI when the canonical
// path lies under the matched store. Anything unparsable is returned as is.
func CanonicalURL(rc *resolver.RequestContext, requestURI, canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return canonical
	}
	path := u.EscapedPath()
	if path == "" || !IsStorePath(rc, path) {
		return canonical
	}
	return strings.ReplaceAll(canonical, path, replacementPath(rc, requestURI))
}

// RewriteCanonicalMarkup replaces the store path in rendered canonical markup
// with requestURI for requests under the matched store.
func RewriteCanonicalMarkup(rc *resolver.RequestContext, requestURI, markup string) string {
	if !IsStorePath(rc, requestURI) {
		return markup
	}
	return strings.ReplaceAll(markup, "/"+rc.Store().Config.StorePath+"/", replacementPath(rc, requestURI))
}
