package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/jane-menu-proxy/internal/fragment"
	"github.com/JakeFAU/jane-menu-proxy/internal/hash/sha256"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/resolver"
	"github.com/JakeFAU/jane-menu-proxy/internal/routing"
	"github.com/JakeFAU/jane-menu-proxy/internal/sitemap"
	"github.com/JakeFAU/jane-menu-proxy/internal/storage"
)

// Markers wrapped around the spliced head fragments.
const (
	headerComment = "<!-- Jane Menu Plugin Header -->"
	footerComment = "<!-- /Jane Menu Plugin Header -->"
)

// Route headers describing the routing decision of a rendered page.
const (
	HeaderRoute        = "X-Jane-Route"
	HeaderMatchedRule  = "X-Jane-Matched-Rule"
	HeaderMatchedQuery = "X-Jane-Matched-Query"
)

func (s *Server) storefront(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resolver == nil {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	rc := s.deps.Resolver.Begin(ctx, r)
	if !rc.Matched() {
		http.NotFound(w, r)
		return
	}

	if s.deps.Routing != nil {
		if decision, ok := s.deps.Routing.Route(ctx, rc); ok {
			w.Header().Set(HeaderRoute, string(decision.Strategy))
			w.Header().Set(HeaderMatchedRule, decision.MatchedRule)
			w.Header().Set(HeaderMatchedQuery, decision.MatchedQuery)
		}
	}

	if rc.StatusCode(ctx) != http.StatusOK {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	page := s.renderPage(rc, r.URL.RequestURI(), rc.Plan(ctx))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(page)); err != nil {
		s.logger.Debug("storefront write failed", zap.Error(err))
	}
}

// renderPage assembles the host document around the plan's fragments. The
// host canonical link is omitted on product pages, which carry their own.
func (s *Server) renderPage(rc *resolver.RequestContext, requestURI string, plan menu.RenderPlan) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head>\n")
	b.WriteString(headerComment + "\n")
	if len(plan.Head) > 0 {
		b.WriteString(fragment.Join(plan.Head) + "\n")
	}
	b.WriteString(footerComment + "\n")
	b.WriteString(`<meta name="jane:version" content="` + menu.Version + `" />` + "\n")
	// Product pages skip the host canonical only when the plan carries
	// its own product tags.
	if !plan.ProductTags || !routing.SuppressSEOHead(rc, requestURI) {
		host := strings.TrimRight(s.cfg.Server.PublicBaseURL, "/") + "/" +
			routing.NormalizeStorePath(rc.Store().Config.StorePath, s.cfg.Server.SitePath) + "/"
		canonical := routing.CanonicalURL(rc, requestURI, host)
		b.WriteString(`<link rel="canonical" href="` + html.EscapeString(canonical) + `" />` + "\n")
	}
	b.WriteString("</head><body>\n")
	b.WriteString(fragment.Join(plan.Body))
	b.WriteString("\n</body></html>\n")
	return b.String()
}

func (s *Server) useTLS(r *http.Request) bool {
	return s.cfg.Server.TLS || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (s *Server) robots(w http.ResponseWriter, r *http.Request) {
	body := sitemap.RobotsTXT(r.Context(), sitemap.DefaultRobots, s.deps.Sitemaps, s.useTLS(r))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(body)) //nolint:errcheck // client went away
}

func (s *Server) primarySitemap() *sitemap.Aggregator {
	if len(s.deps.Sitemaps) == 0 {
		return nil
	}
	return s.deps.Sitemaps[0]
}

func (s *Server) sitemapFile(w http.ResponseWriter, r *http.Request) {
	agg := s.primarySitemap()
	if agg == nil {
		http.NotFound(w, r)
		return
	}
	data, err := agg.Read(r.Context())
	if errors.Is(err, storage.ErrObjectNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("sitemap read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read sitemap")
		return
	}
	etag := sha256.ETag(data)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write(data) //nolint:errcheck // client went away
}

func (s *Server) sitemapEntries(w http.ResponseWriter, r *http.Request) {
	agg := s.primarySitemap()
	if agg == nil {
		http.NotFound(w, r)
		return
	}
	entries, err := agg.Entries(r.Context())
	if err != nil {
		s.logger.Error("sitemap entries failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sitemap entries")
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write(sitemap.RenderEntries(entries)) //nolint:errcheck // client went away
}
