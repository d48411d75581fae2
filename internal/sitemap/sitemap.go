// Package sitemap writes the aggregate sitemap index of every configured store
// and advertises it in robots.txt.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/clock"
	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/metrics"
	"github.com/JakeFAU/jane-menu-proxy/internal/storage"
)

// Object layout inside the blob store.
const (
	Dir        = "jane-menu/"
	ObjectPath = Dir + "sitemap.xml"
	Namespace  = "http://www.sitemaps.org/schemas/sitemap/0.9"
	xmlHeader  = `<?xml version="1.0" encoding="UTF-8"?>`
)

// Config controls where the sitemap is published.
type Config struct {
	// BaseURL is the public URL of the blob store root (the uploads URL).
	BaseURL string
	// EnabledDefault is used when the feature flag has never been stored.
	EnabledDefault bool
}

// Entry is one sitemap reference for a host sitemap provider.
type Entry struct {
	Loc     string `json:"loc"`
	Lastmod string `json:"lastmod"`
}

// Aggregator regenerates the sitemap index from the stored configs.
type Aggregator struct {
	configs  menu.ConfigRepository
	settings menu.Settings
	blobs    storage.BlobStore
	cfg      Config
	clock    clock.Clock
	logger   *zap.Logger

	mu sync.Mutex
}

// New constructs an Aggregator.
func New(configs menu.ConfigRepository, settings menu.Settings, blobs storage.BlobStore, cfg Config, clk clock.Clock, logger *zap.Logger) *Aggregator {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		configs:  configs,
		settings: settings,
		blobs:    blobs,
		cfg:      cfg,
		clock:    clk,
		logger:   logger.Named("sitemap"),
	}
}

// Enabled reads the persisted feature flag.
func (a *Aggregator) Enabled(ctx context.Context) (bool, error) {
	enabled, err := a.settings.Bool(ctx, menu.SettingSitemapEnabled, a.cfg.EnabledDefault)
	if err != nil {
		return false, fmt.Errorf("read sitemap flag: %w", err)
	}
	return enabled, nil
}

// SetEnabled persists the feature flag and regenerates the sitemap so the
// file reflects it.
func (a *Aggregator) SetEnabled(ctx context.Context, enabled bool) (bool, error) {
	if err := a.settings.SetBool(ctx, menu.SettingSitemapEnabled, enabled); err != nil {
		return false, fmt.Errorf("store sitemap flag: %w", err)
	}
	return a.Regenerate(ctx)
}

// Render builds the sitemap index document for configs. Lines are joined
// with "\n" and there is no trailing newline.
func Render(configs []menu.StoreConfig) []byte {
	lines := make([]string, 0, len(configs)*3+3)
	lines = append(lines, xmlHeader, `<sitemapindex xmlns="`+Namespace+`">`)
	for _, cfg := range configs {
		lines = append(lines,
			"  <sitemap>",
			"    <loc>"+escape(cfg.SitemapURL)+"</loc>",
			"  </sitemap>",
		)
	}
	lines = append(lines, "</sitemapindex>")
	return []byte(strings.Join(lines, "\n"))
}

func escape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// Regenerate deletes the previous sitemap and, when the feature is enabled
// and at least one config exists, writes a fresh one. It reports whether a
// file was written. Disabled and empty are not errors.
func (a *Aggregator) Regenerate(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.blobs.DeletePrefix(ctx, Dir); err != nil {
		metrics.ObserveSitemapRegeneration("error")
		return false, fmt.Errorf("delete previous sitemap: %w", err)
	}

	enabled, err := a.Enabled(ctx)
	if err != nil {
		metrics.ObserveSitemapRegeneration("error")
		return false, err
	}
	if !enabled {
		metrics.ObserveSitemapRegeneration("disabled")
		a.logger.Debug("sitemap disabled, nothing written")
		return false, nil
	}

	configs, err := a.configs.ListAll(ctx)
	if err != nil {
		metrics.ObserveSitemapRegeneration("error")
		return false, fmt.Errorf("list store configs: %w", err)
	}
	if len(configs) == 0 {
		metrics.ObserveSitemapRegeneration("empty")
		a.logger.Debug("no store configs, nothing written")
		return false, nil
	}

	uri, err := a.blobs.PutObject(ctx, ObjectPath, "application/xml", bytes.NewReader(Render(configs)))
	if err != nil {
		metrics.ObserveSitemapRegeneration("error")
		return false, fmt.Errorf("write sitemap: %w", err)
	}
	metrics.ObserveSitemapRegeneration("written")
	a.logger.Info("sitemap regenerated", zap.String("uri", uri), zap.Int("stores", len(configs)))
	return true, nil
}

// Exists reports whether the sitemap file is present.
func (a *Aggregator) Exists(ctx context.Context) (bool, error) {
	ok, err := a.blobs.ObjectExists(ctx, ObjectPath)
	if err != nil {
		return false, fmt.Errorf("stat sitemap: %w", err)
	}
	return ok, nil
}

// Read returns the stored sitemap, or storage.ErrObjectNotFound.
func (a *Aggregator) Read(ctx context.Context) ([]byte, error) {
	return a.blobs.GetObject(ctx, ObjectPath)
}

// URL is the public sitemap URL, upgraded to https when tls is set.
func (a *Aggregator) URL(tls bool) string {
	base := a.cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u := base + ObjectPath
	if tls {
		u = strings.ReplaceAll(u, "http://", "https://")
	}
	return u
}

// Entries lists one entry per stored config, stamped with the current time.
func (a *Aggregator) Entries(ctx context.Context) ([]Entry, error) {
	configs, err := a.configs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list store configs: %w", err)
	}
	lastmod := a.clock.Now().Format(time.RFC3339)
	entries := make([]Entry, 0, len(configs))
	for _, cfg := range configs {
		entries = append(entries, Entry{Loc: cfg.SitemapURL, Lastmod: lastmod})
	}
	return entries, nil
}

// RenderEntries builds a sitemap index document carrying lastmod values.
func RenderEntries(entries []Entry) []byte {
	lines := make([]string, 0, len(entries)*4+3)
	lines = append(lines, xmlHeader, `<sitemapindex xmlns="`+Namespace+`">`)
	for _, e := range entries {
		lines = append(lines,
			"  <sitemap>",
			"    <loc>"+escape(e.Loc)+"</loc>",
			"    <lastmod>"+e.Lastmod+"</lastmod>",
			"  </sitemap>",
		)
	}
	lines = append(lines, "</sitemapindex>")
	return []byte(strings.Join(lines, "\n"))
}
