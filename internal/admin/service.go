package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// SitemapRegenerator refreshes the sitemap after config changes.
type SitemapRegenerator interface {
	Regenerate(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) (bool, error)
}

// Config holds host settings used by the admin helpers.
type Config struct {
	// SiteURL is the host site URL used to build absolute store URLs.
	SiteURL string
}

// Service runs admin operations against the config repository.
type Service struct {
	configs menu.ConfigRepository
	posts   menu.PostDirectory
	fetcher menu.Fetcher
	sitemap SitemapRegenerator
	cfg     Config
	logger  *zap.Logger
}

// NewService constructs a Service.
func NewService(configs menu.ConfigRepository, posts menu.PostDirectory, fetcher menu.Fetcher, sitemap SitemapRegenerator, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		configs: configs,
		posts:   posts,
		fetcher: fetcher,
		sitemap: sitemap,
		cfg:     cfg,
		logger:  logger.Named("admin"),
	}
}

// Result describes a saved config.
type Result struct {
	ID             int64  `json:"id"`
	StorePath      string `json:"store_path"`
	SitemapWritten bool   `json:"sitemap_written"`
}

// Save validates and persists form. A *ValidationError means nothing was
// written. An error wrapping ErrVerification comes with a valid Result: the
// config stays saved.
func (s *Service) Save(ctx context.Context, form Form) (Result, error) {
	form = form.normalized()
	storePath, err := s.check(ctx, form)
	if err != nil {
		return Result{}, err
	}

	id, err := s.configs.Save(ctx, menu.StoreConfig{
		ID:         form.ID,
		PageID:     form.PageID,
		ProxyURL:   form.ProxyURL,
		SitemapURL: form.SitemapURL,
		StorePath:  storePath,
	})
	if err != nil {
		if errors.Is(err, menu.ErrNotFound) {
			return Result{}, err
		}
		s.logger.Error("store config save failed", zap.Int64("config_id", form.ID), zap.Error(err))
		return Result{}, &ValidationError{Message: MsgSomethingWent}
	}
	s.logger.Info("store config saved", zap.Int64("config_id", id), zap.String("store_path", storePath))

	result := Result{ID: id, StorePath: storePath}
	result.SitemapWritten = s.regenerate(ctx)

	if err := s.Verify(ctx, form.PageID); err != nil {
		return result, err
	}
	return result, nil
}

// check applies every validation rule and returns the derived store path.
func (s *Service) check(ctx context.Context, form Form) (string, error) {
	field, err := firstFieldError(form)
	if err != nil {
		return "", fmt.Errorf("validate form: %w", err)
	}
	switch field {
	case "ProxyURL":
		return "", &ValidationError{Message: MsgProxyURL}
	case "SitemapURL":
		return "", &ValidationError{Message: MsgSitemapURL}
	case "PageID":
		return "", &ValidationError{Message: fmt.Sprintf(msgSelectItem, s.singularLabel(ctx, form.PostType))}
	}

	post, err := s.posts.Post(ctx, form.PageID)
	if errors.Is(err, menu.ErrNotFound) {
		return "", &ValidationError{Message: MsgPageMissing}
	}
	if err != nil {
		return "", fmt.Errorf("load page %d: %w", form.PageID, err)
	}
	storePath, ok := post.RelativePath()
	if !ok || storePath == "" {
		return "", &ValidationError{Message: MsgPageMissing}
	}

	existing, err := s.configs.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("list store configs: %w", err)
	}
	var proxyUsed, sitemapUsed, pageUsed bool
	for _, cfg := range existing {
		if form.ID != 0 && cfg.ID == form.ID {
			continue
		}
		proxyUsed = proxyUsed || cfg.ProxyURL == form.ProxyURL
		sitemapUsed = sitemapUsed || cfg.SitemapURL == form.SitemapURL
		pageUsed = pageUsed || cfg.PageID == form.PageID
	}
	switch {
	case proxyUsed:
		return "", &ValidationError{Message: MsgProxyInUse}
	case sitemapUsed:
		return "", &ValidationError{Message: MsgSitemapInUse}
	case pageUsed:
		return "", &ValidationError{Message: MsgPageInUse}
	}
	return storePath, nil
}

func (s *Service) singularLabel(ctx context.Context, postType string) string {
	if postType == "" {
		return "Page"
	}
	pt, err := s.posts.PostType(ctx, postType)
	if err != nil || pt.SingularName == "" {
		return "Page"
	}
	return pt.SingularName
}

func (s *Service) regenerate(ctx context.Context) bool {
	if s.sitemap == nil {
		return false
	}
	written, err := s.sitemap.Regenerate(ctx)
	if err != nil {
		s.logger.Error("sitemap regeneration failed", zap.Error(err))
		return false
	}
	return written
}

// Verify fetches the page's public URL and checks that it embeds the
// storefront runtime config script.
func (s *Service) Verify(ctx context.Context, pageID int64) error {
	post, err := s.posts.Post(ctx, pageID)
	if err != nil {
		return &ValidationError{Message: MsgPageMissing}
	}
	resp, err := s.fetcher.Fetch(ctx, menu.Request{
		Method:  http.MethodGet,
		URL:     post.Permalink,
		Timeout: menu.DefaultTimeout,
	})
	if !menu.Available(resp, err) {
		s.logger.Warn("configuration verification fetch failed",
			zap.String("path", post.Permalink),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return fmt.Errorf("%w: page %s unavailable", ErrVerification, post.Permalink)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("%w: parse page: %w", ErrVerification, err)
	}
	if doc.Find("script#" + menu.RuntimeConfigMarker).Length() == 0 {
		return fmt.Errorf("%w: runtime config script missing on %s", ErrVerification, post.Permalink)
	}
	return nil
}

// Delete removes configs and refreshes the sitemap.
func (s *Service) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.configs.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete store configs: %w", err)
	}
	s.logger.Info("store configs deleted", zap.Int64s("ids", ids))
	s.regenerate(ctx)
	return nil
}

// SetSitemapEnabled stores the sitemap flag and regenerates the file.
func (s *Service) SetSitemapEnabled(ctx context.Context, enabled bool) error {
	if s.sitemap == nil {
		return errors.New("sitemap is not configured")
	}
	if _, err := s.sitemap.SetEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("set sitemap flag: %w", err)
	}
	return nil
}
