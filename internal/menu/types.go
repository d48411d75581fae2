// Package menu defines core types shared across the storefront proxy subsystems.
package menu

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Version is the release version emitted in the jane:version meta tag and
// compared against the persisted schema version on startup.
const Version = "1.4.6"

// RuntimeConfigMarker identifies the partner script that embeds the storefront runtime config.
const RuntimeConfigMarker = "jane_frameless_embed_runtime_config"

// Setting keys persisted through the Settings store.
const (
	SettingSitemapEnabled = "jane_sitemap_enabled"
	SettingDBVersion      = "jane_web_db_version"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a remote call that failed before an HTTP status was received.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrIncomplete is returned when a config is saved without its required fields.
	ErrIncomplete = errors.New("store config is missing required fields")
)

// StoreConfig maps a local URL path to a remote storefront.
type StoreConfig struct {
	ID          int64  `json:"id"`
	PageID      int64  `json:"page_id"`
	ProxyURL    string `json:"proxy_url"`
	SitemapURL  string `json:"sitemap_url"`
	StorePath   string `json:"store_path"`
	Header      string `json:"-"`
	Footer      string `json:"-"`
	HeadContent string `json:"-"`
}

// Complete reports whether the required fields are all set.
func (c StoreConfig) Complete() bool {
	return c.PageID > 0 && c.ProxyURL != "" && c.SitemapURL != "" && c.StorePath != ""
}

// ConfigFilter narrows ListFiltered results.
type ConfigFilter struct {
	Search  string
	Offset  int
	Number  int
	OrderBy string
	Order   string
}

// WithDefaults fills the paging and ordering defaults used by the admin list.
func (f ConfigFilter) WithDefaults() ConfigFilter {
	if f.Number <= 0 {
		f.Number = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.OrderBy {
	case "id", "page_id", "proxy_url", "sitemap_url", "store_path":
	default:
		f.OrderBy = "id"
	}
	if strings.EqualFold(f.Order, "desc") {
		f.Order = "DESC"
	} else {
		f.Order = "ASC"
	}
	return f
}

// ResolvedStore is the store match derived once for an inbound request.
type ResolvedStore struct {
	Config          StoreConfig
	PostType        string
	PostSlug        string
	RelativeSlug    string
	HasRelativeSlug bool
	IndexURL        string
}

// RenderPlan is the per-request output ready for serving.
type RenderPlan struct {
	ResponseCode int
	Head         []string
	Body         []string
	// ProductTags is set when canonical and social tags for a product were
	// added to Head.
	ProductTags bool
}

// OK reports whether the plan should be served with content.
func (p RenderPlan) OK() bool {
	return p.ResponseCode == http.StatusOK
}

// ProductPhoto is one photo entry of a search-index product hit.
type ProductPhoto struct {
	URLs struct {
		Small string `json:"small"`
	} `json:"urls"`
}

// ProductMetadata is the subset of a search-index hit used for SEO tags.
// Absent fields decode to their zero value.
type ProductMetadata struct {
	Name         string         `json:"name"`
	Brand        string         `json:"brand"`
	BrandSubtype string         `json:"brand_subtype"`
	Description  string         `json:"description"`
	Photos       []ProductPhoto `json:"photos"`
	ImageURLs    []string       `json:"image_urls"`
}

// ImageURL returns the first small photo URL, else the first legacy image URL, else "".
func (p ProductMetadata) ImageURL() string {
	if len(p.Photos) > 0 && p.Photos[0].URLs.Small != "" {
		return p.Photos[0].URLs.Small
	}
	if len(p.ImageURLs) > 0 {
		return p.ImageURLs[0]
	}
	return ""
}

// ExternalStoreMetadata is the store object served by the partner config endpoint.
type ExternalStoreMetadata struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Post is a host content item a store config points at.
type Post struct {
	ID        int64  `json:"id"`
	Type      string `json:"post_type"`
	Slug      string `json:"post_name"`
	Title     string `json:"post_title"`
	Permalink string `json:"permalink"`
}

// RelativePath returns the escaped permalink path without leading or trailing
// slashes, the form requests arrive in.
func (p Post) RelativePath() (string, bool) {
	if p.Permalink == "" {
		return "", false
	}
	u, err := url.Parse(p.Permalink)
	if err != nil {
		return "", false
	}
	return strings.Trim(u.EscapedPath(), "/"), true
}

// PostType describes a registered host content type.
type PostType struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	SingularName string `json:"singular_name"`
	Public       bool   `json:"public"`
	Hierarchical bool   `json:"hierarchical"`
	Builtin      bool   `json:"builtin"`
}

// Request describes a single outbound HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is the status and body of a completed outbound call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Available reports whether a fetch produced a usable 200 response.
func Available(resp Response, err error) bool {
	return err == nil && resp.StatusCode == http.StatusOK
}
