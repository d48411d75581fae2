// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends for the sitemap file.
const (
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Search    SearchConfig    `mapstructure:"search"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Sitemap   SitemapConfig   `mapstructure:"sitemap"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

// ServerConfig controls the HTTP server and the public site identity.
type ServerConfig struct {
	Port          int    `mapstructure:"port"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	// SitePath is the multisite prefix of this site, "/" for a single site.
	SitePath string `mapstructure:"site_path"`
	// TLS forces https in published sitemap URLs.
	TLS bool `mapstructure:"tls"`
}

// AuthConfig defines admin API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures outbound calls to the storefront partner.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	// RateLimitRPS caps outbound requests per partner host. 0 disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// MaxBodyBytes bounds a fetched response body.
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
}

// SearchConfig points at the product search index.
type SearchConfig struct {
	URLTemplate   string `mapstructure:"url_template"`
	ApplicationID string `mapstructure:"application_id"`
	APIKey        string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	TablePrefix            string `mapstructure:"table_prefix"`
}

// StorageConfig selects where the sitemap file is written.
type StorageConfig struct {
	Backend   string             `mapstructure:"backend"`
	Local     LocalStorageConfig `mapstructure:"local"`
	GCSBucket string             `mapstructure:"gcs_bucket"`
	// BaseURL is the public URL of the storage root (the uploads URL).
	BaseURL string `mapstructure:"base_url"`
}

// LocalStorageConfig configures the on-disk uploads directory.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// SitemapConfig sets sitemap defaults.
type SitemapConfig struct {
	EnabledDefault bool `mapstructure:"enabled_default"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig names the service in traces.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// SeedConfig lists host post types and posts loaded into the in-memory post
// directory when no DSN is configured. The page and post types are always
// present.
type SeedConfig struct {
	PostTypes []SeedPostType `mapstructure:"post_types"`
	Posts     []SeedPost     `mapstructure:"posts"`
}

// SeedPostType is one custom post type.
type SeedPostType struct {
	Name         string `mapstructure:"name"`
	Label        string `mapstructure:"label"`
	SingularName string `mapstructure:"singular_name"`
	Public       bool   `mapstructure:"public"`
	Hierarchical bool   `mapstructure:"hierarchical"`
}

// SeedPost is one host post.
type SeedPost struct {
	ID        int64  `mapstructure:"id"`
	Type      string `mapstructure:"type"`
	Slug      string `mapstructure:"slug"`
	Title     string `mapstructure:"title"`
	Permalink string `mapstructure:"permalink"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JANEMENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.site_path", "/")
	v.SetDefault("server.tls", false)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "jane-menu-proxy/1.4")
	v.SetDefault("http.rate_limit_rps", 0)
	v.SetDefault("http.rate_limit_burst", 5)
	v.SetDefault("http.max_body_bytes", 32<<20)
	v.SetDefault("search.url_template", "https://VFM4X0N23A-dsn.algolia.net/1/indexes/menu-products-%s/query")
	v.SetDefault("search.application_id", "VFM4X0N23A")
	v.SetDefault("search.api_key", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.table_prefix", "wp_")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.local.base_dir", "uploads")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.base_url", "http://localhost:8080/uploads")
	v.SetDefault("sitemap.enabled_default", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "jane-menu-proxy")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if _, err := url.ParseRequestURI(c.Server.PublicBaseURL); err != nil {
		return fmt.Errorf("server.public_base_url must be an absolute URL: %w", err)
	}
	if !strings.HasPrefix(c.Server.SitePath, "/") {
		return fmt.Errorf("server.site_path must start with /")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http.rate_limit_rps must be >= 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}
	if strings.Count(c.Search.URLTemplate, "%s") != 1 {
		return fmt.Errorf("search.url_template must contain exactly one %%s")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Seed.validate(); err != nil {
		return err
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory")
	}
	return nil
}

// RequestTimeout converts http.timeout_seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MaxConnLifetime converts db.max_conn_lifetime_minutes into a duration.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMinutes) * time.Minute
}

func (s SeedConfig) validate() error {
	types := map[string]bool{"page": true, "post": true}
	for i, pt := range s.PostTypes {
		if pt.Name == "" {
			return fmt.Errorf("seed.post_types[%d].name must be set", i)
		}
		types[pt.Name] = true
	}
	ids := make(map[int64]bool, len(s.Posts))
	for i, p := range s.Posts {
		if p.ID <= 0 {
			return fmt.Errorf("seed.posts[%d].id must be > 0", i)
		}
		if ids[p.ID] {
			return fmt.Errorf("seed.posts[%d].id %d is duplicated", i, p.ID)
		}
		ids[p.ID] = true
		if !types[p.Type] {
			return fmt.Errorf("seed.posts[%d].type %q is not a known post type", i, p.Type)
		}
		if p.Permalink != "" {
			if _, err := url.Parse(p.Permalink); err != nil {
				return fmt.Errorf("seed.posts[%d].permalink: %w", i, err)
			}
		}
	}
	return nil
}
