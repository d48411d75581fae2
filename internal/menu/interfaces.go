package menu

import (
	"context"
	"time"
)

// DefaultTimeout bounds every remote call made while resolving a request.
const DefaultTimeout = 30 * time.Second

// ConfigRepository persists store configs.
type ConfigRepository interface {
	FindByLongestPrefix(ctx context.Context, requestPath string) (*StoreConfig, error)
	Get(ctx context.Context, id int64) (StoreConfig, error)
	ListAll(ctx context.Context) ([]StoreConfig, error)
	ListFiltered(ctx context.Context, filter ConfigFilter) ([]StoreConfig, int, error)
	Count(ctx context.Context) (int, error)
	Save(ctx context.Context, cfg StoreConfig) (int64, error)
	Delete(ctx context.Context, ids []int64) error
}

// PostDirectory looks up host content items and their types.
type PostDirectory interface {
	Post(ctx context.Context, id int64) (Post, error)
	PostsByType(ctx context.Context, postType string) ([]Post, error)
	PostType(ctx context.Context, name string) (PostType, error)
	PostTypes(ctx context.Context) ([]PostType, error)
}

// Settings stores persisted feature flags and markers.
type Settings interface {
	Bool(ctx context.Context, key string, def bool) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
	String(ctx context.Context, key string, def string) (string, error)
	SetString(ctx context.Context, key string, value string) error
}

// Fetcher performs outbound HTTP calls. A transport failure returns an error
// wrapping ErrUnavailable; a non-200 status is returned as a Response.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}
