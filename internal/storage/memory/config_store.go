package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// ConfigStore keeps store configs in-memory.
type ConfigStore struct {
	mu      sync.RWMutex
	configs map[int64]menu.StoreConfig
	nextID  int64
}

var _ menu.ConfigRepository = (*ConfigStore)(nil)

// NewConfigStore constructs a ConfigStore seeded with configs. Seed records
// without an id are assigned one.
func NewConfigStore(configs ...menu.StoreConfig) *ConfigStore {
	s := &ConfigStore{configs: make(map[int64]menu.StoreConfig), nextID: 1}
	for _, cfg := range configs {
		if cfg.ID == 0 {
			cfg.ID = s.nextID
		}
		if cfg.ID >= s.nextID {
			s.nextID = cfg.ID + 1
		}
		s.configs[cfg.ID] = cfg
	}
	return s
}

// sorted returns configs ordered by id. Callers must hold mu.
func (s *ConfigStore) sorted() []menu.StoreConfig {
	out := make([]menu.StoreConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByLongestPrefix returns the config whose "/"+store_path is the longest
// prefix of requestPath. Equal lengths resolve to the lowest id.
func (s *ConfigStore) FindByLongestPrefix(_ context.Context, requestPath string) (*menu.StoreConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *menu.StoreConfig
	for _, cfg := range s.sorted() {
		if !strings.HasPrefix(requestPath, "/"+cfg.StorePath) {
			continue
		}
		if best == nil || len(cfg.StorePath) > len(best.StorePath) {
			match := cfg
			best = &match
		}
	}
	return best, nil
}

// Get returns the config with id.
func (s *ConfigStore) Get(_ context.Context, id int64) (menu.StoreConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return menu.StoreConfig{}, fmt.Errorf("store config %d: %w", id, menu.ErrNotFound)
	}
	return cfg, nil
}

// ListAll returns every config ordered by id.
func (s *ConfigStore) ListAll(_ context.Context) ([]menu.StoreConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(), nil
}

// ListFiltered applies search, ordering and paging.
func (s *ConfigStore) ListFiltered(_ context.Context, filter menu.ConfigFilter) ([]menu.StoreConfig, int, error) {
	filter = filter.WithDefaults()

	s.mu.RLock()
	all := s.sorted()
	s.mu.RUnlock()

	matched := make([]menu.StoreConfig, 0, len(all))
	for _, cfg := range all {
		if filter.Search == "" ||
			strings.Contains(cfg.ProxyURL, filter.Search) ||
			strings.Contains(cfg.StorePath, filter.Search) {
			matched = append(matched, cfg)
		}
	}

	desc := filter.Order == "DESC"
	sort.SliceStable(matched, func(i, j int) bool {
		c := compareField(matched[i], matched[j], filter.OrderBy)
		if desc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	if filter.Offset >= total {
		return []menu.StoreConfig{}, total, nil
	}
	end := filter.Offset + filter.Number
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func compareField(a, b menu.StoreConfig, field string) int {
	switch field {
	case "page_id":
		return compareInt(a.PageID, b.PageID)
	case "proxy_url":
		return strings.Compare(a.ProxyURL, b.ProxyURL)
	case "sitemap_url":
		return strings.Compare(a.SitemapURL, b.SitemapURL)
	case "store_path":
		return strings.Compare(a.StorePath, b.StorePath)
	default:
		return compareInt(a.ID, b.ID)
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Count returns the number of stored configs.
func (s *ConfigStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs), nil
}

// Save inserts cfg when its id is zero, otherwise updates the existing row.
func (s *ConfigStore) Save(_ context.Context, cfg menu.StoreConfig) (int64, error) {
	if !cfg.Complete() {
		return 0, menu.ErrIncomplete
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == 0 {
		cfg.ID = s.nextID
		s.nextID++
		cfg.Header, cfg.Footer, cfg.HeadContent = "", "", ""
		s.configs[cfg.ID] = cfg
		return cfg.ID, nil
	}

	existing, ok := s.configs[cfg.ID]
	if !ok {
		return 0, fmt.Errorf("store config %d: %w", cfg.ID, menu.ErrNotFound)
	}
	existing.PageID = cfg.PageID
	existing.ProxyURL = cfg.ProxyURL
	existing.SitemapURL = cfg.SitemapURL
	existing.StorePath = cfg.StorePath
	s.configs[cfg.ID] = existing
	return cfg.ID, nil
}

// Delete removes the listed ids. Unknown ids are ignored.
func (s *ConfigStore) Delete(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.configs, id)
	}
	return nil
}
