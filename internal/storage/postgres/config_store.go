package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

const configColumns = "id, page_id, proxy_url, sitemap_url, store_path"

// ConfigStore implements menu.ConfigRepository on Postgres.
type ConfigStore struct {
	pool  pgxPool
	table string
}

var _ menu.ConfigRepository = (*ConfigStore)(nil)

func scanConfig(row pgx.Row) (menu.StoreConfig, error) {
	var cfg menu.StoreConfig
	err := row.Scan(&cfg.ID, &cfg.PageID, &cfg.ProxyURL, &cfg.SitemapURL, &cfg.StorePath)
	return cfg, err //nolint:wrapcheck
}

func collectConfigs(rows pgx.Rows) ([]menu.StoreConfig, error) {
	defer rows.Close()
	out := make([]menu.StoreConfig, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store config: %w", err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store configs: %w", err)
	}
	return out, nil
}

// FindByLongestPrefix returns the config whose "/"+store_path is the longest
// literal prefix of requestPath, breaking ties on the lowest id.
func (s *ConfigStore) FindByLongestPrefix(ctx context.Context, requestPath string) (*menu.StoreConfig, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE left($1::text, length(store_path) + 1) = '/' || store_path
ORDER BY length(store_path) DESC, id ASC
LIMIT 1`, configColumns, s.table)

	cfg, err := scanConfig(s.pool.QueryRow(ctx, query, requestPath))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find store config by path: %w", err)
	}
	return &cfg, nil
}

// Get returns the config with id.
func (s *ConfigStore) Get(ctx context.Context, id int64) (menu.StoreConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, configColumns, s.table)
	cfg, err := scanConfig(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return menu.StoreConfig{}, fmt.Errorf("store config %d: %w", id, menu.ErrNotFound)
	}
	if err != nil {
		return menu.StoreConfig{}, fmt.Errorf("get store config: %w", err)
	}
	return cfg, nil
}

// ListAll returns every config ordered by id.
func (s *ConfigStore) ListAll(ctx context.Context) ([]menu.StoreConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id ASC`, configColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list store configs: %w", err)
	}
	return collectConfigs(rows)
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

// ListFiltered applies search, ordering and paging. The returned total
// reflects the search filter, not the page.
func (s *ConfigStore) ListFiltered(ctx context.Context, filter menu.ConfigFilter) ([]menu.StoreConfig, int, error) {
	filter = filter.WithDefaults()

	where := ""
	var args []any
	if filter.Search != "" {
		where = "WHERE proxy_url LIKE $1 OR store_path LIKE $1"
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT count(*) FROM %s %s`, s.table, where)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count store configs: %w", err)
	}

	// OrderBy and Order are whitelisted by WithDefaults.
	listQuery := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d`,
		configColumns, s.table, where, filter.OrderBy, filter.Order, len(args)+1, len(args)+2)
	args = append(args, filter.Number, filter.Offset)
	rows, err := s.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list store configs: %w", err)
	}
	configs, err := collectConfigs(rows)
	if err != nil {
		return nil, 0, err
	}
	return configs, int(total), nil
}

// Count returns the number of stored configs.
func (s *ConfigStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count store configs: %w", err)
	}
	return int(n), nil
}

// Save inserts cfg when its id is zero, otherwise updates the existing row.
// Legacy columns are written empty on insert and never touched on update.
func (s *ConfigStore) Save(ctx context.Context, cfg menu.StoreConfig) (int64, error) {
	if !cfg.Complete() {
		return 0, menu.ErrIncomplete
	}
	if cfg.ID == 0 {
		query := fmt.Sprintf(`
INSERT INTO %s (page_id, proxy_url, sitemap_url, store_path, header, footer, head_content)
VALUES ($1, $2, $3, $4, '', '', '')
RETURNING id`, s.table)
		var id int64
		err := s.pool.QueryRow(ctx, query, cfg.PageID, cfg.ProxyURL, cfg.SitemapURL, cfg.StorePath).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert store config: %w", err)
		}
		return id, nil
	}

	query := fmt.Sprintf(`
UPDATE %s SET page_id = $1, proxy_url = $2, sitemap_url = $3, store_path = $4
WHERE id = $5`, s.table)
	tag, err := s.pool.Exec(ctx, query, cfg.PageID, cfg.ProxyURL, cfg.SitemapURL, cfg.StorePath, cfg.ID)
	if err != nil {
		return 0, fmt.Errorf("update store config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, fmt.Errorf("store config %d: %w", cfg.ID, menu.ErrNotFound)
	}
	return cfg.ID, nil
}

// Delete removes the listed ids.
func (s *ConfigStore) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table)
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("delete store configs: %w", err)
	}
	return nil
}
