package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// Settings implements menu.Settings on the options table.
type Settings struct {
	pool  pgxPool
	table string
}

var _ menu.Settings = (*Settings)(nil)

// String returns the stored option or def when absent.
func (s *Settings) String(ctx context.Context, key string, def string) (string, error) {
	query := fmt.Sprintf(`SELECT option_value FROM %s WHERE option_name = $1`, s.table)
	var value string
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("get option %s: %w", key, err)
	}
	return value, nil
}

// SetString upserts an option.
func (s *Settings) SetString(ctx context.Context, key string, value string) error {
	query := fmt.Sprintf(`
INSERT INTO %s (option_name, option_value) VALUES ($1, $2)
ON CONFLICT (option_name) DO UPDATE SET option_value = EXCLUDED.option_value`, s.table)
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set option %s: %w", key, err)
	}
	return nil
}

// Bool returns the stored flag or def when absent or unparsable.
func (s *Settings) Bool(ctx context.Context, key string, def bool) (bool, error) {
	raw, err := s.String(ctx, key, "")
	if err != nil {
		return def, err
	}
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

// SetBool stores a flag as "1" or "0".
func (s *Settings) SetBool(ctx context.Context, key string, value bool) error {
	raw := "0"
	if value {
		raw = "1"
	}
	return s.SetString(ctx, key, raw)
}
