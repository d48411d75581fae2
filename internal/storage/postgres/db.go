// Package postgres provides Postgres-backed persistence for store configs,
// host posts and settings.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTablePrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$|^$`)

//go:embed schema.sql
var schemaSQL string

// DefaultTablePrefix matches the host CMS's default table prefix.
const DefaultTablePrefix = "wp_"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// DB owns the pool and hands out the repositories built on it.
type DB struct {
	pool   pgxPool
	prefix string
}

// Open connects a pool using cfg.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	prefix, err := tablePrefix(cfg.TablePrefix)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{pool: pool, prefix: prefix}, nil
}

// NewWithPool constructs a DB from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, prefix string) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	p, err := tablePrefix(prefix)
	if err != nil {
		return nil, err
	}
	return &DB{pool: pool, prefix: p}, nil
}

func tablePrefix(prefix string) (string, error) {
	if prefix == "" {
		return DefaultTablePrefix, nil
	}
	if !validTablePrefix.MatchString(prefix) {
		return "", fmt.Errorf("invalid table prefix %q", prefix)
	}
	return prefix, nil
}

// Close releases the underlying pool resources.
func (db *DB) Close() {
	if db == nil || db.pool == nil {
		return
	}
	db.pool.Close()
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// ConfigTable returns the prefixed store config table name.
func (db *DB) ConfigTable() string {
	return db.prefix + "jane_store_menu_config"
}

func (db *DB) postsTable() string     { return db.prefix + "posts" }
func (db *DB) postTypesTable() string { return db.prefix + "post_types" }
func (db *DB) optionsTable() string   { return db.prefix + "options" }

// schemaStatements renders schema.sql for the configured prefix.
func (db *DB) schemaStatements() []string {
	rendered := strings.ReplaceAll(schemaSQL, "{{prefix}}", db.prefix)
	var out []string
	for _, stmt := range strings.Split(rendered, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// EnsureSchema creates any missing tables. Existing tables are left as is.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range db.schemaStatements() {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Configs returns the store config repository.
func (db *DB) Configs() *ConfigStore {
	return &ConfigStore{pool: db.pool, table: db.ConfigTable()}
}

// Posts returns the host post directory.
func (db *DB) Posts() *PostDirectory {
	return &PostDirectory{pool: db.pool, posts: db.postsTable(), types: db.postTypesTable()}
}

// Settings returns the option store.
func (db *DB) Settings() *Settings {
	return &Settings{pool: db.pool, table: db.optionsTable()}
}
