package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

const (
	postColumns     = "id, post_type, post_name, post_title, permalink"
	postTypeColumns = "name, label, singular_name, public, hierarchical, builtin"
)

// PostDirectory implements menu.PostDirectory over the host posts tables.
type PostDirectory struct {
	pool  pgxPool
	posts string
	types string
}

var _ menu.PostDirectory = (*PostDirectory)(nil)

func scanPost(row pgx.Row) (menu.Post, error) {
	var p menu.Post
	err := row.Scan(&p.ID, &p.Type, &p.Slug, &p.Title, &p.Permalink)
	return p, err //nolint:wrapcheck
}

func scanPostType(row pgx.Row) (menu.PostType, error) {
	var pt menu.PostType
	err := row.Scan(&pt.Name, &pt.Label, &pt.SingularName, &pt.Public, &pt.Hierarchical, &pt.Builtin)
	return pt, err //nolint:wrapcheck
}

// Post returns the post with id.
func (d *PostDirectory) Post(ctx context.Context, id int64) (menu.Post, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, postColumns, d.posts)
	p, err := scanPost(d.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return menu.Post{}, fmt.Errorf("post %d: %w", id, menu.ErrNotFound)
	}
	if err != nil {
		return menu.Post{}, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// PostsByType lists the posts of postType ordered by title.
func (d *PostDirectory) PostsByType(ctx context.Context, postType string) ([]menu.Post, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE post_type = $1 ORDER BY post_title ASC, id ASC`, postColumns, d.posts)
	rows, err := d.pool.Query(ctx, query, postType)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	out := make([]menu.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}

// PostType returns the registered type called name.
func (d *PostDirectory) PostType(ctx context.Context, name string) (menu.PostType, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE name = $1`, postTypeColumns, d.types)
	pt, err := scanPostType(d.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return menu.PostType{}, fmt.Errorf("post type %q: %w", name, menu.ErrNotFound)
	}
	if err != nil {
		return menu.PostType{}, fmt.Errorf("get post type: %w", err)
	}
	return pt, nil
}

// PostTypes lists every registered type ordered by name.
func (d *PostDirectory) PostTypes(ctx context.Context) ([]menu.PostType, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY name ASC`, postTypeColumns, d.types)
	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list post types: %w", err)
	}
	defer rows.Close()

	out := make([]menu.PostType, 0)
	for rows.Next() {
		pt, err := scanPostType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post type: %w", err)
		}
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post types: %w", err)
	}
	return out, nil
}
