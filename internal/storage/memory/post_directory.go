package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// PostDirectory serves host posts and post types from memory.
type PostDirectory struct {
	mu    sync.RWMutex
	posts map[int64]menu.Post
	types map[string]menu.PostType
}

var _ menu.PostDirectory = (*PostDirectory)(nil)

// NewPostDirectory constructs a PostDirectory. The built-in page and post
// types are always registered.
func NewPostDirectory() *PostDirectory {
	d := &PostDirectory{
		posts: make(map[int64]menu.Post),
		types: make(map[string]menu.PostType),
	}
	d.AddType(menu.PostType{Name: "page", Label: "Pages", SingularName: "Page", Public: true, Hierarchical: true, Builtin: true})
	d.AddType(menu.PostType{Name: "post", Label: "Posts", SingularName: "Post", Public: true, Builtin: true})
	return d
}

// AddType registers or replaces a post type.
func (d *PostDirectory) AddType(pt menu.PostType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.types[pt.Name] = pt
}

// AddPost registers or replaces a post.
func (d *PostDirectory) AddPost(p menu.Post) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.posts[p.ID] = p
}

// Post returns the post with id.
func (d *PostDirectory) Post(_ context.Context, id int64) (menu.Post, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.posts[id]
	if !ok {
		return menu.Post{}, fmt.Errorf("post %d: %w", id, menu.ErrNotFound)
	}
	return p, nil
}

// PostsByType returns the posts of postType ordered by title then id.
func (d *PostDirectory) PostsByType(_ context.Context, postType string) ([]menu.Post, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]menu.Post, 0)
	for _, p := range d.posts {
		if p.Type == postType {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PostType returns the registered type called name.
func (d *PostDirectory) PostType(_ context.Context, name string) (menu.PostType, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pt, ok := d.types[name]
	if !ok {
		return menu.PostType{}, fmt.Errorf("post type %q: %w", name, menu.ErrNotFound)
	}
	return pt, nil
}

// PostTypes returns every registered type ordered by name.
func (d *PostDirectory) PostTypes(_ context.Context) ([]menu.PostType, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]menu.PostType, 0, len(d.types))
	for _, pt := range d.types {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
