package admin

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/partner"
)

// Messages returned by the page lookup helpers.
const (
	MsgMissingPageID = "Error: somehow the Page ID did not come through."
	MsgUnknownPage   = "Error: the page with this Page ID does not exist."
)

// Post types never offered in the picker.
var hiddenPostTypes = map[string]bool{
	"attachment":        true,
	"e-landing-page":    true,
	"elementor_library": true,
}

// PageRelativePath returns the absolute store URL for pageID, built from the
// site URL and the page's relative path.
func (s *Service) PageRelativePath(ctx context.Context, pageID int64) (string, error) {
	post, err := s.lookupPage(ctx, pageID)
	if err != nil {
		return "", err
	}
	rel, ok := post.RelativePath()
	if !ok || rel == "" {
		return "", &ValidationError{Message: MsgUnknownPage}
	}
	return strings.TrimRight(s.cfg.SiteURL, "/") + "/" + rel + "/", nil
}

// PagePath returns the permalink of pageID.
func (s *Service) PagePath(ctx context.Context, pageID int64) (string, error) {
	post, err := s.lookupPage(ctx, pageID)
	if err != nil {
		return "", err
	}
	if post.Permalink == "" {
		return "", &ValidationError{Message: MsgUnknownPage}
	}
	return post.Permalink, nil
}

func (s *Service) lookupPage(ctx context.Context, pageID int64) (menu.Post, error) {
	if pageID <= 0 {
		return menu.Post{}, &ValidationError{Message: MsgMissingPageID}
	}
	post, err := s.posts.Post(ctx, pageID)
	if errors.Is(err, menu.ErrNotFound) {
		return menu.Post{}, &ValidationError{Message: MsgUnknownPage}
	}
	if err != nil {
		return menu.Post{}, fmt.Errorf("load page %d: %w", pageID, err)
	}
	return post, nil
}

// VerifyStorePath reports whether the storefront at proxyURL advertises the
// path of storeURL, compared without its trailing slash.
func (s *Service) VerifyStorePath(ctx context.Context, proxyURL, storeURL string) bool {
	candidate := storeURL
	if u, err := url.Parse(storeURL); err == nil {
		candidate = u.Path
	}
	return partner.VerifyStorePath(ctx, s.fetcher, proxyURL, strings.TrimRight(candidate, "/"))
}

// PostTypeItemsHTML renders the item picker for postType with pageID
// preselected. Problems with postType render as an inline notice.
func (s *Service) PostTypeItemsHTML(ctx context.Context, postType string, pageID int64) (string, error) {
	if postType == "" || postType == "0" {
		return `<br/><span style="color:red;">Please select a Post Type</span>`, nil
	}
	pt, err := s.posts.PostType(ctx, postType)
	if errors.Is(err, menu.ErrNotFound) {
		return `<span style="color:red;">Desired post type has not been found: ` + html.EscapeString(postType) + `</span>`, nil
	}
	if err != nil {
		return "", fmt.Errorf("load post type %q: %w", postType, err)
	}
	if !pt.Public {
		return `<span style="color:red;">Desired post type is not public: ` + html.EscapeString(postType) + `</span>`, nil
	}

	items, err := s.posts.PostsByType(ctx, postType)
	if err != nil {
		return "", fmt.Errorf("list %q items: %w", postType, err)
	}

	options := "No items found for this post type."
	if len(items) > 0 {
		var b strings.Builder
		b.WriteString(`<select id="page_id" name="page_id"`)
		if pt.Hierarchical {
			b.WriteString(` class="regular-text"`)
		}
		b.WriteString(`>`)
		b.WriteString(`<option value="0"` + selected(pageID == 0) + `>Select one:</option>`)
		for _, item := range items {
			b.WriteString(`<option value="` + strconv.FormatInt(item.ID, 10) + `"` + selected(item.ID == pageID) + `>`)
			b.WriteString(html.EscapeString(item.Title))
			b.WriteString(`</option>`)
		}
		b.WriteString(`</select>`)
		options = b.String()
	}

	label := pt.SingularName
	if label == "" {
		label = pt.Label
	}
	return `<label>` + html.EscapeString(label) + `<span> * </span></label><br />` + options, nil
}

// PostTypesHTML renders the post type picker, preselecting the type of
// pageID or "page" for a new config.
func (s *Service) PostTypesHTML(ctx context.Context, pageID int64) (string, error) {
	current := "page"
	if pageID > 0 {
		current = ""
		if post, err := s.posts.Post(ctx, pageID); err == nil {
			current = post.Type
		}
	}
	types, err := s.posts.PostTypes(ctx)
	if err != nil {
		return "", fmt.Errorf("list post types: %w", err)
	}

	var b strings.Builder
	b.WriteString(`<label>Post type<span> * </span></label><br />`)
	dataPageID := ""
	if pageID > 0 {
		dataPageID = strconv.FormatInt(pageID, 10)
	}
	b.WriteString(`<select id="post_type" name="post_type" data-page_id="` + dataPageID + `">`)
	b.WriteString(`<option value="0"` + selected(current == "") + `>Select one:</option>`)
	for _, pt := range types {
		if !pt.Public || hiddenPostTypes[pt.Name] {
			continue
		}
		b.WriteString(`<option value="` + html.EscapeString(pt.Name) + `"` + selected(pt.Name == current) + `>`)
		b.WriteString(html.EscapeString(pt.Label))
		b.WriteString(`</option>`)
	}
	b.WriteString(`</select>`)
	return b.String(), nil
}

func selected(on bool) string {
	if on {
		return ` selected="selected"`
	}
	return ""
}
