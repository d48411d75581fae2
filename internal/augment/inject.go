package augment

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// ProductTitle formats the og:title value as "{name} | {brand} | {brand_subtype}".
func ProductTitle(product menu.ProductMetadata) string {
	return strings.Join([]string{product.Name, product.Brand, product.BrandSubtype}, " | ")
}

// InjectProductMetadata appends canonical, OpenGraph and Twitter card tags to
// head. Missing product fields render as empty attribute values.
func InjectProductMetadata(head []string, product menu.ProductMetadata, productURL, siteName string) []string {
	title := ProductTitle(product)
	image := product.ImageURL()

	tags := []string{
		fmt.Sprintf(`<link rel="canonical" href="%s" />`, attr(productURL)),
		meta("og:title", title),
		meta("og:description", product.Description),
		meta("og:url", productURL),
		meta("og:image", image),
		meta("og:site_name", siteName),
		meta("twitter:card", "summary_large_image"),
		meta("twitter:title", title),
		meta("twitter:description", product.Description),
		meta("twitter:image", image),
	}

	out := make([]string, 0, len(head)+len(tags))
	out = append(out, head...)
	return append(out, tags...)
}

func meta(name, content string) string {
	return fmt.Sprintf(`<meta name="%s" content="%s">`, name, attr(content))
}

func attr(value string) string {
	return html.EscapeString(value)
}
