// Package fragment splits fetched storefront documents into serialized child nodes.
package fragment

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Children parses document leniently and returns each immediate child of the
// first element named tag, rendered back to HTML in document order. It
// returns nil when the document has no such element.
func Children(document, tag string) []string {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil
	}
	target := findFirst(root, strings.ToLower(tag))
	if target == nil {
		return nil
	}

	var out []string
	for child := target.FirstChild; child != nil; child = child.NextSibling {
		var buf bytes.Buffer
		if err := html.Render(&buf, child); err != nil {
			continue
		}
		out = append(out, buf.String())
	}
	return out
}

// Join concatenates fragments for emission at the rendering boundary.
func Join(fragments []string) string {
	return strings.Join(fragments, "\n")
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}
