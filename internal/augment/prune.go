// Package augment prunes and enriches storefront head fragments.
package augment

import "strings"

// Pruner decides which head fragments survive into the host page.
type Pruner interface {
	Prune(fragments []string) []string
}

// DefaultDenylist lists substrings whose presence removes a head fragment.
var DefaultDenylist = []string{
	`charset="`,
	`http-equiv`,
	`name="viewport`,
	`<title`,
	`mobile-web-app-capable`,
	`googletagmanager`,
	`window.dataLayer`,
}

// SubstringPruner removes any fragment containing a denylisted substring
// anywhere in its serialized HTML.
type SubstringPruner struct {
	Denylist []string
}

// NewSubstringPruner returns a pruner using DefaultDenylist.
func NewSubstringPruner() *SubstringPruner {
	return &SubstringPruner{Denylist: DefaultDenylist}
}

// Prune returns the surviving fragments in their original order.
func (p *SubstringPruner) Prune(fragments []string) []string {
	out := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		if p.banned(fragment) {
			continue
		}
		out = append(out, fragment)
	}
	return out
}

func (p *SubstringPruner) banned(fragment string) bool {
	for _, needle := range p.Denylist {
		if strings.Contains(fragment, needle) {
			return true
		}
	}
	return false
}
