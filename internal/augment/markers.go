package augment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

var (
	storeIDPattern           = regexp.MustCompile(`"storeId":(\d+)`)
	partnerHostedPathPattern = regexp.MustCompile(`"partnerHostedPath":([^,}]+)`)
	productIDPattern         = regexp.MustCompile(`/products/(\d+)/`)
)

// StoreID returns the storeId embedded in the runtime config script. When
// several fragments carry the marker, the last one that yields an id wins.
func StoreID(head []string) (int64, bool) {
	var (
		id    int64
		found bool
	)
	for _, fragment := range head {
		if !strings.Contains(fragment, menu.RuntimeConfigMarker) {
			continue
		}
		m := storeIDPattern.FindStringSubmatch(fragment)
		if m == nil {
			continue
		}
		parsed, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		id, found = parsed, true
	}
	return id, found
}

// PartnerHostedPath returns the partnerHostedPath advertised by the first
// runtime config fragment, stripped of quotes and escaping backslashes.
func PartnerHostedPath(head []string) (string, bool) {
	for _, fragment := range head {
		if !strings.Contains(fragment, menu.RuntimeConfigMarker) {
			continue
		}
		m := partnerHostedPathPattern.FindStringSubmatch(fragment)
		if m == nil {
			return "", false
		}
		return strings.Trim(strings.TrimSpace(m[1]), `\"`), true
	}
	return "", false
}

// ProductID parses the numeric segment following /products/ in a request path.
func ProductID(path string) (int64, bool) {
	m := productIDPattern.FindStringSubmatch(path)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
