package sitemap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DefaultRobots is the host robots.txt body before sitemap lines are added.
const DefaultRobots = "User-agent: *\nDisallow: /admin/\n"

// AppendRobots adds a Sitemap line to output when the feature is enabled and
// the file exists. A missing file is generated first.
func (a *Aggregator) AppendRobots(ctx context.Context, output string, tls bool) string {
	exists, err := a.Exists(ctx)
	if err != nil {
		a.logger.Warn("sitemap stat failed", zap.Error(err))
		return output
	}
	if !exists {
		if exists, err = a.Regenerate(ctx); err != nil {
			a.logger.Warn("sitemap generation for robots.txt failed", zap.Error(err))
			return output
		}
	}
	enabled, err := a.Enabled(ctx)
	if err != nil {
		a.logger.Warn("sitemap flag read failed", zap.Error(err))
		return output
	}
	if !enabled || !exists {
		return output
	}
	return output + fmt.Sprintf("Sitemap: %s", a.URL(tls)) + "\n"
}

// RobotsTXT appends one Sitemap line per site to base, in site order.
func RobotsTXT(ctx context.Context, base string, sites []*Aggregator, tls bool) string {
	out := base
	for _, site := range sites {
		out = site.AppendRobots(ctx, out, tls)
	}
	return out
}
