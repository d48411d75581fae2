package server

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
)

// initialDBVersion is assumed when no version has been recorded.
const initialDBVersion = "0.0.1"

// needsUpgrade reports whether the recorded version is older than current.
// An unparsable recorded version always upgrades.
func needsUpgrade(recorded, current string) bool {
	r, c := canonicalVersion(recorded), canonicalVersion(current)
	if !semver.IsValid(r) {
		return true
	}
	return semver.Compare(r, c) < 0
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Upgrade brings persisted state up to this build's version: the schema is
// ensured, the sitemap regenerated and the new version recorded.
func (a *App) Upgrade(ctx context.Context) error {
	recorded, err := a.settings.String(ctx, menu.SettingDBVersion, initialDBVersion)
	if err != nil {
		if a.db == nil {
			return fmt.Errorf("read db version: %w", err)
		}
		// Fresh database: the options table does not exist yet.
		a.logger.Warn("db version unreadable, assuming initial", zap.Error(err))
		recorded = initialDBVersion
	}
	if !needsUpgrade(recorded, menu.Version) {
		a.logger.Debug("db version current", zap.String("version", recorded))
		return nil
	}
	a.logger.Info("upgrading", zap.String("from", recorded), zap.String("to", menu.Version))
	if err := a.EnsureSchema(ctx); err != nil {
		return err
	}
	if _, err := a.sitemap.Regenerate(ctx); err != nil {
		return fmt.Errorf("regenerate sitemap: %w", err)
	}
	if err := a.settings.SetString(ctx, menu.SettingDBVersion, menu.Version); err != nil {
		return fmt.Errorf("record db version: %w", err)
	}
	return nil
}
