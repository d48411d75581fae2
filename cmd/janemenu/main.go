// Package main hosts the storefront proxy entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server serves storefront pages for every path under a configured store, robots.txt,
//     the aggregated sitemap, health and metrics endpoints, and the admin store-config API.
//   - Request path: internal/resolver matches the request to the longest store path prefix, fetches the remote
//     storefront once per request through the Colly fetcher, and splits it into pruned head and body fragments.
//     Product pages get metadata tags from the partner search index.
//   - Persistence: store configs, host posts and settings live in Postgres (pgx) or in memory. The sitemap file is
//     written to local disk, GCS or memory.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler; OpenTelemetry spans wrap remote fetches.
//
// Quick checklist:
//   - Configure env vars: JANEMENU_SERVER_PORT, JANEMENU_SERVER_PUBLIC_BASE_URL, JANEMENU_DB_DSN,
//     JANEMENU_STORAGE_BACKEND and JANEMENU_STORAGE_BASE_URL.
//   - Run locally: go run ./cmd/janemenu serve --config config.yaml (or rely solely on env overrides).
//   - Create tables without serving: go run ./cmd/janemenu schema ensure.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
