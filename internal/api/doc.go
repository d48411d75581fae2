// Package api hosts the HTTP server, middleware and handlers. Notable routes:
//   - GET|HEAD /* renders matched storefront pages and 404s otherwise.
//   - GET /robots.txt, /jane-menu/sitemap.xml and /sitemaps/jane.xml.
//   - /admin/store-configs and /admin/settings for config management.
//   - POST /admin/ajax/... for the admin form helpers, using the
//     {"success": bool, "data": ...} envelope.
//   - GET /healthz, /readyz and /metrics for probes and scraping.
package api
