// Package api hosts the read-only HTTP interface downstream consumers use to
// query the catalog. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/games and /v1/games/{id} for enriched records, paged by id.
//   - GET /v1/stats for live counts and the persisted crawl state.
//   - POST /v1/admin/reset, mounted only when auth is enabled and guarded by the API key.
package api
