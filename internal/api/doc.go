// Package api hosts the HTTP server for operator access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sync to run discovery, GET /v1/sync/latest for the last summary.
//   - GET /v1/grants for the stored grants of the configured source.
package api
