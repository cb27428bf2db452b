// Package api hosts the HTTP server, middleware, and REST handlers for the dashboard.
// Routes are served at the root and again under /api/v1:
//   - GET /states, /districts?state=, /dashboard?state=&district=&months= for dashboard reads.
//   - POST /refresh to flush the remote cache and rerun ingestion (API key when auth is on).
//   - GET /health, /readyz for probes and GET /snapshots/latest for ingestion status.
//   - GET /metrics for Prometheus scraping (root only).
package api
