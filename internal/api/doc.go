// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/harvest to run or submit harvesters for an entity.
//   - GET /v1/harvesters, /v1/jobs and /v1/jobs/{id} for status.
//   - GET /v1/entities/{entity}/artifacts for stored records.
package api
