// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access to a live harvest. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the current round/quota snapshot.
//   - GET /v1/run/records for the deduplicated records collected so far.
package api
