// Package api hosts the optional status server for a running batch. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live run snapshot, /v1/run/failed for failures only.
//   - POST /v1/run/cancel to stop the run; remaining items are marked failed.
package api
