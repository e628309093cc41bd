// Package api hosts the HTTP server, middleware, and REST handlers of the
// page bundler. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/bundles to run the pipeline for a URL.
//   - GET /v1/bundles/{id} and /v1/bundles/{id}/archive to inspect a result.
//   - DELETE /v1/bundles/{id} to evict a pending result.
//   - POST /v1/bundles/{id}/deliver to forward a result to the webhook.
//
// Runs and deliveries are detached from the request context and are not
// subject to RequestTimeout.
package api
