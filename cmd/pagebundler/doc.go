// Package main hosts the page bundler entrypoint.
//
// Architecture overview:
//   - Pipeline: internal/pipeline fetches a page through the Colly fetcher, parses it with goquery, extracts the
//     page title and meta fields, downloads every <img> into a per-URL folder, renders clean or full content and
//     zips the folder. Image failures are reported per image; fetch and archive failures end the run.
//   - HTTP API: internal/api.Server exposes POST /v1/bundles to run the pipeline, GET routes to read a pending
//     result or stream its archive, and POST /v1/bundles/{id}/deliver to forward it to the webhook once.
//   - Pending results: kept in memory with a TTL sweeper, or in Redis when store.backend=redis so several
//     replicas can share them.
//   - Side effects: archives are optionally mirrored to a local directory or a GCS bucket, each run is recorded
//     in Postgres when db.dsn is set, and a bundle.created event is published to Pub/Sub when a topic is set.
//     None of these can fail a run.
//   - Plumbing: Viper populates config from env/files, zap provides structured logging, and Prometheus metrics
//     are exported via the metrics middleware and /metrics handler.
//
// Quick checklist:
//   - Configure env vars: BUNDLER_SERVER_PORT, BUNDLER_WEBHOOK_URL, BUNDLER_STORAGE_OUTPUT_DIR,
//     BUNDLER_STORE_BACKEND, BUNDLER_DB_DSN, BUNDLER_PUBSUB_PROJECT_ID and BUNDLER_PUBSUB_TOPIC_NAME.
//   - One-shot: go run ./cmd/pagebundler -url https://example.com/post -mode clean -deliver
//   - Service: go run ./cmd/pagebundler -config config.yaml
package main
