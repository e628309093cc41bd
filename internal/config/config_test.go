package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/page-bundler/internal/bundle"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if got := cfg.FetchTimeout(); got != 30*time.Second {
		t.Fatalf("expected fetch timeout 30s, got %v", got)
	}
	if got := cfg.WebhookTimeout(); got != 30*time.Second {
		t.Fatalf("expected webhook timeout 30s, got %v", got)
	}
	if cfg.ContentMode() != bundle.ContentModeClean {
		t.Fatalf("expected clean mode, got %q", cfg.ContentMode())
	}
	if cfg.Storage.OutputDir != "." || cfg.Storage.Mirror != MirrorNone {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Store.Backend != StoreMemory || cfg.Store.TTL != time.Hour {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
http:
  timeout_seconds: 45
  max_body_bytes: 1048576
fetch:
  user_agent: bundler-test
content:
  mode: full
webhook:
  url: https://hooks.example.com/ingest
  timeout_seconds: 10
storage:
  output_dir: /tmp/bundles
  mirror: gcs
  gcs_bucket: bucket
  prefix: zips
store:
  backend: redis
  ttl: 90m
  redis_addr: redis:6379
  redis_db: 2
db:
  dsn: postgres://localhost/bundler
  table: runs
pubsub:
  project_id: proj
  topic_name: bundles
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if cfg.HTTP.MaxBodyBytes != 1048576 || cfg.Fetch.UserAgent != "bundler-test" {
		t.Fatalf("expected http overrides to apply: %+v %+v", cfg.HTTP, cfg.Fetch)
	}
	if cfg.ContentMode() != bundle.ContentModeFull {
		t.Fatalf("expected full mode, got %q", cfg.ContentMode())
	}
	if cfg.Webhook.URL != "https://hooks.example.com/ingest" || cfg.WebhookTimeout() != 10*time.Second {
		t.Fatalf("expected webhook overrides to apply: %+v", cfg.Webhook)
	}
	if cfg.Storage.Mirror != MirrorGCS || cfg.Storage.GCSBucket != "bucket" || cfg.Storage.Prefix != "zips" {
		t.Fatalf("expected storage overrides to apply: %+v", cfg.Storage)
	}
	if cfg.Store.Backend != StoreRedis || cfg.Store.TTL != 90*time.Minute || cfg.Store.RedisDB != 2 {
		t.Fatalf("expected store overrides to apply: %+v", cfg.Store)
	}
	if cfg.DB.Table != "runs" || cfg.PubSub.TopicName != "bundles" || cfg.Logging.Development {
		t.Fatalf("expected db/pubsub/logging overrides to apply: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Webhook: WebhookConfig{TimeoutSeconds: 10},
		Storage: StorageConfig{OutputDir: "."},
		Store:   StoreConfig{Backend: StoreMemory, TTL: time.Minute},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}

	tests := []struct {
		name string
		cfg  func(c Config) Config
		want string
	}{
		{"invalid port", func(c Config) Config { c.Server.Port = 0; return c }, "server.port"},
		{"invalid timeout", func(c Config) Config { c.HTTP.TimeoutSeconds = 0; return c }, "http.timeout_seconds"},
		{"negative body cap", func(c Config) Config { c.HTTP.MaxBodyBytes = -1; return c }, "http.max_body_bytes"},
		{"bad mode", func(c Config) Config { c.Content.Mode = "fancy"; return c }, "content.mode"},
		{"webhook timeout", func(c Config) Config { c.Webhook.TimeoutSeconds = 0; return c }, "webhook.timeout_seconds"},
		{"output dir", func(c Config) Config { c.Storage.OutputDir = ""; return c }, "storage.output_dir"},
		{"local mirror dir", func(c Config) Config { c.Storage.Mirror = MirrorLocal; return c }, "storage.local_dir"},
		{"gcs mirror bucket", func(c Config) Config { c.Storage.Mirror = MirrorGCS; return c }, "storage.gcs_bucket"},
		{"unknown mirror", func(c Config) Config { c.Storage.Mirror = "s3"; return c }, "storage.mirror"},
		{"unknown store", func(c Config) Config { c.Store.Backend = "etcd"; return c }, "store.backend"},
		{"redis addr", func(c Config) Config { c.Store.Backend = StoreRedis; return c }, "store.redis_addr"},
		{"ttl", func(c Config) Config { c.Store.TTL = 0; return c }, "store.ttl"},
		{"pubsub project", func(c Config) Config { c.PubSub.TopicName = "t"; return c }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg(base).Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
