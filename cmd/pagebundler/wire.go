package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-bundler/internal/api"
	"github.com/JakeFAU/page-bundler/internal/bundle"
	"github.com/JakeFAU/page-bundler/internal/clock/system"
	"github.com/JakeFAU/page-bundler/internal/config"
	"github.com/JakeFAU/page-bundler/internal/delivery/webhook"
	collyfetcher "github.com/JakeFAU/page-bundler/internal/fetcher/colly"
	"github.com/JakeFAU/page-bundler/internal/hash/sha256"
	"github.com/JakeFAU/page-bundler/internal/id/uuid"
	"github.com/JakeFAU/page-bundler/internal/logging"
	"github.com/JakeFAU/page-bundler/internal/pipeline"
	pubsubpublisher "github.com/JakeFAU/page-bundler/internal/publisher/pubsub"
	"github.com/JakeFAU/page-bundler/internal/storage/gcs"
	"github.com/JakeFAU/page-bundler/internal/storage/local"
	"github.com/JakeFAU/page-bundler/internal/storage/memory"
	"github.com/JakeFAU/page-bundler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/page-bundler/internal/storage/redis"
)

// sweepInterval is how often expired results leave the in-memory store.
const sweepInterval = time.Minute

// components holds everything main needs after wiring.
type components struct {
	pipeline  *pipeline.Pipeline
	store     bundle.BundleStore
	deliverer bundle.Deliverer
	checks    map[string]api.ReadinessCheck
	sweeper   *memory.BundleStore
	closers   []func()
}

// Close releases clients in reverse order of creation.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// wire builds the pipeline and its collaborators from cfg. Optional
// backends are only constructed when configured.
func wire(ctx context.Context, cfg config.Config, logger *zap.Logger) (*components, error) {
	c := &components{checks: map[string]api.ReadinessCheck{}}
	clock := system.New()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: int(cfg.HTTP.MaxBodyBytes),
	}, logging.Component(logger, "fetcher"))

	deps := pipeline.Deps{
		Fetcher:    fetcher,
		ProcessIDs: uuid.New(),
		ImageNames: uuid.NewRandom(),
		Hasher:     sha256.New(),
		Clock:      clock,
	}

	mirror, err := c.buildMirror(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	deps.Mirror = mirror

	if cfg.DB.DSN != "" {
		runs, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{DSN: cfg.DB.DSN, Table: cfg.DB.Table})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init run store: %w", err)
		}
		c.closers = append(c.closers, runs.Close)
		c.checks["postgres"] = runs.Ping
		deps.Recorder = runs
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		publisher := pubsubpublisher.New(client, cfg.PubSub.TopicName)
		c.closers = append(c.closers, func() {
			publisher.Close()
			if err := client.Close(); err != nil {
				logger.Warn("pubsub client close failed", zap.Error(err))
			}
		})
		deps.Publisher = publisher
	}

	switch cfg.Store.Backend {
	case config.StoreRedis:
		store, err := redisstore.New(redisstore.Config{
			Addr: cfg.Store.RedisAddr,
			DB:   cfg.Store.RedisDB,
			TTL:  cfg.Store.TTL,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		c.checks["redis"] = store.Ping
		c.closers = append(c.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("redis client close failed", zap.Error(err))
			}
		})
		c.store = store
	default:
		store := memory.NewBundleStore(cfg.Store.TTL, clock)
		c.sweeper = store
		c.store = store
	}

	if cfg.Webhook.URL != "" {
		deliverer, err := webhook.New(webhook.Config{
			URL:     cfg.Webhook.URL,
			Timeout: cfg.WebhookTimeout(),
		}, logging.Component(logger, "webhook"))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init webhook: %w", err)
		}
		c.deliverer = deliverer
	}

	p, err := pipeline.New(deps, pipeline.Config{
		OutputDir:    cfg.Storage.OutputDir,
		DefaultMode:  cfg.ContentMode(),
		MirrorPrefix: cfg.Storage.Prefix,
		Topic:        cfg.PubSub.TopicName,
	}, logging.Component(logger, "pipeline"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	c.pipeline = p
	return c, nil
}

func (c *components) buildMirror(ctx context.Context, cfg config.Config) (bundle.BlobStore, error) {
	switch cfg.Storage.Mirror {
	case config.MirrorLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local mirror: %w", err)
		}
		return store, nil
	case config.MirrorGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		c.closers = append(c.closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs mirror: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// sweep evicts expired in-memory results until ctx ends.
func (c *components) sweep(ctx context.Context, logger *zap.Logger) {
	if c.sweeper == nil {
		return
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.sweeper.Sweep(); n > 0 {
				logger.Debug("expired results evicted",
					zap.Int("count", n),
					zap.Int("pending", c.sweeper.Len()),
				)
			}
		}
	}
}
