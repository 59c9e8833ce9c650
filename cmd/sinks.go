package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/doc-harvester/internal/progress"
	"github.com/JakeFAU/doc-harvester/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/doc-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/doc-harvester/internal/storage/gcs"
	"github.com/JakeFAU/doc-harvester/internal/storage/postgres"
)

// buildSinks assembles progress sinks for the configured backends. The log
// and Prometheus sinks are always present. The returned func releases the
// backend clients and must be called after the hub is closed.
func buildSinks(ctx context.Context, app *App, logger *zap.Logger) ([]progress.Sink, func(), error) {
	cfg := app.Config
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	promSink, err := sinks.NewPrometheusSink(app.Metrics.Registry())
	if err != nil {
		return nil, cleanup, fmt.Errorf("prometheus sink: %w", err)
	}
	out := []progress.Sink{sinks.NewLogSink(logger.Named("events")), promSink}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewOutcomeStore(ctx, postgres.OutcomeStoreConfig{DSN: cfg.DB.DSN, Table: cfg.DB.Table})
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("outcome store: %w", err)
		}
		closers = append(closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("migrate outcome store: %w", err)
		}
		out = append(out, sinks.NewStoreSink(store, logger.Named("store")))
		logger.Info("recording outcomes to postgres", zap.String("table", cfg.DB.Table))
	}

	if cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.New(ctx, pubsubpublisher.Config{
			ProjectID: cfg.PubSub.ProjectID,
			TopicName: cfg.PubSub.TopicName,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("pubsub publisher: %w", err)
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("pubsub close failed", zap.Error(err))
			}
		})
		out = append(out, sinks.NewPublishSink(pub, cfg.PubSub.TopicName, logger.Named("publish")))
		logger.Info("publishing outcomes", zap.String("topic", cfg.PubSub.TopicName))
	}

	if cfg.Storage.GCSBucket != "" {
		blobs, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("gcs mirror: %w", err)
		}
		closers = append(closers, func() {
			if err := blobs.Close(); err != nil {
				logger.Warn("gcs close failed", zap.Error(err))
			}
		})
		out = append(out, sinks.NewMirrorSink(blobs, "", logger.Named("mirror")))
		logger.Info("mirroring downloads", zap.String("bucket", cfg.Storage.GCSBucket))
	}

	return out, cleanup, nil
}
