package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/JoshPattman/resumestudio/events"
	"github.com/JoshPattman/resumestudio/export"
	"github.com/JoshPattman/resumestudio/graph"
	"github.com/JoshPattman/resumestudio/storage"
)

// closers collects cleanup functions of opened backends.
type closers []func()

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func openCheckpointStore(ctx context.Context, cfg Config, logger *slog.Logger, cleanup *closers) (storage.CheckpointStore, error) {
	logger = logger.With("backend", cfg.Checkpoints.Backend)
	switch cfg.Checkpoints.Backend {
	case BackendMemory:
		logger.Info("Storing threads in memory")
		return storage.NewMemoryStore(), nil
	case BackendRedis:
		if cfg.Secrets.RedisURL == "" {
			return nil, errors.New("REDIS_URL is not set")
		}
		store, err := storage.NewRedisStore(ctx, cfg.Secrets.RedisURL, cfg.Checkpoints.TTL)
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, func() { store.Close() })
		logger.Info("Storing threads in redis", "ttl", cfg.Checkpoints.TTL)
		return store, nil
	case BackendPostgres:
		if cfg.Secrets.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is not set")
		}
		store, err := storage.NewPostgresStore(ctx, cfg.Secrets.DatabaseURL)
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, store.Close)
		logger.Info("Storing threads in postgres")
		return store, nil
	default:
		store, err := storage.NewFileStore(cfg.Checkpoints.Dir)
		if err != nil {
			return nil, err
		}
		logger.Info("Storing threads on disk", "dir", cfg.Checkpoints.Dir)
		return store, nil
	}
}

// buildSink writes artifacts to the output directory and, when a bucket is
// configured, to S3.
func buildSink(ctx context.Context, cfg Config, logger *slog.Logger) (export.Sink, error) {
	var sinks export.MultiSink
	if cfg.Output.Dir != "" {
		dir, err := export.NewDirSink(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dir)
		logger.Info("Writing results to disk", "dir", cfg.Output.Dir)
	}
	if cfg.Output.S3Bucket != "" {
		s3Sink, err := export.NewS3Sink(ctx, export.S3Options{
			Bucket:    cfg.Output.S3Bucket,
			Prefix:    cfg.Output.S3Prefix,
			Endpoint:  cfg.Output.S3Endpoint,
			Region:    cfg.Output.S3Region,
			AccessKey: cfg.Secrets.S3AccessKey,
			SecretKey: cfg.Secrets.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
		logger.Info("Uploading results to S3", "bucket", cfg.Output.S3Bucket)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

// buildObservers logs events and publishes them to AMQP when AMQP_URL is set.
func buildObservers(cfg Config, logger *slog.Logger, cleanup *closers) ([]graph.Observer, error) {
	observers := []graph.Observer{events.LogObserver(logger)}
	if cfg.Secrets.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.Secrets.AMQPURL, cfg.Events.AMQPExchange, logger)
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, func() { pub.Close() })
		observers = append(observers, pub)
		logger.Info("Publishing events", "exchange", cfg.Events.AMQPExchange)
	}
	return observers, nil
}
