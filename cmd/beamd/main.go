// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/bucketbeam/internal/arena"
	"github.com/nishisan-dev/bucketbeam/internal/beam"
	"github.com/nishisan-dev/bucketbeam/internal/config"
	"github.com/nishisan-dev/bucketbeam/internal/logging"
	"github.com/nishisan-dev/bucketbeam/internal/pipeline"
	"github.com/nishisan-dev/bucketbeam/internal/storage"
)

func main() {
	configPath := flag.String("config", "/etc/beamd/beamd.yaml", "path to daemon config file")
	flag.Parse()

	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, "")
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule.Cron == "" {
		if err := runOnce(ctx, cfg, logger); err != nil {
			logger.Error("run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule.Cron, func() {
		if err := runOnce(ctx, cfg, logger); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	}); err != nil {
		logger.Error("invalid schedule", "error", err)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	logger.Info("shutting down")
}

// runOnce creates one arena per side, binds a beam between them, and
// runs the producer (sender) and consumer (receiver) to completion.
func runOnce(ctx context.Context, cfg *config.DaemonConfig, logger *slog.Logger) error {
	sessionID := time.Now().UTC().Format("20060102T150405Z")
	sessionLogger, closeSession, sessionLogPath, err := logging.NewSessionLogger(logger, cfg.Logging.SessionDir, cfg.Consumer.Key, sessionID)
	if err != nil {
		return fmt.Errorf("creating session logger: %w", err)
	}
	defer closeSession.Close()
	logger = sessionLogger
	if sessionLogPath != "" {
		logger.Info("session log opened", "path", sessionLogPath)
	}

	backend, err := buildBackend(ctx, cfg.Consumer)
	if err != nil {
		return fmt.Errorf("building storage backend: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loadSampler := pipeline.NewLoadSampler(logger, 0)
	loadSampler.Start()
	defer loadSampler.Stop()

	sendArena := arena.New(runCtx)
	recvArena := arena.New(runCtx)

	b := beam.Create(sendArena, beam.Options{
		Tag:        cfg.Consumer.Key,
		Owner:      beam.SenderOwned,
		MaxBufSize: cfg.Beam.MaxBufSizeRaw,
		Timeout:    cfg.Beam.Timeout,
		Logger:     logger,
	})
	defer b.Destroy()

	producer := pipeline.NewProducer(pipeline.Options{
		Sources:     cfg.Producer.Sources,
		Excludes:    cfg.Producer.Exclude,
		ChunkSize:   cfg.Producer.ChunkSizeRaw,
		Compression: parseCompression(cfg.Producer.Compression),
		Logger:      logger,
	})
	if cfg.Producer.RateLimitRaw > 0 {
		pipeline.NewThrottledProducer(runCtx, cfg.Producer.RateLimitRaw).Attach(b)
	}
	consumer := pipeline.NewConsumer(backend, cfg.Consumer.Key, logger)

	producerErr := make(chan error, 1)
	consumerErr := make(chan error, 1)

	go func() { producerErr <- producer.Run(runCtx, sendArena, b) }()
	go func() { consumerErr <- consumer.Run(runCtx, recvArena, b) }()

	pErr := <-producerErr
	cErr := <-consumerErr

	load := loadSampler.Last()
	logger.Info("beam run complete",
		"files_beamed", b.GetFilesBeamed(),
		"was_received", b.WasReceived(),
		"empty", b.Empty(),
		"host_cpu_percent", load.CPUPercent,
		"host_disk_percent", load.DiskUsagePercent,
	)

	if pErr != nil {
		return fmt.Errorf("producer: %w", pErr)
	}
	if cErr != nil {
		return fmt.Errorf("consumer: %w", cErr)
	}
	logging.RemoveSessionLog(cfg.Logging.SessionDir, cfg.Consumer.Key, sessionID)
	return nil
}

func buildBackend(ctx context.Context, cfg config.ConsumerConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Backend(ctx, storage.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretKey,
		})
	default:
		return storage.NewLocalBackend(cfg.LocalDir)
	}
}

func parseCompression(mode string) pipeline.Compression {
	switch mode {
	case "gzip":
		return pipeline.CompressionGzip
	case "zstd":
		return pipeline.CompressionZstd
	default:
		return pipeline.CompressionNone
	}
}
