package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"dracin/internal/artifact"
	"dracin/internal/catalog"
	"dracin/internal/config"
	"dracin/internal/daemon"
	"dracin/internal/ledger"
	"dracin/internal/logging"
	"dracin/internal/priority"
	"dracin/internal/retention"
	"dracin/internal/services/ffmpeg"
	"dracin/internal/services/telegram"
	"dracin/internal/videodb"
	"dracin/internal/worker"
)

func runDaemon(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	cat, err := catalog.Load(cfg.Paths.ManifestPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	led, err := ledger.Open(cfg.Paths.ProgressPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	store, err := videodb.Open(cfg)
	if err != nil {
		_ = led.Close()
		return fmt.Errorf("open video db: %w", err)
	}

	layout := artifact.Layout{
		VideoDir:      cfg.Paths.VideoDir,
		CompressedDir: cfg.Paths.CompressedDir,
	}
	queue := priority.New(led.IsCompleted, func(id string) bool {
		_, ok := cat.ByID(id)
		return ok
	})
	gateway := telegram.NewSession(cfg, logger)
	transcoder := ffmpeg.NewCLI(
		ffmpeg.WithBinary(cfg.FFmpeg.Binary),
		ffmpeg.WithTimeout(time.Duration(cfg.FFmpeg.TimeoutSeconds)*time.Second),
	)

	var cache *retention.Cache
	var onCompleted func(string)
	if cfg.Retention.Enabled {
		cache, err = retention.New(layout, cfg.Retention.MaxItems, logger)
		if err != nil {
			_ = store.Close()
			_ = led.Close()
			return fmt.Errorf("build retention cache: %w", err)
		}
		onCompleted = cache.Touch
	}

	w, err := worker.New(worker.Options{
		Config:      cfg,
		Catalog:     cat,
		Ledger:      led,
		Queue:       queue,
		Gateway:     gateway,
		Transcoder:  transcoder,
		Layout:      layout,
		Store:       store,
		Logger:      logger,
		OnCompleted: onCompleted,
	})
	if err != nil {
		_ = store.Close()
		_ = led.Close()
		return fmt.Errorf("build worker: %w", err)
	}

	d, err := daemon.New(daemon.Options{
		Config:  cfg,
		Logger:  logger,
		Catalog: cat,
		Ledger:  led,
		Queue:   queue,
		Gateway: gateway,
		Worker:  w,
		Cache:   cache,
		Store:   store,
		Layout:  layout,
	})
	if err != nil {
		_ = store.Close()
		_ = led.Close()
		return fmt.Errorf("build daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("dracind shutting down")
	return nil
}
