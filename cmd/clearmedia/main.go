package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mantonx/clearmedia/internal/analyser"
	"github.com/mantonx/clearmedia/internal/catalogue"
	"github.com/mantonx/clearmedia/internal/config"
	"github.com/mantonx/clearmedia/internal/database"
	"github.com/mantonx/clearmedia/internal/lifecycle"
	"github.com/mantonx/clearmedia/internal/linker"
	"github.com/mantonx/clearmedia/internal/logger"
	"github.com/mantonx/clearmedia/internal/registry"
	"github.com/mantonx/clearmedia/internal/scanner"
	"github.com/mantonx/clearmedia/internal/status"
	"github.com/mantonx/clearmedia/internal/worker"
)

func main() {
	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("clearmedia starting", "source_dir", cfg.SourceDir, "target_dir", cfg.TargetDir)

	db, err := database.Open(database.Driver(cfg.DatabaseDriver), cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	reg := registry.New(db, log.Named("registry"))
	st := status.New(db, log.Named("status"))

	an, err := analyser.New(analyser.Config{
		BaseURL:   cfg.AnalyserBaseURL,
		APIKey:    cfg.AnalyserAPIKey,
		Model:     cfg.AnalyserModel,
		Enabled:   cfg.EnableLLM,
		CacheSize: cfg.AnalyserCacheSize,
		Timeout:   cfg.AnalyserTimeout,
	}, log.Named("analyser"))
	if err != nil {
		log.Error("failed to construct analyser client", "error", err)
		os.Exit(1)
	}

	cat := catalogue.New(catalogue.Config{
		BaseURL:     cfg.TMDBBaseURL,
		APIKey:      cfg.TMDBAPIKey,
		Language:    cfg.TMDBLanguage,
		Enabled:     cfg.EnableTMDB,
		Concurrency: int64(cfg.TMDBConcurrency),
		Timeout:     cfg.TMDBTimeout,
	}, log.Named("catalogue"))

	lk := linker.New(log.Named("linker"))

	pool := worker.New(cfg.WorkerCount, cfg.TargetDir, reg, st, an, cat, lk, log.Named("worker"))

	excludeDir := ""
	if cfg.ScanExcludeTargetDir {
		excludeDir = cfg.TargetDir
	}

	task := &scanner.Task{
		Options: scanner.WalkOptions{
			Root:           cfg.SourceDir,
			Extensions:     cfg.VideoExtensions,
			MinSizeBytes:   int64(cfg.MinFileSizeMB) * 1024 * 1024,
			ExcludeDir:     excludeDir,
			FollowSymlinks: cfg.ScanFollowSymlinks,
		},
		Registry:   reg,
		Dispatcher: pool.Dispatcher(),
		Logger:     log.Named("scanner"),
	}

	controller := lifecycle.New(db, pool, task, time.Duration(cfg.ScanIntervalSeconds)*time.Second, log.Named("lifecycle"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := controller.Run(ctx); err != nil {
		log.Error("pipeline exited with error", "error", err)
		os.Exit(1)
	}

	log.Info("clearmedia stopped")
}
