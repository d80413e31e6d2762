package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"raito/internal/admission"
	"raito/internal/config"
	"raito/internal/crawlregistry"
	"raito/internal/engine"
	"raito/internal/logstore"
	"raito/internal/pipeline"
	"raito/internal/plan"
	"raito/internal/priority"
	"raito/internal/queue"
	"raito/internal/store"
	"raito/internal/webhook"
	"raito/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opt)

	st := store.New(rdb, 5, 50*time.Millisecond)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logs *logstore.LogStore
	if cfg.LogStore.DSN != "" {
		logs, err = logstore.Open(rootCtx, cfg.LogStore.DSN)
		if err != nil {
			log.Fatalf("open log store: %v", err)
		}
		defer logs.Close()

		retentionDays := cfg.LogStore.RetentionDays
		if retentionDays <= 0 {
			retentionDays = 30
		}
		cleanupInterval := time.Duration(cfg.LogStore.CleanupIntervalMinutes) * time.Minute
		if cleanupInterval <= 0 {
			cleanupInterval = time.Hour
		}
		sweeper := logstore.NewRetentionSweeper(logs, cleanupInterval, time.Duration(retentionDays)*24*time.Hour)
		go sweeper.Run(rootCtx)
	} else {
		logger.Warn("logstore.dsn not configured; job/webhook failures will not be durably recorded")
	}

	policy := plan.NewPolicy(cfg)
	adm := admission.New(st, policy, nil)
	registry := crawlregistry.New(st)
	q := queue.New(st, adm)
	scorer := priority.NewScorer(cfg)

	registryEngine := engine.NewRegistry()
	httpEngine := engine.NewHTTPEngine()
	registryEngine.Register(httpEngine.Descriptor(), httpEngine)
	if cfg.Engine.BrowserEnabled {
		rodEngine := engine.NewRodEngine()
		registryEngine.Register(rodEngine.Descriptor(), rodEngine)
	}
	pl := pipeline.New(registryEngine)

	webhookTimeout := time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second
	webhooks := webhook.NewClient(webhookTimeout)

	w := worker.New(cfg, logger, q, adm, registry, pl, scorer, webhooks, logs, st)

	sigCtx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("raito-worker starting", "max_concurrent_jobs", cfg.Worker.MaxConcurrentJobs)
	w.Run(sigCtx)
	logger.Info("raito-worker stopped")
}
