package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"raito/internal/admission"
	"raito/internal/api"
	"raito/internal/config"
	"raito/internal/crawlregistry"
	"raito/internal/plan"
	"raito/internal/priority"
	"raito/internal/queue"
	"raito/internal/store"
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

	policy := plan.NewPolicy(cfg)
	adm := admission.New(st, policy, nil)
	registry := crawlregistry.New(st)
	q := queue.New(st, adm)
	scorer := priority.NewScorer(cfg)

	s := api.NewServer(cfg, q, registry, scorer, logger)

	logger.Info("raito-api starting", "addr", cfg.Server.Host, "port", cfg.Server.Port)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
