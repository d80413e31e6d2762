// Package api implements the thin inbound control surface of spec §6:
// submit_scrape, submit_crawl, crawl_status, and crawl_cancel. Routing
// and request logging follow the teacher's router.go; everything the
// teacher's HTTP layer did beyond these four operations (auth, admin
// UI, billing) is out of scope per the Non-goals and is not ported.
package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"raito/internal/config"
	"raito/internal/crawlregistry"
	"raito/internal/model"
	"raito/internal/priority"
	"raito/internal/queue"
)

// Server is the fiber-based control surface; construction mirrors the
// teacher's NewServer wiring of config/store/logger into request
// context, minus auth and admin routing.
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	queue    *queue.Queue
	registry *crawlregistry.Registry
	scorer   *priority.Scorer
	logger   *slog.Logger
}

func NewServer(cfg *config.Config, q *queue.Queue, registry *crawlregistry.Registry, scorer *priority.Scorer, logger *slog.Logger) *Server {
	app := fiber.New()

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if logger != nil {
			logger.Info("request",
				"method", c.Method(),
				"path", c.Path(),
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
			)
		}
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s := &Server{app: app, cfg: cfg, queue: q, registry: registry, scorer: scorer, logger: logger}

	v1 := app.Group("/v1")
	v1.Post("/scrape", s.submitScrape)
	v1.Post("/crawl", s.submitCrawl)
	v1.Get("/crawl/:id", s.crawlStatus)
	v1.Post("/crawl/:id/cancel", s.crawlCancel)

	return s
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	return s.app.Listen(addr)
}

// tenantFromHeaders reads the externally-managed tenant identity off
// the request (spec §3 "Tenant... Created externally"); this repo has
// no auth/session layer of its own (Non-goal), so the caller is
// trusted to assert its own tenant_id and plan.
func tenantFromHeaders(c *fiber.Ctx) (uuid.UUID, model.Plan, error) {
	raw := c.Get("X-Tenant-Id")
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("missing or invalid X-Tenant-Id header")
	}
	plan := model.Plan(c.Get("X-Tenant-Plan"))
	if plan == "" {
		plan = model.PlanFree
	}
	return tenantID, plan, nil
}
