package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"raito/internal/model"
	"raito/internal/priority"
)

func statusURL(c *fiber.Ctx, path, id string) string {
	return fmt.Sprintf("%s://%s%s/%s", c.Protocol(), c.Hostname(), path, id)
}

// submitScrape implements spec §6's submit_scrape(request) →
// {job_id, status_url}: a single-page scrape admitted as a standalone
// ScrapeJob (mode=single, no crawl_id).
func (s *Server) submitScrape(c *fiber.Ctx) error {
	var req ScrapeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ScrapeResponse{
			Success: false, Code: "BAD_REQUEST_INVALID_JSON", Error: "malformed JSON body",
		})
	}
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ScrapeResponse{
			Success: false, Code: "BAD_REQUEST", Error: "missing required field 'url'",
		})
	}

	tenantID, plan, err := tenantFromHeaders(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(ScrapeResponse{
			Success: false, Code: "UNAUTHENTICATED", Error: err.Error(),
		})
	}

	job := model.ScrapeJob{
		ID:              uuid.New(),
		URL:             req.URL,
		Mode:            model.ModeSingle,
		TenantID:        tenantID,
		Plan:            plan,
		ScrapeOptions:   req.ScrapeOptions,
		InternalOptions: req.InternalOptions,
		Origin:          req.URL,
		Webhook:         req.Webhook,
	}

	score := s.scorer.Score(string(plan), 0, priority.BaseSingleScrape+req.InternalOptions.Priority)
	if err := s.queue.Enqueue(c.Context(), job, score); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ScrapeResponse{
			Success: false, Code: "SCRAPE_JOB_CREATE_FAILED", Error: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(ScrapeResponse{
		Success:   true,
		JobID:     job.ID.String(),
		StatusURL: statusURL(c, "/v1/scrape", job.ID.String()),
	})
}

// submitCrawl implements spec §6's submit_crawl(request) →
// {crawl_id, status_url}: saves the crawl descriptor, then spawns a
// kickoff job (spec §4.H "kickoff" dispatch owns sitemap/seed
// enumeration, not this handler).
func (s *Server) submitCrawl(c *fiber.Ctx) error {
	var req CrawlRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(CrawlResponse{
			Success: false, Code: "BAD_REQUEST_INVALID_JSON", Error: "malformed JSON body",
		})
	}
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(CrawlResponse{
			Success: false, Code: "BAD_REQUEST", Error: "missing required field 'url'",
		})
	}

	tenantID, plan, err := tenantFromHeaders(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(CrawlResponse{
			Success: false, Code: "UNAUTHENTICATED", Error: err.Error(),
		})
	}

	crawlID := uuid.New().String()
	crawl := model.Crawl{
		ID:              crawlID,
		OriginURL:       req.URL,
		TenantID:        tenantID,
		CrawlerOptions:  req.CrawlerOptions,
		ScrapeOptions:   req.ScrapeOptions,
		InternalOptions: req.InternalOptions,
		Webhook:         req.Webhook,
	}
	if err := s.registry.SaveCrawl(c.Context(), crawl); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlResponse{
			Success: false, Code: "CRAWL_CREATE_FAILED", Error: err.Error(),
		})
	}

	kickoff := model.ScrapeJob{
		ID:       uuid.New(),
		URL:      req.URL,
		Mode:     model.ModeKickoff,
		TenantID: tenantID,
		Plan:     plan,
		CrawlID:  crawlID,
		Origin:   req.URL,
		Webhook:  req.Webhook,
	}
	score := s.scorer.Score(string(plan), 0, priority.BaseCrawlKickoff)
	if err := s.queue.Enqueue(c.Context(), kickoff, score); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlResponse{
			Success: false, Code: "CRAWL_KICKOFF_FAILED", Error: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(CrawlResponse{
		Success:   true,
		CrawlID:   crawlID,
		StatusURL: statusURL(c, "/v1/crawl", crawlID),
	})
}

// crawlStatus implements spec §6's crawl_status(crawl_id) →
// {status, total, completed}, deriving status from
// (kickoff_finished, done, enrolled, cancelled) per spec §6.
func (s *Server) crawlStatus(c *fiber.Ctx) error {
	crawlID := c.Params("id")

	_, found, err := s.registry.GetCrawl(c.Context(), crawlID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlStatusResponse{
			Success: false, Code: "CRAWL_LOOKUP_FAILED", Error: err.Error(),
		})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(CrawlStatusResponse{
			Success: false, Code: "NOT_FOUND", Error: "crawl not found",
		})
	}

	cancelled, err := s.registry.IsCancelled(c.Context(), crawlID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlStatusResponse{
			Success: false, Code: "CRAWL_LOOKUP_FAILED", Error: err.Error(),
		})
	}

	enrolled, err := s.registry.EnrolledCount(c.Context(), crawlID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlStatusResponse{
			Success: false, Code: "CRAWL_LOOKUP_FAILED", Error: err.Error(),
		})
	}
	done, err := s.registry.DoneCount(c.Context(), crawlID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlStatusResponse{
			Success: false, Code: "CRAWL_LOOKUP_FAILED", Error: err.Error(),
		})
	}
	failed, err := s.registry.FailedCount(c.Context(), crawlID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlStatusResponse{
			Success: false, Code: "CRAWL_LOOKUP_FAILED", Error: err.Error(),
		})
	}
	kickoffFinished, err := s.registry.IsKickoffFinished(c.Context(), crawlID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlStatusResponse{
			Success: false, Code: "CRAWL_LOOKUP_FAILED", Error: err.Error(),
		})
	}

	status := "pending"
	switch {
	case cancelled:
		status = "cancelled"
	case !kickoffFinished:
		status = "pending"
	case done < enrolled:
		status = "scraping"
	case enrolled > 0 && failed >= enrolled:
		status = "failed"
	default:
		status = "completed"
	}

	return c.Status(fiber.StatusOK).JSON(CrawlStatusResponse{
		Success:   true,
		Status:    status,
		Total:     enrolled,
		Completed: done,
	})
}

// crawlCancel implements spec §6's crawl_cancel(crawl_id): flips the
// cancellation flag workers observe at their checkpoints (spec §5
// "Cancellation"). It does not itself stop in-flight engine calls.
func (s *Server) crawlCancel(c *fiber.Ctx) error {
	crawlID := c.Params("id")

	_, found, err := s.registry.GetCrawl(c.Context(), crawlID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlCancelResponse{
			Success: false, Code: "CRAWL_LOOKUP_FAILED", Error: err.Error(),
		})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(CrawlCancelResponse{
			Success: false, Code: "NOT_FOUND", Error: "crawl not found",
		})
	}

	if err := s.registry.Cancel(c.Context(), crawlID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(CrawlCancelResponse{
			Success: false, Code: "CRAWL_CANCEL_FAILED", Error: err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(CrawlCancelResponse{Success: true})
}
