package api

import "raito/internal/model"

// ErrorResponse is the envelope every failed request returns, matching
// the {success, code, error} shape the teacher's handlers use.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// ScrapeRequest is the payload for POST /v1/scrape.
type ScrapeRequest struct {
	URL             string                `json:"url"`
	ScrapeOptions   model.ScrapeOptions   `json:"scrapeOptions,omitempty"`
	InternalOptions model.InternalOptions `json:"internalOptions,omitempty"`
	Webhook         *model.Webhook        `json:"webhook,omitempty"`
}

// ScrapeResponse matches spec §6's submit_scrape(request) →
// {job_id, status_url}.
type ScrapeResponse struct {
	Success   bool   `json:"success"`
	JobID     string `json:"jobId,omitempty"`
	StatusURL string `json:"statusUrl,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CrawlRequest is the payload for POST /v1/crawl.
type CrawlRequest struct {
	URL             string                `json:"url"`
	CrawlerOptions  model.CrawlerOptions  `json:"crawlerOptions,omitempty"`
	ScrapeOptions   model.ScrapeOptions   `json:"scrapeOptions,omitempty"`
	InternalOptions model.InternalOptions `json:"internalOptions,omitempty"`
	Webhook         *model.Webhook        `json:"webhook,omitempty"`
}

// CrawlResponse matches spec §6's submit_crawl(request) →
// {crawl_id, status_url}.
type CrawlResponse struct {
	Success   bool   `json:"success"`
	CrawlID   string `json:"crawlId,omitempty"`
	StatusURL string `json:"statusUrl,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CrawlStatusResponse matches spec §6's crawl_status(crawl_id) →
// {status, total, completed, data?, next?}.
type CrawlStatusResponse struct {
	Success   bool             `json:"success"`
	Status    string           `json:"status,omitempty"`
	Total     int64            `json:"total"`
	Completed int64            `json:"completed"`
	Data      []model.Document `json:"data,omitempty"`
	Code      string           `json:"code,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// CrawlCancelResponse is the result of POST /v1/crawl/:id/cancel.
type CrawlCancelResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}
