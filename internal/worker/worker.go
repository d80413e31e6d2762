// Package worker implements the Queue Worker (spec §4.H): a
// long-running loop per worker process that drains the scheduler,
// invokes the Scrape Pipeline, renews leases, and triggers downstream
// enqueue and crawl finalization. Adapted from the teacher's
// StartCrawlWorker ticker/semaphore loop in crawl_worker.go, replacing
// its direct-to-Postgres job table with the Admission/Queue/Crawl
// Registry stack.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"raito/internal/admission"
	"raito/internal/config"
	"raito/internal/crawlregistry"
	"raito/internal/logstore"
	"raito/internal/model"
	"raito/internal/pipeline"
	"raito/internal/priority"
	"raito/internal/queue"
	"raito/internal/webhook"
)

// maxStallRetries bounds the Stalled→Pending(retry) cycle (spec §4.H
// "State machine per job").
const maxStallRetries = 10

// Worker drains the ready queue and drives jobs through the pipeline.
type Worker struct {
	cfg       *config.Config
	logger    *slog.Logger
	queue     *queue.Queue
	admission *admission.Admission
	registry  *crawlregistry.Registry
	pipeline  *pipeline.Pipeline
	scorer    *priority.Scorer
	webhooks  *webhook.Client
	logs      *logstore.LogStore

	retries retryCounter
	robots  sync.Map // crawl_id -> *robotstxt.Group, fetched once per crawl
}

// retryCounter is the narrow store view used for stall-retry bookkeeping.
type retryCounter interface {
	HIncrBy(ctx context.Context, hashName, field string, by int64) (int64, error)
	HDel(ctx context.Context, hashName, field string) error
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	q *queue.Queue,
	adm *admission.Admission,
	registry *crawlregistry.Registry,
	pl *pipeline.Pipeline,
	scorer *priority.Scorer,
	webhooks *webhook.Client,
	logs *logstore.LogStore,
	retries retryCounter,
) *Worker {
	return &Worker{
		cfg:       cfg,
		logger:    logger,
		queue:     q,
		admission: adm,
		registry:  registry,
		pipeline:  pl,
		scorer:    scorer,
		webhooks:  webhooks,
		logs:      logs,
		retries:   retries,
	}
}

// Run blocks, draining jobs until ctx is cancelled (spec §4.H "a
// long-running loop per worker process").
func (w *Worker) Run(ctx context.Context) {
	pollInterval := time.Duration(w.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	backOff := time.Duration(w.cfg.Worker.BackOffMs) * time.Millisecond
	if backOff <= 0 {
		backOff = 500 * time.Millisecond
	}
	maxJobs := w.cfg.Worker.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}

	sem := make(chan struct{}, maxJobs)
	consecutiveOverload := 0

	stallTicker := time.NewTicker(30 * time.Second)
	defer stallTicker.Stop()
	go w.stallSweepLoop(ctx, stallTicker)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		overloaded, err := w.resourcesOverloaded()
		if err != nil {
			w.logger.Warn("resource sample failed", "error", err)
		}
		if overloaded {
			consecutiveOverload++
			if consecutiveOverload >= 5 {
				w.logger.Error("worker_stalled: sustained CPU/memory overload")
			}
			time.Sleep(backOff)
			continue
		}
		consecutiveOverload = 0

		job, found, err := w.queue.Claim(ctx)
		if err != nil {
			w.logger.Error("claim job", "error", err)
			continue
		}
		if !found {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		go func() {
			defer func() { <-sem }()
			w.handle(ctx, job)
		}()
	}
}

// resourcesOverloaded samples OS CPU and memory utilization (spec §4.H
// step 1).
func (w *Worker) resourcesOverloaded() (bool, error) {
	cpuThreshold := w.cfg.Worker.CPUThresholdPercent
	if cpuThreshold <= 0 {
		cpuThreshold = 80
	}
	memThreshold := w.cfg.Worker.MemThresholdPercent
	if memThreshold <= 0 {
		memThreshold = 80
	}

	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return false, err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return false, err
	}

	if len(percents) > 0 && percents[0] > cpuThreshold {
		return true, nil
	}
	if vm.UsedPercent > memThreshold {
		return true, nil
	}
	return false, nil
}

// handle dispatches a claimed job by mode, runs its lease heartbeat for
// the duration, and reports completion (spec §4.H steps 3-6).
func (w *Worker) handle(ctx context.Context, job model.ScrapeJob) {
	tenant := job.TenantID.String()
	jobID := job.ID.String()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	go w.heartbeat(heartbeatCtx, tenant, jobID)
	defer stopHeartbeat()

	var runErr error
	switch job.Mode {
	case model.ModeKickoff:
		runErr = w.runKickoff(ctx, job)
	default:
		runErr = w.runScrape(ctx, job)
	}

	if runErr != nil {
		var cancelled *model.CancelledError
		var raced *model.RacedRedirectError
		if errors.As(runErr, &cancelled) {
			w.logger.Info("job cancelled", "job_id", jobID, "crawl_id", job.CrawlID)
		} else if errors.As(runErr, &raced) {
			w.logger.Info("redirect target already claimed", "job_id", jobID, "crawl_id", job.CrawlID)
		} else {
			w.logger.Error("job failed", "job_id", jobID, "error", runErr)
			if w.logs != nil {
				_ = w.logs.RecordFailure(ctx, job.ID, job.TenantID, errorType(runErr), runErr.Error(), nil)
			}
		}
	}

	if job.CrawlID != "" {
		w.finalizeCrawlStep(ctx, job, runErr == nil)
	}

	if err := w.queue.Complete(ctx, tenant, string(job.Plan), jobID); err != nil {
		w.logger.Error("complete admission", "job_id", jobID, "error", err)
	}
	if err := w.queue.Retire(ctx, jobID); err != nil {
		w.logger.Error("retire job payload", "job_id", jobID, "error", err)
	}
	if w.retries != nil {
		_ = w.retries.HDel(ctx, "job:retries", jobID)
	}
}

// heartbeat renews the tenant's admission lease on an independent timer
// until stopped, so a slow job never starves its own lease (spec §4.H
// step 3, §5 "no user-visible operation blocks the worker's ability to
// heartbeat").
func (w *Worker) heartbeat(ctx context.Context, tenant, jobID string) {
	interval := time.Duration(w.cfg.Worker.RenewIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.admission.Renew(ctx, tenant, jobID, time.Now()); err != nil {
				w.logger.Warn("renew lease", "job_id", jobID, "error", err)
			}
		}
	}
}

// finalizeCrawlStep records the job's terminal outcome against the
// Crawl Registry and delivers the completion webhook exactly once
// (spec §4.H step 5). A kickoff job is not enrolled, so it only
// attempts finalization and is not counted as done.
func (w *Worker) finalizeCrawlStep(ctx context.Context, job model.ScrapeJob, success bool) {
	if job.Mode != model.ModeKickoff {
		if _, err := w.registry.AddDone(ctx, job.CrawlID, job.ID.String(), success); err != nil {
			w.logger.Error("add_done", "crawl_id", job.CrawlID, "error", err)
			return
		}
	}

	finalized, err := w.registry.TryFinalize(ctx, job.CrawlID)
	if err != nil {
		w.logger.Error("try_finalize", "crawl_id", job.CrawlID, "error", err)
		return
	}
	if !finalized {
		return
	}

	crawl, found, err := w.registry.GetCrawl(ctx, job.CrawlID)
	if err != nil || !found {
		return
	}
	event := webhook.EventCrawlCompleted
	payload := webhook.Payload{
		Success: true,
		Type:    event,
		ID:      job.CrawlID,
	}
	if crawl.Webhook != nil {
		payload.Metadata = crawl.Webhook.Metadata
	}
	if err := w.webhooks.Deliver(ctx, crawl.Webhook, event, payload); err != nil {
		w.logger.Warn("webhook delivery failed", "crawl_id", job.CrawlID, "error", err)
		if w.logs != nil {
			_ = w.logs.RecordWebhookFailure(ctx, job.CrawlID, event, 0, err)
		}
	}
}

// stallSweepLoop periodically requeues jobs whose lease expired without
// a heartbeat renewal, implementing the "Stalled→Pending(retry)"
// transition of spec §4.H's per-job state machine.
func (w *Worker) stallSweepLoop(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tenants, err := w.queue.Tenants(ctx)
		if err != nil {
			w.logger.Warn("list tenants for stall sweep", "error", err)
			continue
		}
		for _, tenant := range tenants {
			stalled, err := w.admission.SweepStalled(ctx, tenant, time.Now())
			if err != nil {
				w.logger.Warn("sweep stalled", "tenant", tenant, "error", err)
				continue
			}
			for _, jobID := range stalled {
				w.retryOrFailStalled(ctx, tenant, jobID)
			}
		}
	}
}

func (w *Worker) retryOrFailStalled(ctx context.Context, tenant, jobID string) {
	if w.retries == nil {
		return
	}
	count, err := w.retries.HIncrBy(ctx, "job:retries", jobID, 1)
	if err != nil {
		w.logger.Warn("increment retry count", "job_id", jobID, "error", err)
		return
	}
	if count > maxStallRetries {
		w.logger.Error("job exceeded max stall retries, marking failed", "job_id", jobID, "retries", count)
		_ = w.retries.HDel(ctx, "job:retries", jobID)
		return
	}

	parsedID, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	if _, err := w.queue.RequeueStalled(ctx, model.ScrapeJob{ID: parsedID, TenantID: uuidFromTenant(tenant)}); err != nil {
		w.logger.Warn("requeue stalled job", "job_id", jobID, "error", err)
	}
}

func uuidFromTenant(tenant string) uuid.UUID {
	id, err := uuid.Parse(tenant)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// errorType names runErr's concrete taxonomy type for the Log Store's
// event_type column (spec §7's taxonomy, inspected via errors.As rather
// than string-matching).
func errorType(err error) string {
	var engineErr *model.EngineError
	var timeoutErr *model.TimeoutError
	var sslErr *model.SSLError
	var siteErr *model.SiteError
	var dnsErr *model.DNSResolutionError
	var unsupportedErr *model.UnsupportedFileError
	var actionErr *model.ActionError
	var racedErr *model.RacedRedirectError
	var noEnginesErr *model.NoEnginesLeftError
	var storeErr *model.StoreUnavailable

	switch {
	case errors.As(err, &engineErr):
		return "engine_error"
	case errors.As(err, &timeoutErr):
		return "timeout_error"
	case errors.As(err, &sslErr):
		return "ssl_error"
	case errors.As(err, &siteErr):
		return "site_error"
	case errors.As(err, &dnsErr):
		return "dns_resolution_error"
	case errors.As(err, &unsupportedErr):
		return "unsupported_file_error"
	case errors.As(err, &actionErr):
		return "action_error"
	case errors.As(err, &racedErr):
		return "raced_redirect_error"
	case errors.As(err, &noEnginesErr):
		return "no_engines_left_error"
	case errors.As(err, &storeErr):
		return "store_unavailable"
	default:
		return "unknown_error"
	}
}
