// Package logstore implements the Log Store: a durable Postgres-backed
// record of job and webhook failures, queried by operators and swept
// by retention policy. Grounded on the teacher's migrate.go for the
// connect/retry/migrate shape, adapted from database/sql+goose to a
// pgx connection pool.
package logstore

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/sqlc-dev/pqtype"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// LogStore records job and webhook lifecycle events to Postgres.
type LogStore struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, waits for Postgres to accept connections (a
// fresh docker-compose Postgres may not be ready immediately), and
// applies any pending goose migrations embedded in this package.
func Open(ctx context.Context, dsn string) (*LogStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open log store: %w", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		if time.Now().After(deadline) {
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return nil, fmt.Errorf("log store not ready: %w", err)
			}
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := migrate(dsn); err != nil {
		pool.Close()
		return nil, err
	}

	return &LogStore{pool: pool}, nil
}

func migrate(dsn string) error {
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration db: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (s *LogStore) Close() {
	s.pool.Close()
}

// RecordFailure logs an engine/pipeline failure against a job (spec §7
// "Error Taxonomy" consumers: operators inspecting why a job failed).
func (s *LogStore) RecordFailure(ctx context.Context, jobID, tenantID uuid.UUID, errType, message string, context_ map[string]any) error {
	return s.insert(ctx, jobID, tenantID, "", errType, message, context_)
}

// RecordWebhookFailure logs a failed outbound webhook delivery attempt
// for a crawl (spec §6: webhook events have no retry, but failures are
// still recorded for operator visibility).
func (s *LogStore) RecordWebhookFailure(ctx context.Context, crawlID, event string, statusCode int, deliveryErr error) error {
	msg := fmt.Sprintf("webhook delivery failed for event %q (status %d)", event, statusCode)
	if deliveryErr != nil {
		msg = fmt.Sprintf("%s: %v", msg, deliveryErr)
	}
	return s.insert(ctx, uuid.Nil, uuid.Nil, crawlID, "webhook_failure", msg, map[string]any{
		"event":      event,
		"statusCode": statusCode,
	})
}

func (s *LogStore) insert(ctx context.Context, jobID, tenantID uuid.UUID, crawlID, eventType, message string, contextValue map[string]any) error {
	rawContext, err := encodeContext(contextValue)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	var crawlIDArg any
	if crawlID != "" {
		crawlIDArg = crawlID
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_events (job_id, tenant_id, crawl_id, event_type, message, context)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		jobID, tenantID, crawlIDArg, eventType, message, rawContext,
	)
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	return nil
}

func encodeContext(context map[string]any) (pqtype.NullRawMessage, error) {
	if context == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(context)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

// DeleteOlderThan sweeps events older than cutoff, implementing the Log
// Store's retention policy (spec: LogStoreConfig.RetentionDays).
func (s *LogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old job events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// JobEvent is a single row read back from job_events by ListByCrawl.
type JobEvent struct {
	ID        int64     `json:"id"`
	JobID     uuid.UUID `json:"jobId"`
	TenantID  uuid.UUID `json:"tenantId"`
	CrawlID   string    `json:"crawlId,omitempty"`
	EventType string    `json:"eventType"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListByCrawl returns the events recorded with crawlID, most recent
// first. Only webhook failures carry a crawl ID (RecordFailure stores
// none), and the crawl-status handler does not call this.
func (s *LogStore) ListByCrawl(ctx context.Context, crawlID string) ([]JobEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, tenant_id, COALESCE(crawl_id, ''), event_type, message, created_at
		 FROM job_events WHERE crawl_id = $1 ORDER BY created_at DESC`,
		crawlID,
	)
	if err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	defer rows.Close()

	var events []JobEvent
	for rows.Next() {
		var e JobEvent
		if err := rows.Scan(&e.ID, &e.JobID, &e.TenantID, &e.CrawlID, &e.EventType, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RetentionSweeper periodically removes events older than the
// configured retention window.
type RetentionSweeper struct {
	store    *LogStore
	interval time.Duration
	window   time.Duration
}

func NewRetentionSweeper(store *LogStore, interval, window time.Duration) *RetentionSweeper {
	return &RetentionSweeper{store: store, interval: interval, window: window}
}

// Run blocks, sweeping on each tick until ctx is cancelled.
func (r *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.store.DeleteOlderThan(ctx, time.Now().Add(-r.window))
		}
	}
}
