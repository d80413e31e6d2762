// Package queue implements the scheduler surface the Queue Worker
// claims jobs from (spec §4.H step 2): it glues the Concurrency
// Admission component to a durable job-payload store and a single
// ready-to-run list, so that "admit" and "claim the next job" are two
// sides of the same hand-off.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"raito/internal/admission"
	"raito/internal/model"
)

const (
	readyListName  = "queue:ready"
	jobsHashName   = "jobs"
	tenantsSetName = "tenants"
)

// stateStore is the subset of the State Store Adapter this package
// needs, narrowed for test fakes per the project's test-tooling
// convention.
type stateStore interface {
	RPush(ctx context.Context, listName, value string) error
	LPop(ctx context.Context, listName string) (string, bool, error)
	HSet(ctx context.Context, hashName, field, value string) error
	HGet(ctx context.Context, hashName, field string) (string, bool, error)
	HDel(ctx context.Context, hashName, field string) error
	SAdd(ctx context.Context, setName, member string) (bool, error)
	SMembers(ctx context.Context, setName string) ([]string, error)
}

// admitter is the narrow view of *admission.Admission this package
// drives; Complete/Promote return job IDs that must be pushed back
// onto the ready list.
type admitter interface {
	Admit(ctx context.Context, tenant, plan, jobID string, priority float64) (admission.Outcome, error)
	Complete(ctx context.Context, tenant, plan, jobID string) ([]string, error)
}

const prioritiesHashName = "job:priorities"

// Queue hands ScrapeJobs between Admission and the Queue Worker.
type Queue struct {
	store    stateStore
	admitter admitter
}

func New(store stateStore, admitter admitter) *Queue {
	return &Queue{store: store, admitter: admitter}
}

// Enqueue persists job's payload, records its tenant for stall
// sweeping, and asks Admission whether it may run now. A RunNow
// outcome pushes the job onto the ready list immediately; a Queued
// outcome leaves it in Admission's pending set until promoted.
func (q *Queue) Enqueue(ctx context.Context, job model.ScrapeJob, priority float64) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	id := job.ID.String()
	if err := q.store.HSet(ctx, jobsHashName, id, string(payload)); err != nil {
		return err
	}
	if err := q.store.HSet(ctx, prioritiesHashName, id, fmt.Sprintf("%f", priority)); err != nil {
		return err
	}
	if _, err := q.store.SAdd(ctx, tenantsSetName, job.TenantID.String()); err != nil {
		return err
	}

	outcome, err := q.admitter.Admit(ctx, job.TenantID.String(), string(job.Plan), id, priority)
	if err != nil {
		return err
	}
	if outcome == admission.RunNow {
		return q.store.RPush(ctx, readyListName, id)
	}
	return nil
}

// Claim pops the next ready job ID and loads its payload. found=false
// means the ready list was empty.
func (q *Queue) Claim(ctx context.Context) (model.ScrapeJob, bool, error) {
	id, found, err := q.store.LPop(ctx, readyListName)
	if err != nil || !found {
		return model.ScrapeJob{}, false, err
	}

	payload, found, err := q.store.HGet(ctx, jobsHashName, id)
	if err != nil {
		return model.ScrapeJob{}, false, err
	}
	if !found {
		// Payload evicted or never written; nothing to dispatch.
		return model.ScrapeJob{}, false, nil
	}

	var job model.ScrapeJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return model.ScrapeJob{}, false, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return job, true, nil
}

// Complete marks jobID done with Admission and re-enters any promoted
// pending jobs onto the ready list (spec §4.B "promote").
func (q *Queue) Complete(ctx context.Context, tenant, plan, jobID string) error {
	promoted, err := q.admitter.Complete(ctx, tenant, plan, jobID)
	if err != nil {
		return err
	}
	for _, id := range promoted {
		if err := q.store.RPush(ctx, readyListName, id); err != nil {
			return err
		}
	}
	return nil
}

// Retire removes a job's payload once it has reached a terminal state.
func (q *Queue) Retire(ctx context.Context, jobID string) error {
	return q.store.HDel(ctx, jobsHashName, jobID)
}

// RequeueStalled re-admits a job the worker's stall sweep found expired
// without a heartbeat (spec §4.H "Stalled→Pending(retry)"), reusing its
// originally recorded priority. found=false means the job's payload was
// already retired (e.g. it had already reached a terminal state).
func (q *Queue) RequeueStalled(ctx context.Context, job model.ScrapeJob) (bool, error) {
	id := job.ID.String()
	payload, found, err := q.store.HGet(ctx, jobsHashName, id)
	if err != nil || !found || payload == "" {
		return false, err
	}

	priority := 0.0
	if raw, found, err := q.store.HGet(ctx, prioritiesHashName, id); err == nil && found {
		priority, _ = strconv.ParseFloat(raw, 64)
	}

	outcome, err := q.admitter.Admit(ctx, job.TenantID.String(), string(job.Plan), id, priority)
	if err != nil {
		return false, err
	}
	if outcome == admission.RunNow {
		return true, q.store.RPush(ctx, readyListName, id)
	}
	return true, nil
}

// Tenants returns every tenant ID the queue has seen, for the worker's
// periodic stall sweep (spec §4.H state machine's "Stalled" transition,
// which has no natural per-tenant trigger of its own).
func (q *Queue) Tenants(ctx context.Context) ([]string, error) {
	return q.store.SMembers(ctx, tenantsSetName)
}
