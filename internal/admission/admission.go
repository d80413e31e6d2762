// Package admission implements Concurrency Admission (spec §4.B):
// per-tenant concurrent scrape budgets enforced with zero polling,
// promotion in priority order, and automatic cleanup of crashed workers.
// A pending job's score is its priority alone, so jobs of equal priority
// come out in the store's member order, not in insertion order.
package admission

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the result of Admit.
type Outcome int

const (
	RunNow Outcome = iota
	Queued
)

func (o Outcome) String() string {
	if o == RunNow {
		return "RunNow"
	}
	return "Queued"
}

// stateStore is the subset of the State Store Adapter (spec §4.A) this
// component needs. Defined narrowly here so tests can supply an
// in-memory fake instead of a real Redis connection.
type stateStore interface {
	ZAdd(ctx context.Context, setName, member string, score float64) error
	ZRem(ctx context.Context, setName, member string) error
	ZCard(ctx context.Context, setName string) (int64, error)
	ZPopMin(ctx context.Context, setName string) (string, float64, bool, error)
	ZRemRangeByScore(ctx context.Context, setName string, min, max float64) error
	ZRangeByScore(ctx context.Context, setName string, min, max float64, limit int64) ([]string, error)
}

// Ceiling resolves a plan name to its concurrency ceiling C(plan).
type Ceiling interface {
	Ceiling(plan string) int
}

// Clock is injected so tests control the clock deterministically; in
// production it is time.Now.
type Clock func() time.Time

const stallTimeout = 60 * time.Second

// Admission implements admit/sweep/renew/complete/promote against a
// per-tenant pair of sorted sets (spec §4.B key layout).
type Admission struct {
	store   stateStore
	ceiling Ceiling
	clock   Clock
}

func New(store stateStore, ceiling Ceiling, clock Clock) *Admission {
	if clock == nil {
		clock = time.Now
	}
	return &Admission{store: store, ceiling: ceiling, clock: clock}
}

func activeKey(tenant string) string  { return fmt.Sprintf("active:%s", tenant) }
func pendingKey(tenant string) string { return fmt.Sprintf("pending:%s", tenant) }

// Admit runs sweep, then either admits the job immediately or enqueues
// it to the tenant's pending set, per spec §4.B step (1)-(3).
func (a *Admission) Admit(ctx context.Context, tenant, plan, jobID string, priority float64) (Outcome, error) {
	now := a.clock()
	if err := a.Sweep(ctx, tenant, now); err != nil {
		return Queued, err
	}

	active, err := a.store.ZCard(ctx, activeKey(tenant))
	if err != nil {
		return Queued, err
	}

	if int(active) < a.ceiling.Ceiling(plan) {
		expiry := float64(now.Add(stallTimeout).Unix())
		if err := a.store.ZAdd(ctx, activeKey(tenant), jobID, expiry); err != nil {
			return Queued, err
		}
		return RunNow, nil
	}

	if err := a.store.ZAdd(ctx, pendingKey(tenant), jobID, priority); err != nil {
		return Queued, err
	}
	return Queued, nil
}

// Sweep removes expired active-lease entries (crashed or abandoned
// workers), spec §4.B "sweep".
func (a *Admission) Sweep(ctx context.Context, tenant string, now time.Time) error {
	return a.store.ZRemRangeByScore(ctx, activeKey(tenant), negInf, float64(now.Unix()))
}

// negInf stands in for -∞ in ZRemRangeByScore's score range (spec §4.A
// "zremrangebyscore(k, -∞, score)").
const negInf = -1 << 62

// Renew extends a job's active lease, called periodically by the
// worker's lease heartbeat (spec §4.H step 3).
func (a *Admission) Renew(ctx context.Context, tenant, jobID string, now time.Time) error {
	expiry := float64(now.Add(stallTimeout).Unix())
	return a.store.ZAdd(ctx, activeKey(tenant), jobID, expiry)
}

// Complete removes the job from active and promotes the next pending
// job(s), if any, spec §4.B "complete". It returns the job IDs promoted
// so the caller can re-enter them into the ready queue.
func (a *Admission) Complete(ctx context.Context, tenant, plan, jobID string) ([]string, error) {
	if err := a.store.ZRem(ctx, activeKey(tenant), jobID); err != nil {
		return nil, err
	}
	return a.Promote(ctx, tenant, plan)
}

// SweepStalled reports and removes active-lease entries that expired
// without a heartbeat renewal, the "Stalled" transition of spec §4.H's
// per-job state machine. Callers decide whether to retry (re-enqueue)
// or fail each returned job ID.
func (a *Admission) SweepStalled(ctx context.Context, tenant string, now time.Time) ([]string, error) {
	expired, err := a.store.ZRangeByScore(ctx, activeKey(tenant), negInf, float64(now.Unix()), 0)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}
	if err := a.Sweep(ctx, tenant, now); err != nil {
		return nil, err
	}
	return expired, nil
}

// Promote admits pending jobs into active until the ceiling is
// saturated or pending is empty, returning the job IDs promoted so the
// caller can re-enter them into the scheduler with priority preserved.
func (a *Admission) Promote(ctx context.Context, tenant, plan string) ([]string, error) {
	var promoted []string
	for {
		active, err := a.store.ZCard(ctx, activeKey(tenant))
		if err != nil {
			return promoted, err
		}
		if int(active) >= a.ceiling.Ceiling(plan) {
			return promoted, nil
		}
		jobID, _, found, err := a.store.ZPopMin(ctx, pendingKey(tenant))
		if err != nil {
			return promoted, err
		}
		if !found {
			return promoted, nil
		}
		expiry := float64(a.clock().Add(stallTimeout).Unix())
		if err := a.store.ZAdd(ctx, activeKey(tenant), jobID, expiry); err != nil {
			return promoted, err
		}
		promoted = append(promoted, jobID)
	}
}

// InflightCount reports the size of the tenant's active set, the
// signal the Job Priority Scorer uses as inflight_count (spec §4.C).
func (a *Admission) InflightCount(ctx context.Context, tenant string) (int, error) {
	n, err := a.store.ZCard(ctx, activeKey(tenant))
	return int(n), err
}
