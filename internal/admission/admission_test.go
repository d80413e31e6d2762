package admission

import (
	"context"
	"sort"
	"testing"
	"time"
)

// fakeStore is a minimal in-memory sorted-set store satisfying
// stateStore, standing in for Redis in tests (per the test tooling
// convention: construct the component against a fake, no real broker).
type fakeStore struct {
	sets map[string]map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{sets: make(map[string]map[string]float64)}
}

func (f *fakeStore) ZAdd(_ context.Context, setName, member string, score float64) error {
	if f.sets[setName] == nil {
		f.sets[setName] = make(map[string]float64)
	}
	f.sets[setName][member] = score
	return nil
}

func (f *fakeStore) ZRem(_ context.Context, setName, member string) error {
	delete(f.sets[setName], member)
	return nil
}

func (f *fakeStore) ZCard(_ context.Context, setName string) (int64, error) {
	return int64(len(f.sets[setName])), nil
}

func (f *fakeStore) ZPopMin(_ context.Context, setName string) (string, float64, bool, error) {
	set := f.sets[setName]
	if len(set) == 0 {
		return "", 0, false, nil
	}
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return set[members[i]] < set[members[j]] })
	best := members[0]
	score := set[best]
	delete(set, best)
	return best, score, true, nil
}

func (f *fakeStore) ZRemRangeByScore(_ context.Context, setName string, min, max float64) error {
	set := f.sets[setName]
	for m, score := range set {
		if score >= min && score <= max {
			delete(set, m)
		}
	}
	return nil
}

func (f *fakeStore) ZRangeByScore(_ context.Context, setName string, min, max float64, limit int64) ([]string, error) {
	set := f.sets[setName]
	var out []string
	for m, score := range set {
		if score >= min && score <= max {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return set[out[i]] < set[out[j]] })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fixedCeiling int

func (c fixedCeiling) Ceiling(string) int { return int(c) }

func TestAdmitRunsNowUnderCeiling(t *testing.T) {
	a := New(newFakeStore(), fixedCeiling(2), nil)
	ctx := context.Background()

	outcome, err := a.Admit(ctx, "tenant-1", "free", "job-1", 10)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if outcome != RunNow {
		t.Fatalf("expected RunNow, got %v", outcome)
	}
}

func TestAdmitQueuesAtCeiling(t *testing.T) {
	a := New(newFakeStore(), fixedCeiling(1), nil)
	ctx := context.Background()

	if outcome, err := a.Admit(ctx, "tenant-1", "free", "job-1", 10); err != nil || outcome != RunNow {
		t.Fatalf("first admit: outcome=%v err=%v", outcome, err)
	}
	outcome, err := a.Admit(ctx, "tenant-1", "free", "job-2", 10)
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if outcome != Queued {
		t.Fatalf("expected Queued at ceiling, got %v", outcome)
	}
}

func TestCompletePromotesPendingJob(t *testing.T) {
	a := New(newFakeStore(), fixedCeiling(1), nil)
	ctx := context.Background()

	if _, err := a.Admit(ctx, "tenant-1", "free", "job-1", 10); err != nil {
		t.Fatalf("admit job-1: %v", err)
	}
	if _, err := a.Admit(ctx, "tenant-1", "free", "job-2", 5); err != nil {
		t.Fatalf("admit job-2: %v", err)
	}

	if _, err := a.Complete(ctx, "tenant-1", "free", "job-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	n, err := a.InflightCount(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("inflight: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected job-2 promoted into active, inflight=%d", n)
	}
}

func TestSweepRemovesExpiredLeases(t *testing.T) {
	store := newFakeStore()
	a := New(store, fixedCeiling(1), nil)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	if err := store.ZAdd(ctx, activeKey("tenant-1"), "crashed-job", float64(past.Unix())); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := a.Sweep(ctx, "tenant-1", time.Now()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	n, err := a.InflightCount(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("inflight: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected crashed lease swept, inflight=%d", n)
	}
}

func TestSweepStalledReportsExpiredJobIDs(t *testing.T) {
	store := newFakeStore()
	a := New(store, fixedCeiling(2), nil)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	if err := store.ZAdd(ctx, activeKey("tenant-1"), "stalled-job", float64(past.Unix())); err != nil {
		t.Fatalf("seed: %v", err)
	}

	expired, err := a.SweepStalled(ctx, "tenant-1", time.Now())
	if err != nil {
		t.Fatalf("sweep stalled: %v", err)
	}
	if len(expired) != 1 || expired[0] != "stalled-job" {
		t.Fatalf("expected [stalled-job], got %v", expired)
	}

	n, _ := a.InflightCount(ctx, "tenant-1")
	if n != 0 {
		t.Fatalf("expected lease removed after sweep, inflight=%d", n)
	}
}
