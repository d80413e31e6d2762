package queue

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"raito/internal/admission"
	"raito/internal/model"
)

type fakeStore struct {
	ready  []string
	hashes map[string]map[string]string
	sets   map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: make(map[string]map[string]string), sets: make(map[string]map[string]bool)}
}

func (f *fakeStore) RPush(_ context.Context, _ string, value string) error {
	f.ready = append(f.ready, value)
	return nil
}

func (f *fakeStore) LPop(_ context.Context, _ string) (string, bool, error) {
	if len(f.ready) == 0 {
		return "", false, nil
	}
	v := f.ready[0]
	f.ready = f.ready[1:]
	return v, true, nil
}

func (f *fakeStore) HSet(_ context.Context, hashName, field, value string) error {
	if f.hashes[hashName] == nil {
		f.hashes[hashName] = make(map[string]string)
	}
	f.hashes[hashName][field] = value
	return nil
}

func (f *fakeStore) HGet(_ context.Context, hashName, field string) (string, bool, error) {
	v, ok := f.hashes[hashName][field]
	return v, ok, nil
}

func (f *fakeStore) HDel(_ context.Context, hashName, field string) error {
	delete(f.hashes[hashName], field)
	return nil
}

func (f *fakeStore) SAdd(_ context.Context, setName, member string) (bool, error) {
	if f.sets[setName] == nil {
		f.sets[setName] = make(map[string]bool)
	}
	added := !f.sets[setName][member]
	f.sets[setName][member] = true
	return added, nil
}

func (f *fakeStore) SMembers(_ context.Context, setName string) ([]string, error) {
	var out []string
	for m := range f.sets[setName] {
		out = append(out, m)
	}
	return out, nil
}

type fakeAdmitter struct {
	outcome  admission.Outcome
	complete []string
}

func (f *fakeAdmitter) Admit(_ context.Context, _, _, _ string, _ float64) (admission.Outcome, error) {
	return f.outcome, nil
}

func (f *fakeAdmitter) Complete(_ context.Context, _, _, _ string) ([]string, error) {
	return f.complete, nil
}

func sampleJob() model.ScrapeJob {
	return model.ScrapeJob{
		ID:       uuid.New(),
		URL:      "https://example.com/",
		Mode:     model.ModeSingle,
		TenantID: uuid.New(),
		Plan:     model.PlanFree,
	}
}

func TestEnqueueRunNowPushesToReadyList(t *testing.T) {
	store := newFakeStore()
	q := New(store, &fakeAdmitter{outcome: admission.RunNow})

	job := sampleJob()
	if err := q.Enqueue(context.Background(), job, 10); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(store.ready) != 1 || store.ready[0] != job.ID.String() {
		t.Fatalf("expected job pushed to ready list, got %v", store.ready)
	}
}

func TestEnqueueQueuedDoesNotPushToReadyList(t *testing.T) {
	store := newFakeStore()
	q := New(store, &fakeAdmitter{outcome: admission.Queued})

	if err := q.Enqueue(context.Background(), sampleJob(), 10); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(store.ready) != 0 {
		t.Fatalf("expected nothing pushed to ready list, got %v", store.ready)
	}
}

func TestClaimRoundTripsJobPayload(t *testing.T) {
	store := newFakeStore()
	q := New(store, &fakeAdmitter{outcome: admission.RunNow})

	job := sampleJob()
	if err := q.Enqueue(context.Background(), job, 10); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, found, err := q.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !found {
		t.Fatalf("expected a job to be claimable")
	}
	if claimed.ID != job.ID || claimed.URL != job.URL {
		t.Fatalf("expected claimed job to match enqueued job, got %+v", claimed)
	}
}

func TestClaimOnEmptyReadyListReturnsNotFound(t *testing.T) {
	store := newFakeStore()
	q := New(store, &fakeAdmitter{outcome: admission.RunNow})

	_, found, err := q.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if found {
		t.Fatalf("expected not found on empty ready list")
	}
}

func TestCompletePushesPromotedJobsToReadyList(t *testing.T) {
	store := newFakeStore()
	q := New(store, &fakeAdmitter{complete: []string{"promoted-1", "promoted-2"}})

	if err := q.Complete(context.Background(), "tenant-1", "free", "job-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(store.ready) != 2 {
		t.Fatalf("expected 2 promoted jobs pushed to ready list, got %v", store.ready)
	}
}
