package crawlregistry

import (
	"context"
	"testing"
	"time"

	"raito/internal/model"
)

type fakeStore struct {
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	lists  map[string][]string
	nx     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		lists:  make(map[string][]string),
		nx:     make(map[string]string),
	}
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

func (f *fakeStore) HGetAll(_ context.Context, hashName string) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range f.hashes[hashName] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HIncrBy(_ context.Context, hashName, field string, by int64) (int64, error) {
	if f.hashes[hashName] == nil {
		f.hashes[hashName] = make(map[string]string)
	}
	cur := int64(0)
	if v, ok := f.hashes[hashName][field]; ok {
		for _, c := range v {
			cur = cur*10 + int64(c-'0')
		}
	}
	cur += by
	f.hashes[hashName][field] = itoa(cur)
	return cur, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (f *fakeStore) SAdd(_ context.Context, setName, member string) (bool, error) {
	if f.sets[setName] == nil {
		f.sets[setName] = make(map[string]struct{})
	}
	if _, exists := f.sets[setName][member]; exists {
		return false, nil
	}
	f.sets[setName][member] = struct{}{}
	return true, nil
}

func (f *fakeStore) RPush(_ context.Context, listName, value string) error {
	f.lists[listName] = append(f.lists[listName], value)
	return nil
}

func (f *fakeStore) LLen(_ context.Context, listName string) (int64, error) {
	return int64(len(f.lists[listName])), nil
}

func (f *fakeStore) SetNX(_ context.Context, name, value string, _ time.Duration) (bool, error) {
	if _, exists := f.nx[name]; exists {
		return false, nil
	}
	f.nx[name] = value
	return true, nil
}

func (f *fakeStore) Expire(_ context.Context, name string, _ time.Duration) error {
	return nil
}

func TestLockURLSucceedsOnceThenRejectsDuplicate(t *testing.T) {
	reg := New(newFakeStore())
	ctx := context.Background()

	ok, err := reg.LockURL(ctx, "crawl-1", "https://example.com/page")
	if err != nil {
		t.Fatalf("lock url: %v", err)
	}
	if !ok {
		t.Fatalf("expected first lock to succeed")
	}

	ok, err = reg.LockURL(ctx, "crawl-1", "https://example.com/page")
	if err != nil {
		t.Fatalf("lock url again: %v", err)
	}
	if ok {
		t.Fatalf("expected second lock of same URL to fail")
	}
}

func TestTryFinalizeOnlyWinsOnce(t *testing.T) {
	reg := New(newFakeStore())
	ctx := context.Background()

	if err := reg.SaveCrawl(ctx, model.Crawl{ID: "crawl-1"}); err != nil {
		t.Fatalf("save crawl: %v", err)
	}
	if err := reg.AddCrawlJob(ctx, "crawl-1", "job-1"); err != nil {
		t.Fatalf("add job: %v", err)
	}
	if err := reg.FinishKickoff(ctx, "crawl-1"); err != nil {
		t.Fatalf("finish kickoff: %v", err)
	}
	if _, err := reg.AddDone(ctx, "crawl-1", "job-1", true); err != nil {
		t.Fatalf("add done: %v", err)
	}

	first, err := reg.TryFinalize(ctx, "crawl-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !first {
		t.Fatalf("expected first finalize to win")
	}

	second, err := reg.TryFinalize(ctx, "crawl-1")
	if err != nil {
		t.Fatalf("finalize again: %v", err)
	}
	if second {
		t.Fatalf("expected second finalize to lose")
	}
}

func TestTryFinalizeWaitsForKickoffAndDone(t *testing.T) {
	reg := New(newFakeStore())
	ctx := context.Background()

	if err := reg.AddCrawlJob(ctx, "crawl-1", "job-1"); err != nil {
		t.Fatalf("add job: %v", err)
	}

	won, err := reg.TryFinalize(ctx, "crawl-1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if won {
		t.Fatalf("expected finalize to wait for kickoff_finished")
	}
}

func TestCancelFlagObservedByIsCancelled(t *testing.T) {
	reg := New(newFakeStore())
	ctx := context.Background()

	cancelled, err := reg.IsCancelled(ctx, "crawl-1")
	if err != nil || cancelled {
		t.Fatalf("expected not cancelled initially, got %v err=%v", cancelled, err)
	}

	if err := reg.Cancel(ctx, "crawl-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cancelled, err = reg.IsCancelled(ctx, "crawl-1")
	if err != nil {
		t.Fatalf("is cancelled: %v", err)
	}
	if !cancelled {
		t.Fatalf("expected cancelled after Cancel")
	}
}
