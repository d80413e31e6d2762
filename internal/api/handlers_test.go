package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"raito/internal/admission"
	"raito/internal/config"
	"raito/internal/crawlregistry"
	"raito/internal/priority"
	"raito/internal/queue"
)

// fakeStore is a minimal in-memory stand-in covering every method
// admission/crawlregistry/queue declare against the State Store
// Adapter, mirroring the worker package's test fake.
type fakeStore struct {
	zsets  map[string]map[string]float64
	sets   map[string]map[string]bool
	lists  map[string][]string
	hashes map[string]map[string]string
	nx     map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		zsets:  make(map[string]map[string]float64),
		sets:   make(map[string]map[string]bool),
		lists:  make(map[string][]string),
		hashes: make(map[string]map[string]string),
		nx:     make(map[string]bool),
	}
}

func (f *fakeStore) ZAdd(_ context.Context, setName, member string, score float64) error {
	if f.zsets[setName] == nil {
		f.zsets[setName] = make(map[string]float64)
	}
	f.zsets[setName][member] = score
	return nil
}
func (f *fakeStore) ZRem(_ context.Context, setName, member string) error {
	delete(f.zsets[setName], member)
	return nil
}
func (f *fakeStore) ZCard(_ context.Context, setName string) (int64, error) {
	return int64(len(f.zsets[setName])), nil
}
func (f *fakeStore) ZPopMin(_ context.Context, setName string) (string, float64, bool, error) {
	return "", 0, false, nil
}
func (f *fakeStore) ZRemRangeByScore(_ context.Context, setName string, min, max float64) error {
	return nil
}
func (f *fakeStore) ZRangeByScore(_ context.Context, setName string, min, max float64, limit int64) ([]string, error) {
	return nil, nil
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
func (f *fakeStore) SRem(_ context.Context, setName, member string) error {
	delete(f.sets[setName], member)
	return nil
}
func (f *fakeStore) SIsMember(_ context.Context, setName, member string) (bool, error) {
	return f.sets[setName][member], nil
}
func (f *fakeStore) RPush(_ context.Context, listName, value string) error {
	f.lists[listName] = append(f.lists[listName], value)
	return nil
}
func (f *fakeStore) LPop(_ context.Context, listName string) (string, bool, error) {
	list := f.lists[listName]
	if len(list) == 0 {
		return "", false, nil
	}
	v := list[0]
	f.lists[listName] = list[1:]
	return v, true, nil
}
func (f *fakeStore) LLen(_ context.Context, listName string) (int64, error) {
	return int64(len(f.lists[listName])), nil
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
	return f.hashes[hashName], nil
}
func (f *fakeStore) HDel(_ context.Context, hashName, field string) error {
	delete(f.hashes[hashName], field)
	return nil
}
func (f *fakeStore) HIncrBy(_ context.Context, hashName, field string, by int64) (int64, error) {
	return 0, nil
}
func (f *fakeStore) SetNX(_ context.Context, name, value string, ttl time.Duration) (bool, error) {
	if f.nx[name] {
		return false, nil
	}
	f.nx[name] = true
	return true, nil
}
func (f *fakeStore) Expire(_ context.Context, name string, ttl time.Duration) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	cfg := &config.Config{}
	adm := admission.New(store, plan10{}, nil)
	q := queue.New(store, adm)
	registry := crawlregistry.New(store)
	scorer := priority.NewScorer(cfg)
	return NewServer(cfg, q, registry, scorer, nil), store
}

type plan10 struct{}

func (plan10) Ceiling(string) int { return 10 }

func TestSubmitScrapeRejectsMissingURL(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", uuid.New().String())

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSubmitScrapeRejectsMissingTenantHeader(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(ScrapeRequest{URL: "https://example.com/"})
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestSubmitScrapeReturnsJobID(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(ScrapeRequest{URL: "https://example.com/"})
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", uuid.New().String())

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out ScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.JobID == "" || out.StatusURL == "" {
		t.Fatalf("expected job_id and status_url, got %+v", out)
	}
}

func TestSubmitCrawlThenCancelThenStatus(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(CrawlRequest{URL: "https://example.com/"})
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", uuid.New().String())

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var created CrawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode crawl response: %v", err)
	}
	if created.CrawlID == "" {
		t.Fatalf("expected crawl_id, got %+v", created)
	}

	cancelReq := httptest.NewRequest(http.MethodPost, "/v1/crawl/"+created.CrawlID+"/cancel", nil)
	cancelResp, err := s.app.Test(cancelReq, -1)
	if err != nil {
		t.Fatalf("app.Test cancel: %v", err)
	}
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 cancelling crawl, got %d", cancelResp.StatusCode)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/v1/crawl/"+created.CrawlID, nil)
	statusResp, err := s.app.Test(statusReq, -1)
	if err != nil {
		t.Fatalf("app.Test status: %v", err)
	}
	var status CrawlStatusResponse
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if status.Status != "cancelled" {
		t.Fatalf("expected cancelled status, got %q", status.Status)
	}
}

func TestCrawlStatusNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/crawl/"+uuid.New().String(), nil)
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
