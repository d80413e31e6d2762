package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"raito/internal/model"
)

func TestDeliverPostsJSONPayload(t *testing.T) {
	var received Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(0)
	hook := &model.Webhook{URL: srv.URL, Events: []string{EventCrawlCompleted}}

	err := c.Deliver(context.Background(), hook, EventCrawlCompleted, Payload{
		Success: true,
		Type:    EventCrawlCompleted,
		ID:      "crawl-1",
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if received.ID != "crawl-1" || received.Type != EventCrawlCompleted {
		t.Fatalf("unexpected payload received: %+v", received)
	}
}

func TestDeliverSkipsEventsNotInFilter(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(0)
	hook := &model.Webhook{URL: srv.URL, Events: []string{EventCrawlCompleted}}

	if err := c.Deliver(context.Background(), hook, EventCrawlPage, Payload{}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if called {
		t.Fatalf("expected no request for a filtered-out event")
	}
}

func TestDeliverReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(0)
	hook := &model.Webhook{URL: srv.URL}

	err := c.Deliver(context.Background(), hook, EventCrawlCompleted, Payload{})
	if err == nil {
		t.Fatalf("expected delivery error on 500 response")
	}
}

func TestDeliverOnNilHookIsNoOp(t *testing.T) {
	c := NewClient(0)
	if err := c.Deliver(context.Background(), nil, EventCrawlCompleted, Payload{}); err != nil {
		t.Fatalf("expected nil-hook delivery to be a no-op, got %v", err)
	}
}
