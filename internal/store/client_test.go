package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/room-relay/internal/event"
)

func TestClient_SaveMessage(t *testing.T) {
	var gotPath string
	var gotContentType string
	var gotBody StoredMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(0, time.Millisecond))

	msg := StoredMessage{
		Content:   "hi",
		Sender:    event.SenderUser,
		Timestamp: "2025-06-01T12:00:00Z",
	}
	if err := c.SaveMessage(context.Background(), 7, msg); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	if gotPath != "/room/messages/7" {
		t.Errorf("path = %q, want /room/messages/7", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotBody.Content != "hi" {
		t.Errorf("Content = %q, want hi", gotBody.Content)
	}
	if gotBody.Sender != event.SenderUser {
		t.Errorf("Sender = %s, want user", gotBody.Sender)
	}
	if gotBody.Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("Timestamp = %q, want 2025-06-01T12:00:00Z", gotBody.Timestamp)
	}
}

func TestClient_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(3, time.Millisecond))

	err := c.SaveMessage(context.Background(), 1, StoredMessage{Content: "x", Sender: event.SenderUser})
	if err != nil {
		t.Fatalf("SaveMessage should succeed after retries, got: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(2, time.Millisecond))

	err := c.SaveMessage(context.Background(), 1, StoredMessage{Content: "x", Sender: event.SenderUser})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls.Load())
	}
}

func TestClient_PermanentFailureNoRetry(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(3, time.Millisecond))

	err := c.SaveMessage(context.Background(), 1, StoredMessage{Content: "x", Sender: event.SenderUser})
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (4xx is terminal)", calls.Load())
	}

	storeErr, ok := err.(*StoreError)
	if !ok {
		t.Fatalf("error type = %T, want *StoreError", err)
	}
	if storeErr.IsRetryable() {
		t.Error("422 should not be retryable")
	}
}

func TestStoreError_IsRetryable(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{404, false},
		{422, false},
	}
	for _, tc := range cases {
		e := &StoreError{StatusCode: tc.status}
		if got := e.IsRetryable(); got != tc.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithRetries(5, 50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.SaveMessage(ctx, 1, StoredMessage{Content: "x", Sender: event.SenderUser})
	if err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
