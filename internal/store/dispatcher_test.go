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

func messageEnvelope(roomID int64, content string) event.Envelope {
	payload, _ := json.Marshal(event.ChatMessage{Content: content})
	return event.Envelope{
		RoomID:     roomID,
		Sender:     event.SenderUser,
		Kind:       event.KindMessage,
		Payload:    payload,
		Shape:      event.ShapeTyped,
		ReceivedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_PersistsMessage(t *testing.T) {
	var gotPath atomic.Value
	var gotBody atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body StoredMessage
		json.NewDecoder(r.Body).Decode(&body)
		gotPath.Store(r.URL.Path)
		gotBody.Store(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(0, time.Millisecond))
	d := NewDispatcher(DefaultDispatcherConfig(), client, nil)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		d.Stop(stopCtx)
	}()

	if ok := d.Submit(messageEnvelope(7, "hi")); !ok {
		t.Fatal("Submit should accept a message event")
	}

	waitFor(t, time.Second, func() bool {
		return d.Stats().Saved == 1
	})

	if got := gotPath.Load(); got != "/room/messages/7" {
		t.Errorf("path = %v, want /room/messages/7", got)
	}
	body := gotBody.Load().(StoredMessage)
	if body.Content != "hi" {
		t.Errorf("Content = %q, want hi", body.Content)
	}
	// No payload timestamp: receipt time is used.
	if body.Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("Timestamp = %q, want receipt time", body.Timestamp)
	}
}

func TestDispatcher_IgnoresNonMessageEvents(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	d := NewDispatcher(DefaultDispatcherConfig(), client, nil)

	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop(ctx)

	typing, _ := json.Marshal(event.TypingNotification{Type: event.TypingStart})
	env := event.Envelope{
		RoomID:  7,
		Sender:  event.SenderUser,
		Kind:    event.KindTyping,
		Payload: typing,
	}

	if ok := d.Submit(env); ok {
		t.Error("Submit should reject non-message events")
	}

	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("store calls = %d, want 0 for typing events", calls.Load())
	}
}

func TestDispatcher_QueueFullDropsNewest(t *testing.T) {
	client := NewClient("http://localhost:0")
	d := NewDispatcher(DispatcherConfig{QueueSize: 1, Workers: 1}, client, nil)
	// Not started: nothing drains the queue.

	if ok := d.Submit(messageEnvelope(1, "first")); !ok {
		t.Fatal("first Submit should be accepted")
	}
	if ok := d.Submit(messageEnvelope(1, "second")); ok {
		t.Error("second Submit should be dropped when the queue is full")
	}

	stats := d.Stats()
	if stats.Submitted != 1 {
		t.Errorf("Submitted = %d, want 1", stats.Submitted)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}

func TestDispatcher_TerminalFailureCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(0, time.Millisecond))
	d := NewDispatcher(DefaultDispatcherConfig(), client, nil)

	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop(ctx)

	d.Submit(messageEnvelope(3, "doomed"))

	waitFor(t, time.Second, func() bool {
		return d.Stats().Failed == 1
	})

	if saved := d.Stats().Saved; saved != 0 {
		t.Errorf("Saved = %d, want 0", saved)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
