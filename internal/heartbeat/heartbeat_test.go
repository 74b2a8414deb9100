package heartbeat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/room-relay/internal/event"
	"github.com/rickgao/room-relay/internal/room"
)

type fakeConn struct {
	id uuid.UUID

	mu       sync.Mutex
	received [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.New()}
}

func (c *fakeConn) ID() uuid.UUID { return c.id }

func (c *fakeConn) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, data)
	return true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func (c *fakeConn) first() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received[0]
}

type fakeSource struct {
	mu    sync.Mutex
	conns []room.Member
}

func (s *fakeSource) Connections() []room.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]room.Member(nil), s.conns...)
}

func TestMonitor_BroadcastsToAllConnections(t *testing.T) {
	a, b := newFakeConn(), newFakeConn()
	source := &fakeSource{conns: []room.Member{a, b}}

	m := New(Config{Interval: 20 * time.Millisecond}, source, nil)

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Observe several periods.
	time.Sleep(110 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	// Roughly one tick per period for every connection, regardless of room.
	for name, c := range map[string]*fakeConn{"a": a, "b": b} {
		got := c.count()
		if got < 3 || got > 7 {
			t.Errorf("%s received %d ticks over ~5 periods, want 3-7", name, got)
		}
	}
	if a.count() != b.count() {
		t.Errorf("tick counts differ: a=%d b=%d", a.count(), b.count())
	}
}

func TestMonitor_TickShape(t *testing.T) {
	c := newFakeConn()
	source := &fakeSource{conns: []room.Member{c}}

	m := New(Config{Interval: 10 * time.Millisecond}, source, nil)
	m.Start(context.Background())
	defer m.Stop(context.Background())

	deadline := time.Now().Add(time.Second)
	for c.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.count() == 0 {
		t.Fatal("no heartbeat received")
	}

	var wire struct {
		Event string `json:"event"`
		Data  struct {
			Time time.Time `json:"time"`
		} `json:"data"`
	}
	if err := json.Unmarshal(c.first(), &wire); err != nil {
		t.Fatalf("unmarshal tick: %v", err)
	}
	if wire.Event != event.NameHeartbeat {
		t.Errorf("Event = %s, want %s", wire.Event, event.NameHeartbeat)
	}
	if wire.Data.Time.IsZero() {
		t.Error("tick time should be set")
	}
}

func TestMonitor_StopBeforeTick(t *testing.T) {
	source := &fakeSource{}
	m := New(Config{Interval: time.Hour}, source, nil)

	ctx := context.Background()
	m.Start(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
