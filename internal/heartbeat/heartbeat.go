// Package heartbeat broadcasts a periodic liveness tick to every
// connection, regardless of room membership. The tick is one-way: no
// acknowledgment is required or tracked.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/room-relay/internal/event"
	"github.com/rickgao/room-relay/internal/room"
)

// ConnSource provides a read-only snapshot of all current connections.
type ConnSource interface {
	Connections() []room.Member
}

// Config holds monitor configuration.
type Config struct {
	Interval time.Duration // Broadcast period (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
	}
}

// Monitor is the periodic heartbeat broadcaster.
type Monitor struct {
	cfg    Config
	source ConnSource
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor.
func New(cfg Config, source ConnSource, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:    cfg,
		source: source,
		logger: logger,
	}
}

// Start begins the broadcast loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("liveness monitor started", "interval", m.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the monitor.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("liveness monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the broadcast loop.
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.broadcast()
		}
	}
}

// broadcast sends one tick to every connection.
func (m *Monitor) broadcast() {
	tick := event.EncodeHeartbeat(event.HeartbeatTick{Time: time.Now().UTC()})

	conns := m.source.Connections()
	var dropped int
	for _, c := range conns {
		if !c.Deliver(tick) {
			dropped++
		}
	}

	m.logger.Debug("heartbeat broadcast",
		"connections", len(conns),
		"dropped", dropped,
	)
}
