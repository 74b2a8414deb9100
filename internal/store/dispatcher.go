package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/room-relay/internal/event"
)

// DispatcherConfig configures the persistence worker pool.
type DispatcherConfig struct {
	QueueSize int // Bounded submission queue
	Workers   int // Concurrent outbound store calls
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize: 1024,
		Workers:   4,
	}
}

// DispatcherStats contains runtime counters.
type DispatcherStats struct {
	Submitted int64 // Accepted into the queue
	Saved     int64 // Confirmed by the store
	Dropped   int64 // Rejected at Submit (queue full)
	Failed    int64 // Terminal store failures (logged and discarded)
}

// Dispatcher runs persistence on its own concurrency domain so store
// latency never backpressures client-to-client delivery.
type Dispatcher struct {
	cfg    DispatcherConfig
	client *Client
	logger *slog.Logger

	queue chan event.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats DispatcherStats
}

// NewDispatcher creates a persistence dispatcher.
func NewDispatcher(cfg DispatcherConfig, client *Client, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		client: client,
		logger: logger,
		queue:  make(chan event.Envelope, cfg.QueueSize),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	d.logger.Info("persistence dispatcher started",
		"workers", d.cfg.Workers,
		"queue_size", d.cfg.QueueSize,
	)
	return nil
}

// Stop shuts down the worker pool. In-flight attempts finish within the
// context deadline; queued submissions past that are abandoned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.logger.Info("stopping persistence dispatcher")

	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("persistence dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("persistence dispatcher stop timed out")
	}

	return nil
}

// Submit enqueues a fire-and-forget persistence attempt. Only message
// events qualify; anything else is ignored. Submit never blocks: when the
// queue is full the newest submission is dropped.
func (d *Dispatcher) Submit(env event.Envelope) bool {
	if env.Kind != event.KindMessage {
		return false
	}

	select {
	case d.queue <- env:
		d.mu.Lock()
		d.stats.Submitted++
		d.mu.Unlock()
		return true
	default:
		d.mu.Lock()
		d.stats.Dropped++
		d.mu.Unlock()
		d.logger.Warn("persistence queue full, dropping message",
			"room_id", env.RoomID,
		)
		return false
	}
}

// Stats returns current counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// worker drains the queue, one outbound store call at a time.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case env := <-d.queue:
			d.persist(env)
		}
	}
}

// persist performs one store call for a submitted envelope. Failures are
// terminal here: logged, counted, and never re-delivered anywhere.
func (d *Dispatcher) persist(env event.Envelope) {
	msg, err := event.ParseChatMessage(env.Payload)
	if err != nil {
		d.logger.Warn("unparseable message payload, dropping",
			"room_id", env.RoomID,
			"error", err,
		)
		d.mu.Lock()
		d.stats.Failed++
		d.mu.Unlock()
		return
	}

	start := time.Now()
	err = d.client.SaveMessage(d.ctx, env.RoomID, StoredMessage{
		Content:   msg.Content,
		Sender:    env.Sender,
		Timestamp: msg.EffectiveTimestamp(env.ReceivedAt),
	})
	if err != nil {
		d.logger.Error("message persistence dropped",
			"room_id", env.RoomID,
			"error", err,
			"duration", time.Since(start),
		)
		d.mu.Lock()
		d.stats.Failed++
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	d.stats.Saved++
	d.mu.Unlock()

	d.logger.Debug("message saved",
		"room_id", env.RoomID,
		"duration", time.Since(start),
	)
}
