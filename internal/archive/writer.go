// Package archive provides an optional local Postgres sink for chat
// messages, batched for insert throughput. It is a secondary sink next to
// the external store and shares its failure isolation: archive errors are
// logged and never surfaced to the relay path.
package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/room-relay/internal/event"
)

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: 1 * time.Second,
		BufferSize:    1000,
	}
}

// WriterMetrics contains runtime counters.
type WriterMetrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64 // Submissions rejected because the buffer was full
}

// messageRow is one archived chat message.
type messageRow struct {
	RoomID     int64
	Sender     string
	Content    string
	SentAt     time.Time // Effective message timestamp
	ReceivedAt int64     // µs since epoch, relay receipt time
}

// Writer consumes chat message envelopes and writes them to the
// room_messages table in batches.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger

	input chan event.Envelope

	db *pgxpool.Pool

	// Batching
	batch       []messageRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewWriter creates an archive writer.
func NewWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan event.Envelope, cfg.BufferSize),
		batch:  make([]messageRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming messages and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes the remaining batch.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	// Final flush on a fresh context; w.ctx is already cancelled.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	w.flush(flushCtx)

	return nil
}

// Submit enqueues a chat message for archiving. Non-message events are
// rejected; a full buffer drops the submission rather than blocking.
func (w *Writer) Submit(env event.Envelope) bool {
	if env.Kind != event.KindMessage {
		return false
	}

	select {
	case w.input <- env:
		return true
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("archive buffer full, dropping message", "room_id", env.RoomID)
		return false
	}
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads envelopes and accumulates batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case env := <-w.input:
			w.handleMessage(env)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleMessage transforms and adds an envelope to the batch.
func (w *Writer) handleMessage(env event.Envelope) {
	row, ok := w.transform(env)
	if !ok {
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a message envelope to a messageRow.
func (w *Writer) transform(env event.Envelope) (messageRow, bool) {
	msg, err := event.ParseChatMessage(env.Payload)
	if err != nil {
		w.logger.Warn("unparseable message payload, skipping archive",
			"room_id", env.RoomID,
			"error", err,
		)
		return messageRow{}, false
	}

	sentAt, err := time.Parse(time.RFC3339, msg.EffectiveTimestamp(env.ReceivedAt))
	if err != nil {
		sentAt = env.ReceivedAt
	}

	return messageRow{
		RoomID:     env.RoomID,
		Sender:     string(env.Sender),
		Content:    msg.Content,
		SentAt:     sentAt,
		ReceivedAt: env.ReceivedAt.UnixMicro(),
	}, true
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]messageRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("archive batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed messages",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *Writer) batchInsert(ctx context.Context, rows []messageRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO room_messages (room_id, sender, content, sent_at, received_at)
			VALUES ($1, $2, $3, $4, $5)
		`, r.RoomID, r.Sender, r.Content, r.SentAt, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
