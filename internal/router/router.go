package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/room-relay/internal/event"
	"github.com/rickgao/room-relay/internal/room"
)

// Membership resolves room member sets for fan-out.
type Membership interface {
	Members(roomID int64) []room.Member
	IsMember(id uuid.UUID, roomID int64) bool
}

// Sink receives a copy of qualifying events for persistence. Submit must
// not block.
type Sink interface {
	Submit(env event.Envelope) bool
}

// Stats contains runtime counters.
type Stats struct {
	Received          int64 // Frames handed to Route
	Routed            int64 // Envelopes fanned out
	Deliveries        int64 // Successful per-member deliveries
	DroppedDeliveries int64 // Members whose send buffer was full
	ParseErrors       int64 // Malformed envelopes (reported to sender only)
	Rejected          int64 // Events for rooms the sender never joined
}

// Router fans incoming events out to room members.
type Router struct {
	registry Membership
	sinks    []Sink
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Router. Sinks receive message events after fan-out;
// a nil or empty sink list disables persistence.
func New(registry Membership, logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		sinks:    sinks,
		logger:   logger,
	}
}

// Route validates one inbound frame and delivers it to every member of the
// target room except the sender.
//
// A malformed frame is dropped and reported to the sender only. An event
// for a room the sender has not joined is rejected the same way, never
// relayed. Delivery to each member is independent: a slow or dead member
// is skipped without affecting the others. Events from one sender to one
// room keep their processing order; there is no cross-sender ordering.
func (r *Router) Route(sender room.Member, data []byte) {
	receivedAt := time.Now()

	r.mu.Lock()
	r.stats.Received++
	r.mu.Unlock()

	env, err := event.Decode(data, receivedAt)
	if err != nil {
		r.logger.Warn("dropping malformed event",
			"conn_id", sender.ID(),
			"error", err,
		)
		r.mu.Lock()
		r.stats.ParseErrors++
		r.mu.Unlock()

		sender.Deliver(event.EncodeError(0, event.CodeMalformedEvent, err.Error()))
		return
	}

	if !r.registry.IsMember(sender.ID(), env.RoomID) {
		r.logger.Warn("rejecting event for room sender has not joined",
			"conn_id", sender.ID(),
			"room_id", env.RoomID,
		)
		r.mu.Lock()
		r.stats.Rejected++
		r.mu.Unlock()

		sender.Deliver(event.EncodeError(env.RoomID, event.CodeRoomNotJoined, "join the room before sending events"))
		return
	}

	// Re-encode once; Encode reproduces the wire shape the event arrived in.
	payload, err := env.Encode()
	if err != nil {
		r.logger.Error("failed to encode envelope", "error", err)
		return
	}

	// Snapshot the member set, then deliver without holding any lock.
	// Routing to a room with no members is a silent no-op.
	senderID := sender.ID()
	var delivered, dropped int64
	for _, m := range r.registry.Members(env.RoomID) {
		if m.ID() == senderID {
			continue
		}
		if m.Deliver(payload) {
			delivered++
		} else {
			dropped++
			r.logger.Warn("member send buffer full, skipping delivery",
				"conn_id", m.ID(),
				"room_id", env.RoomID,
			)
		}
	}

	r.mu.Lock()
	r.stats.Routed++
	r.stats.Deliveries += delivered
	r.stats.DroppedDeliveries += dropped
	r.mu.Unlock()

	// Chat messages qualify for persistence; hand off without waiting for
	// the result.
	if env.Kind == event.KindMessage {
		for _, sink := range r.sinks {
			sink.Submit(env)
		}
	}

	r.logger.Debug("event routed",
		"room_id", env.RoomID,
		"kind", env.Kind,
		"delivered", delivered,
	)
}

// Stats returns current counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
