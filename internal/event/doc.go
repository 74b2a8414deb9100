// Package event defines the envelope model for events crossing the relay.
//
// Two wire shapes are supported:
//   - typed: {roomId, sender, data: {kind, payload}} with a closed kind set
//   - generic: {event, roomId, data} with open event names
//
// Both decode into the same internal Envelope so the router never
// special-cases the wire format.
package event
