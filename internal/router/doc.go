// Package router validates incoming events and fans them out to room
// members, excluding the sender. Qualifying events are handed to
// persistence sinks without waiting for the result, so routing latency is
// independent of persistence latency.
package router
