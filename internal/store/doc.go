// Package store forwards chat messages to the external message store.
//
// Persistence is best-effort and fully decoupled from the relay path: the
// Dispatcher enqueues without blocking, a bounded worker pool performs the
// HTTP calls, transient failures retry with backoff, and terminal failures
// are logged and dropped. No store error ever reaches the router or a
// client.
package store
