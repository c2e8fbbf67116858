// Package stream wraps the inbound event stream of the messaging platform:
// the event contract, the process instance identity, and the consumer guard
// that keeps a single long-poll loop alive across upstream conflicts.
package stream

import "context"

// Event is one inbound update, reduced to what the core consumes: the
// submitting user and the message text. The platform's message format is not
// interpreted beyond that.
type Event struct {
	UpdateID int64
	UserID   int64
	ChatID   int64
	Username string
	Text     string
}

// Source delivers batches of events. Poll blocks up to the source's
// configured long-poll timeout and may return an empty batch. A conflict
// signaled by the upstream (another consumer holds the stream) must be
// returned as an error matching common.ErrConflict.
type Source interface {
	Poll(ctx context.Context) ([]Event, error)
}
