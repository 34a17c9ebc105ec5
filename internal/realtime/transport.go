package realtime

import (
	"context"
	"errors"
)

// ErrChannelClosed is returned by Channel.Send after the channel shut down.
var ErrChannelClosed = errors.New("realtime: channel closed")

// Dialer opens event channels to the backend.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// Channel is one live connection. Events is closed when the connection
// ends; Err then reports why (nil after a local Close).
type Channel interface {
	Send(ctx context.Context, ev Event) error
	Events() <-chan Event
	Err() error
	Close() error
}
