package chanpool

import (
	"sync/atomic"

	"google.golang.org/grpc"
)

// Channel is one pooled transport channel. Many calls may share a channel
// concurrently; the active-call counter tracks how many are in flight.
type Channel struct {
	id     int
	conn   grpc.ClientConnInterface
	active atomic.Int64
}

// ID returns the channel's index within its pool, stable for the
// channel's lifetime.
func (c *Channel) ID() int { return c.id }

// ActiveCalls returns the number of calls currently reserved on the
// channel.
func (c *Channel) ActiveCalls() int64 { return c.active.Load() }

// Conn returns the underlying transport channel the call is dispatched
// on.
func (c *Channel) Conn() grpc.ClientConnInterface { return c.conn }

func (c *Channel) close() error {
	if closer, ok := c.conn.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
