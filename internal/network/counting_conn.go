package network

import (
	"net"
	"sync/atomic"
	"time"
)

// countingConn wraps a net.Conn to track per-connection byte counts and
// last-activity time for diagnostics logging. It never influences the
// protocol state machine — nothing in internal/broker sees these
// counters, so backpressure and flow control stay out of scope.
type countingConn struct {
	net.Conn

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	lastActivity atomic.Int64 // unix nanos
}

func newCountingConn(conn net.Conn) *countingConn {
	c := &countingConn{Conn: conn}
	c.touch()
	return c
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.bytesRead.Add(int64(n))
		c.touch()
	}
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.bytesWritten.Add(int64(n))
		c.touch()
	}
	return n, err
}

func (c *countingConn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// BytesRead returns the cumulative bytes read off this connection.
func (c *countingConn) BytesRead() int64 { return c.bytesRead.Load() }

// BytesWritten returns the cumulative bytes written to this connection.
func (c *countingConn) BytesWritten() int64 { return c.bytesWritten.Load() }

// LastActivity returns the time of the most recent read or write.
func (c *countingConn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}
