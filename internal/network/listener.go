package network

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Handler processes one accepted connection. It is invoked with a
// context that is canceled when the server is shutting down, and is
// responsible for its own cleanup (closing conn) before returning.
type Handler func(ctx context.Context, conn net.Conn)

// Listener binds a TCP (optionally TLS-wrapped) socket and spawns a
// Handler per accepted connection.
type Listener struct {
	netListener net.Listener
}

// Listen binds addr. If tlsConfig is non-nil the socket is TLS-wrapped;
// otherwise it is a plain TCP listener (useful for tests that drive the
// wire protocol directly).
func Listen(addr string, tlsConfig *tls.Config) (*Listener, error) {
	var ln net.Listener
	var err error
	if tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, errors.Wrap(err, "network: listen")
	}
	return &Listener{netListener: ln}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.netListener.Addr()
}

// Serve accepts connections until ctx is canceled, tuning each with
// keepAlive (0 disables it) and dispatching it to handler on its own
// goroutine. Canceling ctx closes the listener and Serve returns once
// every in-flight handler has returned — a clean shutdown drain, not an
// abrupt one.
func (l *Listener) Serve(ctx context.Context, keepAlive time.Duration, handler Handler) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return l.netListener.Close()
	})

	g.Go(func() error {
		for {
			conn, err := l.netListener.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "network: accept")
			}

			tuneConn(conn, keepAlive)

			g.Go(func() error {
				handler(gctx, conn)
				return nil
			})
		}
	})

	return g.Wait()
}

// tuneConn applies the broker's socket-level keep-alive tuning. This is
// a TCP socket option only — there is no PINGREQ-style application
// keep-alive in this protocol.
func tuneConn(conn net.Conn, keepAlive time.Duration) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		if tlsConn, ok := conn.(*tls.Conn); ok {
			if underlying, ok := tlsConn.NetConn().(*net.TCPConn); ok {
				tcpConn = underlying
			}
		}
	}
	if tcpConn == nil || keepAlive <= 0 {
		return
	}
	_ = tcpConn.SetKeepAlive(true)
	_ = tcpConn.SetKeepAlivePeriod(keepAlive)
}
