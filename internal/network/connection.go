package network

import (
	"context"
	"log/slog"
	"net"

	"github.com/google/uuid"
	"github.com/schoolmq/broker/internal/codec"
)

// ConnServer is the subset of *broker.Broker the connection handler
// needs: run one connection's protocol state machine to completion.
type ConnServer interface {
	ServeConnection(ctx context.Context, reader *codec.Reader, writer *codec.Writer) error
}

// ConnectionHandler builds a Handler that frames conn with the packet
// codec and hands it to broker. It owns the error boundary: whatever
// happens inside ServeConnection (the router already runs its own
// cleanup on every exit path), the socket is always closed on return.
func ConnectionHandler(broker ConnServer, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, conn net.Conn) {
		defer conn.Close()

		// connID is a diagnostics-only correlation id: it never appears
		// on the wire or in the audit log schema (§6), only in process
		// logs, so independent connections are distinguishable in output
		// that also carries client_id only once CONNECT succeeds.
		connID := uuid.NewString()
		log.Debug("connection accepted", "conn_id", connID, "remote_addr", conn.RemoteAddr())

		counted := newCountingConn(conn)
		reader := codec.NewReader(counted)
		writer := codec.NewWriter(counted)

		err := broker.ServeConnection(ctx, reader, writer)
		logEnded := log.Debug
		if err != nil {
			logEnded = log.Warn
		}
		logEnded("connection ended", "conn_id", connID, "remote_addr", conn.RemoteAddr(),
			"bytes_read", counted.BytesRead(), "bytes_written", counted.BytesWritten(),
			"last_activity", counted.LastActivity(), "error", err)
	}
}
