package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/schoolmq/broker/internal/store"
)

// auditBuffer is the subset of *store.AuditBuffer the adapter needs.
type auditBuffer interface {
	Append(entry store.LogEntry) error
}

// BufferedAuditLogger adapts a *store.AuditBuffer to the Broker's
// AuditLogger interface: it stamps the server-assigned timestamp and
// stages the entry on a buffered channel, never touching SQL on the
// protocol hot path. A staging failure is recorded in process
// diagnostics only: the audit logger is best-effort and must never
// block the protocol.
type BufferedAuditLogger struct {
	buffer auditBuffer
	log    *slog.Logger
}

// NewBufferedAuditLogger wraps buffer for use as a Broker AuditLogger.
func NewBufferedAuditLogger(buffer auditBuffer, log *slog.Logger) *BufferedAuditLogger {
	if log == nil {
		log = slog.Default()
	}
	return &BufferedAuditLogger{buffer: buffer, log: log}
}

// Log stamps entry.Timestamp and stages it. It never returns an error:
// there is nothing a protocol handler could usefully do with one.
func (l *BufferedAuditLogger) Log(ctx context.Context, entry store.LogEntry) {
	entry.Timestamp = time.Now()
	if err := l.buffer.Append(entry); err != nil {
		l.log.Error("audit log append failed", "action", entry.Action, "client_id", entry.ClientID, "error", err)
	}
}
