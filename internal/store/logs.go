package store

import (
	"context"

	"github.com/cockroachdb/errors"
)

// InsertLog appends one audit record. Called by the audit buffer's
// background flusher, not directly from the protocol hot path.
func (s *Store) InsertLog(ctx context.Context, entry LogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (timestamp, client_id, topic, action, success, details) VALUES (?, ?, ?, ?, ?, ?);`,
		entry.Timestamp.UTC().Format(timeFormat), entry.ClientID, entry.Topic, entry.Action, entry.Success, entry.Details)
	if err != nil {
		return errors.Wrap(err, "store: insert log entry")
	}
	return s.Persist()
}
