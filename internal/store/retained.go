package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// SetRetained replaces the retained message for topic, per the
// single-payload-per-topic REPLACE semantics.
func (s *Store) SetRetained(ctx context.Context, topic, payload string, qos int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO retained_messages (topic, payload, qos, timestamp) VALUES (?, ?, ?, ?)
		 ON CONFLICT(topic) DO UPDATE SET payload = excluded.payload, qos = excluded.qos, timestamp = excluded.timestamp;`,
		topic, payload, qos, nowString())
	if err != nil {
		return errors.Wrap(err, "store: upsert retained message")
	}
	return s.Persist()
}

// DeleteRetained clears the retained entry for topic. Publishing an
// empty payload with retain=true triggers this.
func (s *Store) DeleteRetained(ctx context.Context, topic string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM retained_messages WHERE topic = ?;`, topic); err != nil {
		return errors.Wrap(err, "store: delete retained message")
	}
	return s.Persist()
}

// GetRetained returns the retained message for topic, if any.
func (s *Store) GetRetained(ctx context.Context, topic string) (*RetainedMessage, error) {
	var m RetainedMessage
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT topic, payload, qos, timestamp FROM retained_messages WHERE topic = ?;`, topic).
		Scan(&m.Topic, &m.Payload, &m.QoS, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: query retained message")
	}
	m.Timestamp = parseTime(ts)
	return &m, nil
}

// ListRetained returns every retained message, for matching against
// subscription filters at CONNECT/SUBSCRIBE time.
func (s *Store) ListRetained(ctx context.Context) ([]RetainedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topic, payload, qos, timestamp FROM retained_messages;`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list retained messages")
	}
	defer rows.Close()

	var out []RetainedMessage
	for rows.Next() {
		var m RetainedMessage
		var ts string
		if err := rows.Scan(&m.Topic, &m.Payload, &m.QoS, &ts); err != nil {
			return nil, errors.Wrap(err, "store: scan retained message")
		}
		m.Timestamp = parseTime(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "store: iterate retained messages")
	}
	return out, nil
}
