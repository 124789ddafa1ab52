package store

import (
	"context"

	"github.com/cockroachdb/errors"
)

// AddACL inserts one ACL rule. Column order is always (topic_filter,
// can_publish, can_subscribe), never swapped between call sites.
func (s *Store) AddACL(ctx context.Context, userID int64, topicFilter string, canPublish, canSubscribe bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO acls (user_id, topic, can_publish, can_subscribe) VALUES (?, ?, ?, ?);`,
		userID, topicFilter, canPublish, canSubscribe)
	if err != nil {
		return errors.Wrap(err, "store: insert acl")
	}
	return s.Persist()
}

// ListACLs returns every ACL rule for userID.
func (s *Store) ListACLs(ctx context.Context, userID int64) ([]ACLRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, topic, can_publish, can_subscribe FROM acls WHERE user_id = ?;`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "store: query acls")
	}
	defer rows.Close()

	var rules []ACLRule
	for rows.Next() {
		var r ACLRule
		if err := rows.Scan(&r.ID, &r.UserID, &r.TopicFilter, &r.CanPublish, &r.CanSubscribe); err != nil {
			return nil, errors.Wrap(err, "store: scan acl row")
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "store: iterate acl rows")
	}
	return rules, nil
}
