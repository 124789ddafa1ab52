// Package auth implements credential verification and ACL evaluation:
// can_subscribe and can_publish against the stored per-user topic rules.
package auth

import (
	"context"
	"strings"

	"github.com/schoolmq/broker/internal/brokererr"
	"github.com/schoolmq/broker/internal/store"
	"github.com/schoolmq/broker/internal/topic"
	"golang.org/x/crypto/bcrypt"

	"github.com/cockroachdb/errors"
)

// aclStore is the subset of *store.Store the evaluator needs, so tests
// can substitute a fake.
type aclStore interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	ListACLs(ctx context.Context, userID int64) ([]store.ACLRule, error)
}

// aclCache is the subset of *store.ACLCache the evaluator can use.
type aclCache interface {
	Get(ctx context.Context, userID int64, topic, op string) (allowed, found bool)
	Set(ctx context.Context, userID int64, topic, op string, allowed bool)
}

// Evaluator verifies CONNECT credentials and answers SUBSCRIBE/PUBLISH
// authorization questions against the storage layer's ACL table. The
// cache is optional: passing nil falls back to direct SQL evaluation on
// every call.
type Evaluator struct {
	acls  aclStore
	cache aclCache
}

// NewEvaluator builds an evaluator backed by s, optionally accelerated
// by cache.
func NewEvaluator(s aclStore, cache aclCache) *Evaluator {
	return &Evaluator{acls: s, cache: cache}
}

// HashPassword produces a bcrypt digest suitable for storage as
// User.PasswordHash.
func HashPassword(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "auth: hash password")
	}
	return string(digest), nil
}

// VerifyUser looks up username and compares password against the stored
// bcrypt digest in constant time (bcrypt's own comparison already is).
// Returns brokererr.ErrAuthFailure on any mismatch or missing user.
func (e *Evaluator) VerifyUser(ctx context.Context, username, password string) (*store.User, error) {
	user, err := e.acls.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, brokererr.ErrAuthFailure
		}
		return nil, errors.Wrap(err, "auth: look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, brokererr.ErrAuthFailure
	}
	return user, nil
}

// CanSubscribe implements the three-rule SUBSCRIBE authorization check:
// an exact topic_filter match, a "/#" suffix matched against its prefix,
// or a "+"-bearing filter matched against any rule sharing its first
// level. This deliberately does not reuse the general MQTT matcher used
// by CanPublish — the rules are literal and asymmetric by design.
func (e *Evaluator) CanSubscribe(ctx context.Context, userID int64, topicFilter string) (bool, error) {
	if cached, ok := e.getCached(ctx, userID, topicFilter, "subscribe"); ok {
		return cached, nil
	}

	rules, err := e.acls.ListACLs(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "auth: list acls")
	}

	allowed := false
	for _, r := range rules {
		if !r.CanSubscribe {
			continue
		}
		if r.TopicFilter == topicFilter {
			allowed = true
			break
		}
		if strings.HasSuffix(topicFilter, "/#") {
			prefix := strings.TrimSuffix(topicFilter, "/#")
			if r.TopicFilter == prefix {
				allowed = true
				break
			}
		}
		if strings.Contains(topicFilter, "+") {
			firstLevel, _, found := strings.Cut(topicFilter, "/")
			if found && strings.HasPrefix(r.TopicFilter, firstLevel+"/") {
				allowed = true
				break
			}
		}
	}

	e.setCached(ctx, userID, topicFilter, "subscribe", allowed)
	return allowed, nil
}

// CanPublish returns true if any can_publish=1 ACL rule for userID
// matches topic under standard MQTT-style filter matching (§4.3.1,
// implemented by internal/topic.Match).
func (e *Evaluator) CanPublish(ctx context.Context, userID int64, publishTopic string) (bool, error) {
	if cached, ok := e.getCached(ctx, userID, publishTopic, "publish"); ok {
		return cached, nil
	}

	rules, err := e.acls.ListACLs(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "auth: list acls")
	}

	allowed := false
	for _, r := range rules {
		if r.CanPublish && topic.Match(r.TopicFilter, publishTopic) {
			allowed = true
			break
		}
	}

	e.setCached(ctx, userID, publishTopic, "publish", allowed)
	return allowed, nil
}

func (e *Evaluator) getCached(ctx context.Context, userID int64, topic, op string) (bool, bool) {
	if e.cache == nil {
		return false, false
	}
	return e.cache.Get(ctx, userID, topic, op)
}

func (e *Evaluator) setCached(ctx context.Context, userID int64, topic, op string, allowed bool) {
	if e.cache == nil {
		return
	}
	e.cache.Set(ctx, userID, topic, op, allowed)
}
