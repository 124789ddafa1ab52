package auth

import (
	"context"
	"testing"

	"github.com/schoolmq/broker/internal/brokererr"
	"github.com/schoolmq/broker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	usersByName map[string]*store.User
	acls        map[int64][]store.ACLRule
}

func newFakeStore() *fakeStore {
	return &fakeStore{usersByName: map[string]*store.User{}, acls: map[int64][]store.ACLRule{}}
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	u, ok := f.usersByName[username]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) ListACLs(ctx context.Context, userID int64) ([]store.ACLRule, error) {
	return f.acls[userID], nil
}

func TestEvaluator_VerifyUser(t *testing.T) {
	fs := newFakeStore()
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	fs.usersByName["alice"] = &store.User{ID: 1, Username: "alice", PasswordHash: hash}

	e := NewEvaluator(fs, nil)

	user, err := e.VerifyUser(context.Background(), "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)

	_, err = e.VerifyUser(context.Background(), "alice", "wrong password")
	assert.ErrorIs(t, err, brokererr.ErrAuthFailure)

	_, err = e.VerifyUser(context.Background(), "nobody", "whatever")
	assert.ErrorIs(t, err, brokererr.ErrAuthFailure)
}

func TestEvaluator_CanSubscribe_ExactMatch(t *testing.T) {
	fs := newFakeStore()
	fs.acls[1] = []store.ACLRule{{TopicFilter: "school/demo", CanSubscribe: true}}
	e := NewEvaluator(fs, nil)

	allowed, err := e.CanSubscribe(context.Background(), 1, "school/demo")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.CanSubscribe(context.Background(), 1, "school/other")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEvaluator_CanSubscribe_HashSuffixMatchesPrefix(t *testing.T) {
	fs := newFakeStore()
	fs.acls[1] = []store.ACLRule{{TopicFilter: "school/demo", CanSubscribe: true}}
	e := NewEvaluator(fs, nil)

	allowed, err := e.CanSubscribe(context.Background(), 1, "school/demo/#")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.CanSubscribe(context.Background(), 1, "school/other/#")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEvaluator_CanSubscribe_PlusMatchesFirstLevelPrefix(t *testing.T) {
	fs := newFakeStore()
	fs.acls[1] = []store.ACLRule{{TopicFilter: "school/demo/sensor", CanSubscribe: true}}
	e := NewEvaluator(fs, nil)

	allowed, err := e.CanSubscribe(context.Background(), 1, "school/+/sensor")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.CanSubscribe(context.Background(), 1, "other/+/sensor")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEvaluator_CanSubscribe_IgnoresCanPublishOnlyRules(t *testing.T) {
	fs := newFakeStore()
	fs.acls[1] = []store.ACLRule{{TopicFilter: "school/demo", CanPublish: true, CanSubscribe: false}}
	e := NewEvaluator(fs, nil)

	allowed, err := e.CanSubscribe(context.Background(), 1, "school/demo")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEvaluator_CanPublish_WildcardMatching(t *testing.T) {
	fs := newFakeStore()
	fs.acls[1] = []store.ACLRule{{TopicFilter: "school/+/sensor/#", CanPublish: true}}
	e := NewEvaluator(fs, nil)

	allowed, err := e.CanPublish(context.Background(), 1, "school/room3/sensor/temp")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.CanPublish(context.Background(), 1, "school/room3/actuator/temp")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEvaluator_CanPublish_IgnoresCanSubscribeOnlyRules(t *testing.T) {
	fs := newFakeStore()
	fs.acls[1] = []store.ACLRule{{TopicFilter: "school/demo", CanPublish: false, CanSubscribe: true}}
	e := NewEvaluator(fs, nil)

	allowed, err := e.CanPublish(context.Background(), 1, "school/demo")
	require.NoError(t, err)
	assert.False(t, allowed)
}

type fakeCache struct {
	entries map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]bool{}}
}

func (c *fakeCache) key(userID int64, topic, op string) string {
	return op + ":" + topic
}

func (c *fakeCache) Get(ctx context.Context, userID int64, topic, op string) (bool, bool) {
	v, ok := c.entries[c.key(userID, topic, op)]
	return v, ok
}

func (c *fakeCache) Set(ctx context.Context, userID int64, topic, op string, allowed bool) {
	c.entries[c.key(userID, topic, op)] = allowed
}

func TestEvaluator_CanPublish_UsesCacheWhenPresent(t *testing.T) {
	fs := newFakeStore()
	cache := newFakeCache()
	e := NewEvaluator(fs, cache)

	cache.Set(context.Background(), 1, "school/demo", "publish", true)

	allowed, err := e.CanPublish(context.Background(), 1, "school/demo")
	require.NoError(t, err)
	assert.True(t, allowed, "cached verdict should win even with no matching ACL rule in the store")
}
