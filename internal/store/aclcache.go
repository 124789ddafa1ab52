package store

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// aclCacheTTL bounds how long a cached verdict survives before the
// evaluator falls back to SQL again, so a revoked ACL rule converges
// without an explicit invalidation path.
const aclCacheTTL = 30 * time.Second

// ACLCache is an optional Redis-backed cache for can_subscribe/
// can_publish verdicts, keyed by "acl:user_id:op:topic". It exists purely to
// keep the hot path off SQL for deployments with a large ACL table; the
// evaluator works identically, only slower, with cache == nil.
type ACLCache struct {
	client *redis.Client
}

// NewACLCache connects to a Redis instance at addr. A failed initial
// ping is returned as an error so callers can decide whether to run
// without a cache rather than silently degrade.
func NewACLCache(addr, password string, db int) (*ACLCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "aclcache: connect to redis")
	}
	return &ACLCache{client: client}, nil
}

func cacheKey(userID int64, topic, op string) string {
	return "acl:" + strconv.FormatInt(userID, 10) + ":" + op + ":" + topic
}

// Get returns a cached verdict for (userID, topic, op), and whether one
// was found.
func (c *ACLCache) Get(ctx context.Context, userID int64, topic, op string) (allowed bool, found bool) {
	val, err := c.client.Get(ctx, cacheKey(userID, topic, op)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Set caches a verdict for aclCacheTTL.
func (c *ACLCache) Set(ctx context.Context, userID int64, topic, op string, allowed bool) {
	val := "0"
	if allowed {
		val = "1"
	}
	// Best-effort: a cache write failure must never surface as an ACL
	// evaluation error.
	_ = c.client.Set(ctx, cacheKey(userID, topic, op), val, aclCacheTTL).Err()
}

// Close releases the underlying Redis client.
func (c *ACLCache) Close() error {
	return c.client.Close()
}
