package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry bumps the window counter and arms its expiry in one
// round trip, so a crashed client can never leave a counter behind
// without a TTL.
var incrWithExpiry = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

const redisOpTimeout = 2 * time.Second

// FixedWindowLimiter counts requests per key in fixed windows backed by
// Redis, so the quota holds across replicas. A nil limiter rejects
// everything; callers that want rate limiting disabled skip the check
// instead of calling Allow.
type FixedWindowLimiter struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisFixedWindowLimiter connects to Redis at addr and enforces
// limit requests per window for each key.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "studylm:ratelimit"
	}
	return &FixedWindowLimiter{
		rdb:    redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}, nil
}

// Allow reports whether key has quota left in the current window.
// Redis errors count against the caller: the limiter fails closed.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	count, err := incrWithExpiry.Run(ctx, l.rdb, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return count <= l.limit
}
