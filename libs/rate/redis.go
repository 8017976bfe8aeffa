package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is shared by every service so a user's code checks are
// counted once across auth and user.
const DefaultPrefix = "syshub:rl:"

// hitScript increments the counter, starts the window on the first hit and
// returns the count with the remaining window in milliseconds.
var hitScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {hits, ttl}
`)

var errBadReply = errors.New("unexpected rate limit reply")

type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	if l.window < time.Millisecond {
		return false, 0, fmt.Errorf("rate window %s too short", l.window)
	}

	reply, err := hitScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(reply) != 2 {
		return false, 0, errBadReply
	}

	hits, ttl := reply[0], time.Duration(reply[1])*time.Millisecond
	if hits > int64(l.limit) {
		return false, ttl, nil
	}
	return true, 0, nil
}
