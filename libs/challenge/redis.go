package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "syshub:sms:"

// verifyScript returns 1 on match, 0 on mismatch, -1 when nothing is pending
// and -2 once the attempt budget is spent (the challenge is dropped then).
var verifyScript = redis.NewScript(`
local code = redis.call("HGET", KEYS[1], "code")
if not code then
  return -1
end
if code == ARGV[1] then
  return 1
end
local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
if attempts >= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return -2
end
return 0
`)

type RedisStore struct {
	client      *redis.Client
	prefix      string
	ttl         time.Duration
	maxAttempts int
	codes       CodeGenerator
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, maxAttempts int) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, maxAttempts: maxAttempts, codes: RandomCodes{}}
}

func (s *RedisStore) WithCodes(gen CodeGenerator) *RedisStore {
	s.codes = gen
	return s
}

func (s *RedisStore) Issue(ctx context.Context, userID string) (string, error) {
	code, err := s.codes.Code()
	if err != nil {
		return "", err
	}

	key := s.prefix + userID
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "code", code, "attempts", 0)
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return code, nil
}

func (s *RedisStore) Verify(ctx context.Context, userID, code string) (bool, error) {
	res, err := verifyScript.Run(ctx, s.client, []string{s.prefix + userID}, code, s.maxAttempts).Int64()
	if err != nil {
		return false, fmt.Errorf("verify challenge: %w", err)
	}

	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	case -1:
		return false, ErrNoChallenge
	case -2:
		return false, ErrTooManyAttempts
	default:
		return false, fmt.Errorf("unexpected redis response %d", res)
	}
}
