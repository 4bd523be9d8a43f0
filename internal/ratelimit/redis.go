package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript checks both windows and increments both only when both have
// capacity. Runs atomically inside Redis, so concurrent admitters across
// instances cannot double-consume or partially consume.
var consumeScript = redis.NewScript(`
local daily = tonumber(redis.call('GET', KEYS[1]) or '0')
local burst = tonumber(redis.call('GET', KEYS[2]) or '0')
local dailyCap = tonumber(ARGV[1])
local burstCap = tonumber(ARGV[2])
if daily >= dailyCap or burst >= burstCap then
  return {0, dailyCap - daily, burstCap - burst}
end
daily = redis.call('INCR', KEYS[1])
if daily == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
burst = redis.call('INCR', KEYS[2])
if burst == 1 then
  redis.call('PEXPIRE', KEYS[2], ARGV[4])
end
return {1, dailyCap - daily, burstCap - burst}
`)

type redisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore builds the Redis-backed shared counter store.
func NewRedisCounterStore(client *redis.Client) CounterStore {
	return &redisCounterStore{client: client}
}

func (s *redisCounterStore) Consume(ctx context.Context, dailyKey string, dailyCap int, burstKey string, burstCap int, dailyTTL, burstTTL time.Duration) (ConsumeResult, error) {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{dailyKey, burstKey},
		dailyCap, burstCap, dailyTTL.Milliseconds(), burstTTL.Milliseconds()).Slice()
	if err != nil {
		return ConsumeResult{}, err
	}
	if len(res) != 3 {
		return ConsumeResult{}, fmt.Errorf("unexpected script result length %d", len(res))
	}

	allowed, _ := res[0].(int64)
	daily, _ := res[1].(int64)
	burst, _ := res[2].(int64)
	return ConsumeResult{
		Allowed:        allowed == 1,
		RemainingDaily: daily,
		RemainingBurst: burst,
	}, nil
}

func (s *redisCounterStore) Remaining(ctx context.Context, dailyKey string, dailyCap int) (int64, error) {
	used, err := s.client.Get(ctx, dailyKey).Int64()
	if err == redis.Nil {
		return int64(dailyCap), nil
	}
	if err != nil {
		return 0, err
	}
	remaining := int64(dailyCap) - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
