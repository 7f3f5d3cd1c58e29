// Package redisstore holds the redis-backed shared state: the rate-limit
// counters mutated by concurrent stateless handler instances.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syllabi/chat-platform/internal/ratelimit"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// checkAndIncrScript checks both window counters against their caps and
// increments them only when the request is admitted. Running as a single
// Lua script makes the check-then-increment atomic: M concurrent requests
// at the limit boundary admit exactly limit of them.
var checkAndIncrScript = redis.NewScript(`
local hc = tonumber(redis.call('GET', KEYS[1]) or '0')
local dc = tonumber(redis.call('GET', KEYS[2]) or '0')
local hl = tonumber(ARGV[1])
local dl = tonumber(ARGV[2])
if hl > 0 and hc >= hl then
  return {0, 'hour', hc, dc}
end
if dl > 0 and dc >= dl then
  return {0, 'day', hc, dc}
end
hc = redis.call('INCR', KEYS[1])
if hc == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[3])
end
dc = redis.call('INCR', KEYS[2])
if dc == 1 then
  redis.call('EXPIRE', KEYS[2], ARGV[4])
end
return {1, '', hc, dc}
`)

func (s *Store) CheckAndIncr(ctx context.Context, hourKey, dayKey string, hourLimit, dayLimit int, hourTTL, dayTTL time.Duration) (ratelimit.StoreResult, error) {
	var res ratelimit.StoreResult

	raw, err := checkAndIncrScript.Run(ctx, s.rdb,
		[]string{hourKey, dayKey},
		hourLimit, dayLimit,
		int(hourTTL.Seconds())+1, int(dayTTL.Seconds())+1,
	).Result()
	if err != nil {
		return res, err
	}

	arr, ok := raw.([]any)
	if !ok || len(arr) != 4 {
		return res, errors.New("redisstore: unexpected script reply")
	}

	allowed, _ := arr[0].(int64)
	limitType, _ := arr[1].(string)
	hourCount, _ := arr[2].(int64)
	dayCount, _ := arr[3].(int64)

	res.Allowed = allowed == 1
	res.LimitType = limitType
	res.HourCount = int(hourCount)
	res.DayCount = int(dayCount)
	return res, nil
}
