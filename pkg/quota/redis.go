package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces quota counters.
const RedisKeyPrefix = "football:quota"

// allowScript checks every counter against its cap and, only when all pass,
// increments them. KEYS are the counters; ARGV holds (cap, expireat) pairs.
// Returns {0, index} on denial or {1, count1, count2, ...} on admission.
var allowScript = redis.NewScript(`
for i = 1, #KEYS do
	local count = tonumber(redis.call('GET', KEYS[i]) or '0')
	if count >= tonumber(ARGV[2 * i - 1]) then
		return {0, i}
	end
end
local result = {1}
for i = 1, #KEYS do
	local count = redis.call('INCR', KEYS[i])
	if count == 1 then
		redis.call('EXPIREAT', KEYS[i], ARGV[2 * i])
	end
	result[i + 1] = count
end
return result
`)

// RedisLimiter is a Limiter shared by every gateway process using the same
// Redis. Counters expire at the end of their window.
type RedisLimiter struct {
	redis  *redis.Client
	limits []Limit
	now    func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter enforcing limits in order.
func NewRedisLimiter(redisClient *redis.Client, limits []Limit) *RedisLimiter {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisLimiter{
		redis:  redisClient,
		limits: append([]Limit(nil), limits...),
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, caller string) (Decision, error) {
	if len(l.limits) == 0 {
		return Decision{Allowed: true}, nil
	}

	now := l.now()
	keys := make([]string, len(l.limits))
	args := make([]any, 0, 2*len(l.limits))
	for i, lim := range l.limits {
		keys[i] = counterKey(lim.Window, now, caller)
		args = append(args, lim.Max, lim.Window.End(now).Unix())
	}

	res, err := allowScript.Run(ctx, l.redis, keys, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("quota script: %w", err)
	}
	if len(res) < 2 {
		return Decision{}, fmt.Errorf("quota script: unexpected reply %v", res)
	}

	if res[0] == 0 {
		lim := l.limits[res[1]-1]
		d := Decision{
			Window:  lim.Window,
			Limit:   lim.Max,
			ResetAt: lim.Window.End(now),
		}
		observeDecision(d)
		return d, nil
	}

	d := Decision{Allowed: true, Remaining: -1}
	for i, lim := range l.limits {
		remaining := lim.Max - int(res[i+1])
		if remaining < 0 {
			remaining = 0
		}
		if d.Remaining < 0 || remaining < d.Remaining {
			d.Window = lim.Window
			d.Limit = lim.Max
			d.Remaining = remaining
			d.ResetAt = lim.Window.End(now)
		}
	}

	observeDecision(d)
	return d, nil
}

// counterKey names the counter for caller in the window containing now.
// Format: football:quota:hourly:1726311600:203.0.113.7
func counterKey(w Window, now time.Time, caller string) string {
	return RedisKeyPrefix + ":" + w.String() + ":" + strconv.FormatInt(w.Start(now).Unix(), 10) + ":" + caller
}
