package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Trims the sorted set to the window, then admits the request if there is room.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) >= limit then
	return 0
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return 1
`)

// Redis is a sliding window shared by every gateway replica.
type Redis struct {
	client redis.Scripter
	now    func() time.Time
	window time.Duration
	limit  int
}

var _ Limiter = (*Redis)(nil)

func NewRedis(client redis.Scripter, window time.Duration, limit int) *Redis {
	return &Redis{client: client, now: time.Now, window: window, limit: limit}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	res, err := slidingWindowScript.Run(ctx, r.client, []string{keyPrefix + key},
		now.UnixMilli(), r.window.Milliseconds(), r.limit, member).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window script: %w", err)
	}

	return res == 1, nil
}
