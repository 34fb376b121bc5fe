package throttle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes expired members, then either records the call
// and returns 0 or returns the milliseconds until the oldest call expires.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return 0
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = window - (now - tonumber(oldest[2]))
if wait < 1 then
  wait = 1
end
return wait
`)

// RedisWindow is a sliding-window limiter whose call history lives in Redis,
// so every process sharing the key shares one budget. When Redis is
// unreachable it degrades to its local Window.
type RedisWindow struct {
	client   redis.Scripter
	key      string
	limit    int
	window   time.Duration
	buffer   time.Duration
	timeout  time.Duration
	fallback *Window
	logger   *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRedisWindow builds a Redis-backed limiter on the given key.
func NewRedisWindow(client redis.Scripter, key string, limit int, window, buffer time.Duration, logger *slog.Logger) *RedisWindow {
	local := NewWindow(limit, window, buffer)
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisWindow{
		client:   client,
		key:      key,
		limit:    local.limit,
		window:   local.window,
		buffer:   local.buffer,
		timeout:  250 * time.Millisecond,
		fallback: local,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Execute waits for a free slot in the shared window and runs fn.
func (rw *RedisWindow) Execute(ctx context.Context, fn func(context.Context) error) error {
	for {
		wait, err := rw.reserve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rw.logger.Warn("redis rate limiter unavailable, using local window", "key", rw.key, "error", err)
			return rw.fallback.Execute(ctx, fn)
		}
		if wait == 0 {
			return fn(ctx)
		}
		if err := rw.sleep(ctx, wait+rw.buffer); err != nil {
			return err
		}
	}
}

func (rw *RedisWindow) reserve(ctx context.Context) (time.Duration, error) {
	opCtx, cancel := context.WithTimeout(ctx, rw.timeout)
	defer cancel()

	nowMS := rw.now().UnixMilli()
	res, err := slidingWindowScript.Run(opCtx, rw.client, []string{rw.key},
		nowMS, rw.window.Milliseconds(), rw.limit, uuid.NewString()).Int64()
	if err != nil {
		return 0, err
	}
	return time.Duration(res) * time.Millisecond, nil
}
