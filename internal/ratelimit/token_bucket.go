package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Refill and take run inside one Lua script so concurrent deliveries
// cannot double-spend a token.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens)}
`

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed   bool
	Remaining int
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Allow takes one token from the bucket identified by key, refilling at
// rate tokens per second up to burst. A nil bucket allows everything so
// deployments without redis degrade to unlimited.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{Allowed: true, Remaining: burst}, nil
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return Result{}, errors.New("invalid rate limiter arguments")
	}

	ttl := time.Duration(float64(burst)/rate) * 2 * time.Second
	if ttl < time.Minute {
		ttl = time.Minute
	}

	res, err := t.script.Run(
		ctx,
		t.client,
		[]string{key},
		rate,
		burst,
		int64(ttl/time.Millisecond),
	).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("unexpected rate limiter script response")
	}

	allowed, _ := res[0].(int64)
	remaining := 0
	if raw, ok := res[1].(string); ok {
		if tokens, parseErr := strconv.ParseFloat(raw, 64); parseErr == nil {
			remaining = int(tokens)
		}
	}
	return Result{Allowed: allowed == 1, Remaining: remaining}, nil
}
