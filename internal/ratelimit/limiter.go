// Package ratelimit implements the Rate Limiter (RL): a distributed
// token bucket over Redis, checked once per submission across the
// user, IP, and global scopes before intake does any other work.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Scope names a token bucket dimension.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeIP     Scope = "ip"
	ScopeGlobal Scope = "global"
)

// Bucket configures one scope's capacity and refill rate.
type Bucket struct {
	Capacity   int
	RefillPerS int
}

// Config is the set of bucket parameters for all three scopes.
type Config struct {
	User   Bucket
	IP     Bucket
	Global Bucket
}

// DefaultConfig matches spec.md §4.1's stated defaults.
func DefaultConfig() Config {
	return Config{
		User:   Bucket{Capacity: 10, RefillPerS: 1},
		IP:     Bucket{Capacity: 30, RefillPerS: 3},
		Global: Bucket{Capacity: 500, RefillPerS: 50},
	}
}

// tokenBucketScript performs an atomic refill-then-consume against a
// single Redis key holding "tokens:last_refill_unix_ms". Unlike the
// get/pipe/set pattern this replaces, the whole check-and-decrement
// happens inside one EVALSHA round trip so concurrent requests for the
// same key cannot both observe a pre-consumption token count.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_s = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local ttl_s = tonumber(ARGV[4])

local raw = redis.call("GET", key)
local tokens = capacity
local last_refill = now_ms

if raw then
	local sep = string.find(raw, ":")
	tokens = tonumber(string.sub(raw, 1, sep - 1))
	last_refill = tonumber(string.sub(raw, sep + 1))
end

local elapsed_s = (now_ms - last_refill) / 1000.0
if elapsed_s > 0 then
	tokens = math.min(capacity, tokens + elapsed_s * refill_per_s)
	last_refill = now_ms
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("SET", key, string.format("%f:%d", tokens, last_refill), "EX", ttl_s)
return {allowed, tokens}
`)

// Limiter checks and consumes tokens across the configured scopes.
type Limiter struct {
	client *redis.Client
	logger *zap.Logger
	cfg    Config
}

// New builds a Limiter backed by client.
func New(client *redis.Client, logger *zap.Logger, cfg Config) *Limiter {
	return &Limiter{client: client, logger: logger, cfg: cfg}
}

// Decision reports which scope (if any) rejected the request.
type Decision struct {
	Allowed    bool
	Scope      Scope
	RetryAfter time.Duration
}

// Allow checks and, on success, consumes one token from each of the
// user, ip, and global buckets. It checks in that order and returns on
// the first rejection without consuming from buckets not yet reached.
// Per spec.md §4.1, a Redis error fails OPEN: the request is allowed
// and the error is logged, since rate limiting exists to protect
// capacity, not to gate correctness.
func (l *Limiter) Allow(ctx context.Context, userID, ip string) Decision {
	for _, s := range []struct {
		scope Scope
		key   string
		b     Bucket
	}{
		{ScopeUser, fmt.Sprintf("ratelimit:user:%s", userID), l.cfg.User},
		{ScopeIP, fmt.Sprintf("ratelimit:ip:%s", ip), l.cfg.IP},
		{ScopeGlobal, "ratelimit:global", l.cfg.Global},
	} {
		allowed, retryAfter, err := l.consume(ctx, s.key, s.b)
		if err != nil {
			l.logger.Warn("rate limiter store unavailable, failing open",
				zap.String("scope", string(s.scope)), zap.Error(err))
			continue
		}
		if !allowed {
			return Decision{Allowed: false, Scope: s.scope, RetryAfter: retryAfter}
		}
	}
	return Decision{Allowed: true}
}

func (l *Limiter) consume(ctx context.Context, key string, b Bucket) (bool, time.Duration, error) {
	nowMs := time.Now().UnixMilli()
	res, err := tokenBucketScript.Run(ctx, l.client, []string{key}, b.Capacity, b.RefillPerS, nowMs, 120).Result()
	if err != nil {
		return false, 0, fmt.Errorf("token bucket script failed for %s: %w", key, err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected token bucket script result for %s", key)
	}
	allowed, _ := vals[0].(int64)
	if allowed == 1 {
		return true, 0, nil
	}

	var retryAfter time.Duration
	if b.RefillPerS > 0 {
		retryAfter = time.Second / time.Duration(b.RefillPerS)
	} else {
		retryAfter = time.Second
	}
	return false, retryAfter, nil
}

// Reset clears a scope's bucket, used by tests and admin tooling.
func (l *Limiter) Reset(ctx context.Context, scope Scope, id string) error {
	var key string
	switch scope {
	case ScopeGlobal:
		key = "ratelimit:global"
	case ScopeUser:
		key = fmt.Sprintf("ratelimit:user:%s", id)
	case ScopeIP:
		key = fmt.Sprintf("ratelimit:ip:%s", id)
	default:
		return fmt.Errorf("unknown rate limit scope: %s", scope)
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit bucket %s: %w", key, err)
	}
	return nil
}
