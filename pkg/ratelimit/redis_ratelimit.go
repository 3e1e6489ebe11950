package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token Bucket: 토큰 수와 마지막 리필 시각(ms)을 Hash 하나에 저장
var tokenBucketScript = redis.NewScript(`
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
	local last = tonumber(redis.call('HGET', KEYS[1], 'ts'))
	if tokens == nil or last == nil then
		tokens = limit
		last = now
	end

	local elapsed = math.max(0, now - last)
	tokens = math.min(limit, tokens + elapsed * limit / window)

	local allowed = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
	redis.call('PEXPIRE', KEYS[1], window * 2)

	local wait = 0
	if tokens < 1 then
		wait = math.ceil((1 - tokens) * window / limit)
	end
	return {allowed, math.floor(tokens), wait}
`)

// Config Rate Limiter 설정
type Config struct {
	KeyPrefix string        // 키 접두사 (예: "anonchat:ratelimit:")
	Limit     int           // 윈도우당 최대 요청 수
	Window    time.Duration // 윈도우 크기
}

// RedisRateLimiter Redis 기반 분산 Rate Limiter (Token Bucket 알고리즘).
// 모든 서버 인스턴스가 같은 버킷을 공유한다.
type RedisRateLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

// NewRedisRateLimiter 기존 Redis 클라이언트로 Rate Limiter 생성
func NewRedisRateLimiter(client *redis.Client, config Config) *RedisRateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ratelimit:"
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return &RedisRateLimiter{
		client:    client,
		keyPrefix: config.KeyPrefix,
		limit:     config.Limit,
		window:    config.Window,
		now:       time.Now,
	}
}

// Allow 토큰 하나를 소비할 수 있으면 true.
// key: Rate Limit 대상 식별자 (예: personaID)
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, *RateLimitInfo, error) {
	now := r.now()

	result, err := tokenBucketScript.Run(ctx, r.client, []string{r.keyPrefix + key},
		r.limit,
		r.window.Milliseconds(),
		now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return false, nil, fmt.Errorf("redis script execution failed: %w", err)
	}
	if len(result) < 3 {
		return false, nil, fmt.Errorf("invalid script result")
	}

	info := &RateLimitInfo{
		Limit:      r.limit,
		Remaining:  int(result[1]),
		RetryAfter: time.Duration(result[2]) * time.Millisecond,
	}
	return result[0] == 1, info, nil
}

// Reset 특정 키의 Rate Limit 초기화
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

// RateLimitInfo Rate Limit 상세 정보
type RateLimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
}
