package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/anonchat/anonchat-backend/pkg/logger"
	"github.com/anonchat/anonchat-backend/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// PersonaKeyFunc 인증된 페르소나 기준, 없으면 IP 기준
func PersonaKeyFunc(c *gin.Context) string {
	if personaID := PersonaID(c); personaID != "" {
		return fmt.Sprintf("persona:%s", personaID)
	}
	return IPKeyFunc(c)
}

// IPKeyFunc IP 주소 기준 (인증 전 엔드포인트용)
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimit Redis 기반 분산 Rate Limiting 미들웨어.
// Redis 오류 시에는 요청을 통과시킨다 (fail-open).
func RateLimit(limiter *ratelimit.RedisRateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = PersonaKeyFunc
	}

	return func(c *gin.Context) {
		key := keyFunc(c)

		allowed, info, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))

		if !allowed {
			retryAfter := int(math.Ceil(info.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
