package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database (비어 있으면 대화 기록 비활성화)
	DatabaseURL string

	// Redis
	RedisURL       string
	RedisKeyPrefix string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	StaleAfter            time.Duration
	ClaimAttempts         int
	SweepInterval         time.Duration
	ConversationRetention time.Duration
	MaxInterests          int
	MaxInterestLength     int

	// Rate limit (joinQueue/skip, persona 단위)
	QueueRateLimit  int
	QueueRateWindow time.Duration
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   getEnv("ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisKeyPrefix:        getEnv("REDIS_KEY_PREFIX", "anonchat"),
		JWTSecret:             getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:         parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		CORSAllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		StaleAfter:            parseDuration(getEnv("MATCH_STALE_AFTER", "2m"), 2*time.Minute),
		ClaimAttempts:         parseInt(getEnv("MATCH_CLAIM_ATTEMPTS", "3"), 3),
		SweepInterval:         parseDuration(getEnv("MATCH_SWEEP_INTERVAL", "15s"), 15*time.Second),
		ConversationRetention: parseDuration(getEnv("CONVERSATION_RETENTION", "24h"), 24*time.Hour),
		MaxInterests:          parseInt(getEnv("MATCH_MAX_INTERESTS", "5"), 5),
		MaxInterestLength:     parseInt(getEnv("MATCH_MAX_INTEREST_LENGTH", "20"), 20),
		QueueRateLimit:        parseInt(getEnv("QUEUE_RATE_LIMIT", "30"), 30),
		QueueRateWindow:       parseDuration(getEnv("QUEUE_RATE_WINDOW", "1m"), time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 매칭 정책 값 검증
func (c *Config) Validate() error {
	switch {
	case c.StaleAfter <= 0:
		return fmt.Errorf("MATCH_STALE_AFTER must be positive")
	case c.ClaimAttempts <= 0:
		return fmt.Errorf("MATCH_CLAIM_ATTEMPTS must be positive")
	case c.SweepInterval <= 0:
		return fmt.Errorf("MATCH_SWEEP_INTERVAL must be positive")
	case c.MaxInterests <= 0:
		return fmt.Errorf("MATCH_MAX_INTERESTS must be positive")
	case c.MaxInterestLength <= 0:
		return fmt.Errorf("MATCH_MAX_INTEREST_LENGTH must be positive")
	case c.QueueRateLimit <= 0 || c.QueueRateWindow <= 0:
		return fmt.Errorf("QUEUE_RATE_LIMIT and QUEUE_RATE_WINDOW must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
