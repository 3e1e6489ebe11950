package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonchat/anonchat-backend/internal/api"
	"github.com/anonchat/anonchat-backend/internal/config"
	"github.com/anonchat/anonchat-backend/internal/repository"
	"github.com/anonchat/anonchat-backend/internal/service"
	"github.com/anonchat/anonchat-backend/internal/websocket"
	"github.com/anonchat/anonchat-backend/pkg/database"
	"github.com/anonchat/anonchat-backend/pkg/distributed"
	"github.com/anonchat/anonchat-backend/pkg/logger"
	"github.com/anonchat/anonchat-backend/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting AnonChat Backend",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Redis 연결 (대기 풀 + 활성 대화)
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid REDIS_URL", "error", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	cancelPing()
	logger.Info("Redis connection established", "key_prefix", cfg.RedisKeyPrefix)

	keys := repository.NewKeyspace(cfg.RedisKeyPrefix)
	poolRepo := repository.NewWaitingPoolRepository(redisClient, keys)
	conversationRepo := repository.NewConversationRepository(redisClient, keys, cfg.ConversationRetention)

	// 인스턴스 간 대화 이벤트
	eventBus := distributed.NewEventBus(redisClient, keys.Events(), logger.L())

	conversationService := service.NewConversationService(
		conversationRepo,
		service.NewEventNotifier(eventBus),
		logger.L(),
	)

	// 대화 기록 (선택)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		archiveRepo := repository.NewConversationArchiveRepository(db)
		if err := archiveRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare conversation archive", "error", err)
		}
		conversationService.AttachArchive(archiveRepo)
		logger.Info("Conversation archive enabled")
	} else {
		logger.Info("DATABASE_URL not set, conversation archive disabled")
	}

	matchmakingService := service.NewMatchmakingService(
		poolRepo,
		conversationService,
		service.MatchmakingConfig{
			StaleAfter:    cfg.StaleAfter,
			ClaimAttempts: cfg.ClaimAttempts,
			Interests: service.InterestPolicy{
				MaxTags:   cfg.MaxInterests,
				MaxLength: cfg.MaxInterestLength,
			},
		},
		logger.L(),
	)

	// 만료된 대기 엔트리 정리 (인스턴스 간 분산 락)
	sweeper := service.NewSweeper(matchmakingService, cfg.SweepInterval, logger.L())
	sweeper.AttachLock(distributed.NewRedisLockManager(redisClient), keys.SweepLock())
	sweeper.Start()
	defer sweeper.Stop()

	// WebSocket Hub. 연결이 끊기면 대기열과 대화에서 정리한다.
	hub := websocket.NewHub(cfg.CORSAllowedOrigins, logger.L())
	hub.OnDisconnect(func(personaID string) {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := matchmakingService.Leave(leaveCtx, personaID); err != nil {
			logger.Warn("Failed to clean up after disconnect", "persona_id", personaID, "error", err)
		}
	})
	go hub.Run(ctx)

	go func() {
		if err := eventBus.Start(ctx, hub.HandleChatEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Chat event bus stopped", "error", err)
		}
	}()

	queueLimiter := ratelimit.NewRedisRateLimiter(redisClient, ratelimit.Config{
		KeyPrefix: keys.RateLimitPrefix(),
		Limit:     cfg.QueueRateLimit,
		Window:    cfg.QueueRateWindow,
	})

	router := api.SetupRouter(cfg, api.Dependencies{
		Redis:         redisClient,
		Matchmaking:   matchmakingService,
		Conversations: conversationService,
		Hub:           hub,
		QueueLimiter:  queueLimiter,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 10초 타임아웃으로 종료
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Hub / 이벤트 버스 종료
	stop()

	logger.Info("Server exited")
}
