package api

import (
	"github.com/anonchat/anonchat-backend/internal/api/handlers"
	"github.com/anonchat/anonchat-backend/internal/api/middleware"
	"github.com/anonchat/anonchat-backend/internal/config"
	"github.com/anonchat/anonchat-backend/internal/service"
	"github.com/anonchat/anonchat-backend/internal/websocket"
	jwtutil "github.com/anonchat/anonchat-backend/pkg/jwt"
	"github.com/anonchat/anonchat-backend/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Dependencies 라우터가 사용하는 서비스 묶음 (cmd/server에서 생성)
type Dependencies struct {
	Redis         *redis.Client
	Matchmaking   *service.MatchmakingService
	Conversations *service.ConversationService
	Hub           *websocket.Hub
	QueueLimiter  *ratelimit.RedisRateLimiter
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	jwtManager := jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)

	// Handler 초기화
	healthHandler := handlers.NewHealthHandler(deps.Redis)
	anonHandler := handlers.NewAnonChatHandler(deps.Matchmaking, deps.Conversations)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub)

	// Health check
	router.GET("/health", healthHandler.Check)

	// API v1
	v1 := router.Group("/api/v1")
	{
		anon := v1.Group("/anon")
		anon.Use(middleware.Auth(jwtManager))
		{
			// joinQueue/skip은 페르소나 단위로 제한
			limited := anon.Group("")
			if deps.QueueLimiter != nil {
				limited.Use(middleware.RateLimit(deps.QueueLimiter, middleware.PersonaKeyFunc))
			}
			limited.POST("/queue", anonHandler.JoinQueue)
			limited.POST("/skip", anonHandler.Skip)

			anon.POST("/leave", anonHandler.Leave)
			anon.GET("/status", anonHandler.GetStatus)
			anon.GET("/queue/:interest/size", anonHandler.GetQueueSize)
			anon.GET("/conversations/:id", anonHandler.GetConversation)
			anon.GET("/interests/popular", anonHandler.GetPopularInterests)

			// WebSocket (match_found / partner_left 푸시)
			anon.GET("/ws", wsHandler.HandleWebSocket)
		}
	}

	return router
}
