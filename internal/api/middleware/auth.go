package middleware

import (
	"net/http"
	"strings"

	jwtutil "github.com/anonchat/anonchat-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
)

// ContextPersonaID 인증된 익명 페르소나 ID의 gin context 키
const ContextPersonaID = "personaId"

// Auth JWT 인증 미들웨어.
// 브라우저 WebSocket은 헤더를 붙일 수 없으므로 token 쿼리 파라미터도 허용한다.
func Auth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		// 토큰 검증
		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(ContextPersonaID, claims.PersonaID)
		c.Next()
	}
}

// "Bearer <token>" 형식 파싱
func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// PersonaID 인증 미들웨어가 저장한 페르소나 ID
func PersonaID(c *gin.Context) string {
	return c.GetString(ContextPersonaID)
}
