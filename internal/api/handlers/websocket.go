package handlers

import (
	"net/http"

	"github.com/anonchat/anonchat-backend/internal/api/middleware"
	"github.com/anonchat/anonchat-backend/internal/websocket"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	hub *websocket.Hub
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// HandleWebSocket 매칭/상대 이탈 알림을 받는 WebSocket 엔드포인트
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	personaID := middleware.PersonaID(c)
	if personaID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	websocket.ServeWs(h.hub, c.Writer, c.Request, personaID)
}
