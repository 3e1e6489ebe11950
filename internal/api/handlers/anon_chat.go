package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/anonchat/anonchat-backend/internal/api/middleware"
	"github.com/anonchat/anonchat-backend/internal/models"
	"github.com/anonchat/anonchat-backend/internal/service"
	"github.com/anonchat/anonchat-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

type AnonChatHandler struct {
	matchmaking   *service.MatchmakingService
	conversations *service.ConversationService
}

func NewAnonChatHandler(matchmaking *service.MatchmakingService, conversations *service.ConversationService) *AnonChatHandler {
	return &AnonChatHandler{
		matchmaking:   matchmaking,
		conversations: conversations,
	}
}

// JoinQueue 관심사로 대기열 참가 (즉시 매칭되거나 대기)
func (h *AnonChatHandler) JoinQueue(c *gin.Context) {
	var req models.JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	result, err := h.matchmaking.JoinQueue(c.Request.Context(), middleware.PersonaID(c), req.Interests)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResponse(result))
}

// Skip 현재 대화를 끝내고 다시 매칭
func (h *AnonChatHandler) Skip(c *gin.Context) {
	var req models.SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	result, err := h.matchmaking.Skip(c.Request.Context(), middleware.PersonaID(c), req.Interests, req.ConversationID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResponse(result))
}

// Leave 대기열과 현재 대화에서 모두 나가기
func (h *AnonChatHandler) Leave(c *gin.Context) {
	if err := h.matchmaking.Leave(c.Request.Context(), middleware.PersonaID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetStatus 현재 상태 (idle / queued / matched)
func (h *AnonChatHandler) GetStatus(c *gin.Context) {
	status, err := h.matchmaking.Status(c.Request.Context(), middleware.PersonaID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetQueueSize 관심사별 대기 인원
func (h *AnonChatHandler) GetQueueSize(c *gin.Context) {
	interest := c.Param("interest")

	size, err := h.matchmaking.QueueSize(c.Request.Context(), interest)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interest": interest,
		"size":     size,
	})
}

// GetConversation 참여 중이거나 참여했던 대화 조회
func (h *AnonChatHandler) GetConversation(c *gin.Context) {
	conv, err := h.conversations.GetForParticipant(c.Request.Context(), c.Param("id"), middleware.PersonaID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
	})
}

// GetPopularInterests 누적 대화 수 기준 인기 관심사
func (h *AnonChatHandler) GetPopularInterests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	counts, err := h.conversations.PopularInterests(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interests": counts,
	})
}

func matchResponse(result *models.MatchResult) gin.H {
	if result.Status == models.MatchStatusMatched {
		return gin.H{
			"status":         result.Status,
			"conversationId": result.Conversation.ID,
			"sharedInterest": result.Conversation.SharedInterest,
		}
	}
	return gin.H{
		"status":     result.Status,
		"interests":  result.Entry.Interests,
		"enqueuedAt": result.Entry.EnqueuedAt,
	}
}

// respondError 서비스 에러를 HTTP 상태 코드로 변환
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInterests):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_INTERESTS"})
	case errors.Is(err, service.ErrMissingUser):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	case errors.Is(err, service.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "ALREADY_QUEUED"})
	case errors.Is(err, service.ErrAlreadyInConversation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "ALREADY_IN_CONVERSATION"})
	case errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "NOT_PARTICIPANT"})
	case errors.Is(err, service.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found", "code": "NOT_FOUND"})
	case errors.Is(err, service.ErrStoreUnavailable):
		logger.Warn("Matchmaking store unavailable", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Matchmaking is temporarily unavailable, please try again",
			"code":  "STORE_UNAVAILABLE",
			"retry": true,
		})
	default:
		logger.Error("Unhandled matchmaking error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
