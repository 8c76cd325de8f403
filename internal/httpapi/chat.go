package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiconlabs/tokengate/internal/defense"
	"github.com/lexiconlabs/tokengate/internal/guard"
	"github.com/lexiconlabs/tokengate/internal/store"
	log "github.com/sirupsen/logrus"
)

// ChatHandler handles the metered chat endpoint.
type ChatHandler struct {
	guard  *guard.Guard
	limits defense.Limits
}

// NewChatHandler constructs a ChatHandler.
func NewChatHandler(g *guard.Guard, limits defense.Limits) *ChatHandler {
	return &ChatHandler{guard: g, limits: limits}
}

// chatRequest defines the request body for a chat message.
type chatRequest struct {
	Model          string `json:"model"`
	Message        string `json:"message"`
	ConversationID uint64 `json:"conversation_id"`
}

// chatMessageDTO defines the message pair in the chat response.
type chatMessageDTO struct {
	User      string    `json:"user"`
	Bot       string    `json:"bot"`
	Timestamp time.Time `json:"timestamp"`
}

// Send authorizes, meters, and forwards one chat message.
func (h *ChatHandler) Send(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body chatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if !defense.Enforce(c, h.limits,
		defense.Field{Name: "model", Value: body.Model},
		defense.Field{Name: "message", Value: body.Message},
	) {
		return
	}

	if body.Model == "" || body.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model and message are required"})
		return
	}

	result, errChat := h.guard.HandleChat(c.Request.Context(), userID, body.Model, body.Message, body.ConversationID)
	if errChat != nil {
		if guard.IsDenial(errChat) {
			log.WithFields(log.Fields{"user": userID, "model": body.Model}).Info("chat denied")
		}
		writeChatError(c, errChat)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": result.ConversationID,
		"charged_tokens":  result.ChargedTokens,
		"message": chatMessageDTO{
			User:      result.UserText,
			Bot:       result.BotText,
			Timestamp: result.Timestamp,
		},
	})
}

// writeChatError maps guard failures onto HTTP responses.
func writeChatError(c *gin.Context, err error) {
	var unknownModel *guard.UnknownModelError
	if errors.As(err, &unknownModel) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown model", "model": unknownModel.ModelID})
		return
	}

	var insufficient *guard.InsufficientTokensError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":    "insufficient tokens",
			"balance":  insufficient.Balance,
			"required": insufficient.Required,
		})
		return
	}

	var providerErr *guard.ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.Timeout {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "provider timeout", "retryable": true})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider error", "retryable": true})
		return
	}

	if errors.Is(err, guard.ErrLedgerConflict) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "busy, retry", "retryable": true})
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	log.WithError(err).Error("chat request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
