package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiconlabs/tokengate/internal/store"
	log "github.com/sirupsen/logrus"
)

// ConversationHandler serves conversation history.
type ConversationHandler struct {
	convos *store.ConversationStore
}

// NewConversationHandler constructs a ConversationHandler.
func NewConversationHandler(convos *store.ConversationStore) *ConversationHandler {
	return &ConversationHandler{convos: convos}
}

// historyMessageDTO defines one message pair in the history payload.
type historyMessageDTO struct {
	User      string    `json:"user"`
	Bot       string    `json:"bot"`
	Timestamp time.Time `json:"timestamp"`
}

// Messages returns a conversation's messages in chronological order.
func (h *ConversationHandler) Messages(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conversationID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || conversationID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	rows, errList := h.convos.Messages(c.Request.Context(), userID, conversationID)
	if errList != nil {
		if errors.Is(errList, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		log.WithError(errList).Error("list conversation messages failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	messages := make([]historyMessageDTO, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, historyMessageDTO{
			User:      row.UserText,
			Bot:       row.BotText,
			Timestamp: row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": conversationID, "messages": messages})
}
