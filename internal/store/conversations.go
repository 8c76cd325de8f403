// Package store persists conversations and messages. The guard treats it as
// a collaborator: it only needs AppendExchange to record a completed
// prompt/reply pair.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lexiconlabs/tokengate/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound indicates the conversation does not exist or belongs to
// another user.
var ErrNotFound = errors.New("store: conversation not found")

// titleMaxLen bounds conversation titles derived from the first prompt.
const titleMaxLen = 80

// ConversationStore persists chat history.
type ConversationStore struct {
	db *gorm.DB
}

// NewConversationStore constructs a ConversationStore.
func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// AppendExchange records one prompt/reply pair. When conversationID is zero
// a new conversation is created, titled from the prompt. The conversation
// and message are written in one transaction.
func (s *ConversationStore) AppendExchange(ctx context.Context, userID uint64, conversationID uint64, modelID, prompt, reply string) (*models.Message, uint64, error) {
	var message models.Message
	var convoID uint64

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if conversationID == 0 {
			convo := models.Conversation{
				UserID: userID,
				Title:  deriveTitle(prompt),
				Model:  modelID,
			}
			if errCreate := tx.Create(&convo).Error; errCreate != nil {
				return fmt.Errorf("store: create conversation: %w", errCreate)
			}
			convoID = convo.ID
		} else {
			var convo models.Conversation
			if errFind := tx.
				Where("id = ? AND user_id = ?", conversationID, userID).
				First(&convo).Error; errFind != nil {
				if errors.Is(errFind, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return fmt.Errorf("store: find conversation: %w", errFind)
			}
			convoID = convo.ID
		}

		message = models.Message{
			ConversationID: convoID,
			UserText:       prompt,
			BotText:        reply,
		}
		if errCreate := tx.Create(&message).Error; errCreate != nil {
			return fmt.Errorf("store: create message: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, 0, errTx
	}
	return &message, convoID, nil
}

// EnsureOwned verifies the conversation exists and belongs to the user.
func (s *ConversationStore) EnsureOwned(ctx context.Context, userID, conversationID uint64) error {
	var convo models.Conversation
	if errFind := s.db.WithContext(ctx).
		Select("id").
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&convo).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("store: find conversation: %w", errFind)
	}
	return nil
}

// Messages returns a conversation's messages in chronological order.
func (s *ConversationStore) Messages(ctx context.Context, userID, conversationID uint64) ([]models.Message, error) {
	var convo models.Conversation
	if errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&convo).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: find conversation: %w", errFind)
	}

	var rows []models.Message
	if errList := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&rows).Error; errList != nil {
		return nil, fmt.Errorf("store: list messages: %w", errList)
	}
	return rows, nil
}

// deriveTitle produces a short title from the first prompt.
func deriveTitle(prompt string) string {
	title := strings.TrimSpace(prompt)
	if len(title) > titleMaxLen {
		title = title[:titleMaxLen]
	}
	return title
}
