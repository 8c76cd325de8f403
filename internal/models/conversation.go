package models

import "time"

// Conversation groups chat messages for one user.
type Conversation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`     // Owning user ID.
	Title  string `gorm:"type:text"`          // Display title, usually the first prompt.
	Model  string `gorm:"type:text;not null"` // Model used by the conversation.

	Messages []Message `gorm:"foreignKey:ConversationID"` // Related messages.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Message stores one user prompt and the bot reply produced for it.
type Message struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ConversationID uint64 `gorm:"not null;index"` // Parent conversation ID.

	UserText string `gorm:"type:text;not null"` // User prompt text.
	BotText  string `gorm:"type:text;not null"` // Provider reply text.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
