package models

import "time"

// TokenBalance stores the token balance for one (user, model) pair.
// Rows are created lazily on first interaction with the configured starting
// grant and are never deleted. The balance is never negative; concurrent
// mutations are serialized through the Version column.
type TokenBalance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;uniqueIndex:idx_token_balances_user_model,priority:1"`       // Owning user ID.
	ModelID string `gorm:"type:text;not null;uniqueIndex:idx_token_balances_user_model,priority:2"` // Model identifier.

	Balance int64 `gorm:"not null;default:0"` // Current token balance, >= 0.
	Version int64 `gorm:"not null;default:0"` // Optimistic concurrency counter.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (TokenBalance) TableName() string {
	return "token_balances"
}
