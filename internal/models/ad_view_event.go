package models

import (
	"time"

	"gorm.io/datatypes"
)

// AdViewEvent records a completed ad watch that credited a token reward.
// Rows are append-only and exist for duplicate suppression within the
// idempotency window; the retention cleaner prunes older rows.
type AdViewEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;index"`     // Rewarded user ID.
	ModelID string `gorm:"type:text;not null"` // Model the reward was credited to.
	Amount  int64  `gorm:"not null"`           // Credited token amount.

	IdempotencyKey string `gorm:"type:text;not null;uniqueIndex"` // Caller-supplied dedup key.

	Meta datatypes.JSON `gorm:"type:jsonb"` // Optional ad-session metadata.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName overrides the default table name.
func (AdViewEvent) TableName() string {
	return "ad_view_events"
}
