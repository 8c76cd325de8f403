package models

import (
	"time"

	"gorm.io/datatypes"
)

// Request outcomes recorded per chat attempt.
const (
	// RequestOutcomeOK marks a completed chat request.
	RequestOutcomeOK = "ok"
	// RequestOutcomeDenied marks a request denied for insufficient tokens.
	RequestOutcomeDenied = "denied"
	// RequestOutcomeUnknownModel marks a request for an unconfigured model.
	RequestOutcomeUnknownModel = "unknown_model"
	// RequestOutcomeProviderError marks an upstream provider failure.
	RequestOutcomeProviderError = "provider_error"
)

// RequestLog records metering data for a single chat request.
type RequestLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;index"`           // Requesting user ID.
	ModelID string `gorm:"type:text;not null;index"` // Requested model.

	Outcome string `gorm:"type:text;not null;index"` // Request outcome marker.
	Paid    bool   `gorm:"not null;default:false"`   // Whether the paid tier applied.

	CostTokens    int64 `gorm:"not null;default:0"` // Configured per-message cost.
	ChargedTokens int64 `gorm:"not null;default:0"` // Tokens actually consumed after refunds.

	ErrorDetail datatypes.JSON `gorm:"type:jsonb"` // Structured error detail JSON.

	RequestedAt time.Time `gorm:"not null;index"` // Request timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (RequestLog) TableName() string {
	return "request_logs"
}
