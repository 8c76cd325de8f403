package models

import "time"

// User represents an account whose subscription fields gate chat access.
// Rows are provisioned by the auth service; this service only reads them.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email string `gorm:"type:text;not null;uniqueIndex"` // Login email.
	Name  string `gorm:"type:text"`                      // Display name.

	IsPaid    bool       `gorm:"not null;default:false"` // Paid tier flag.
	PaidUntil *time.Time // Subscription expiry, if paid.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// PaidAt reports whether the user has an active subscription at the given time.
func (u *User) PaidAt(now time.Time) bool {
	if u == nil || !u.IsPaid {
		return false
	}
	if u.PaidUntil == nil {
		return true
	}
	return u.PaidUntil.After(now)
}
