package db

import (
	"fmt"

	"github.com/lexiconlabs/tokengate/internal/models"
	"gorm.io/gorm"
)

// Migrate applies schema migrations for all persisted models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.TokenBalance{},
		&models.AdViewEvent{},
		&models.RequestLog{},
		&models.Conversation{},
		&models.Message{},
	)
}
