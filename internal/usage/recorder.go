// Package usage persists per-request metering rows and prunes aged data.
package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lexiconlabs/tokengate/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder writes request log rows.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *gorm.DB) *Recorder { return &Recorder{db: db} }

// Record describes one chat attempt.
type Record struct {
	UserID        uint64
	ModelID       string
	Outcome       string
	Paid          bool
	CostTokens    int64
	ChargedTokens int64
	RequestedAt   time.Time
	Err           error
}

// Write persists a record. Failures are logged, never surfaced: metering
// must not break the request path. The write uses a detached context so a
// canceled request still gets its row.
func (r *Recorder) Write(ctx context.Context, rec Record) {
	if r == nil || r.db == nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var errorDetail datatypes.JSON
	if rec.Err != nil {
		if raw, errMarshal := json.Marshal(map[string]string{"error": rec.Err.Error()}); errMarshal == nil {
			errorDetail = raw
		}
	}

	requestedAt := rec.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = time.Now().UTC()
	}

	row := models.RequestLog{
		UserID:        rec.UserID,
		ModelID:       rec.ModelID,
		Outcome:       rec.Outcome,
		Paid:          rec.Paid,
		CostTokens:    rec.CostTokens,
		ChargedTokens: rec.ChargedTokens,
		ErrorDetail:   errorDetail,
		RequestedAt:   requestedAt.UTC(),
	}
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.Errorf("usage: record request log: %v", errCreate)
	}
}
