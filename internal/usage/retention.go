package usage

import (
	"context"
	"time"

	"github.com/lexiconlabs/tokengate/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultRetentionInterval = 6 * time.Hour
	defaultDeleteBatchSize   = 5000
	maxDeleteBatchesPerRun   = 2000
)

// RetentionCleaner periodically deletes request logs older than the
// retention window and ad-view events older than the idempotency window.
// Pruning ad-view events never affects correctness: their only purpose is
// duplicate suppression inside that window.
type RetentionCleaner struct {
	db             *gorm.DB
	interval       time.Duration
	batchSize      int
	logRetention   time.Duration
	eventRetention time.Duration
}

// NewRetentionCleaner constructs a RetentionCleaner.
func NewRetentionCleaner(db *gorm.DB, logRetention, eventRetention time.Duration) *RetentionCleaner {
	if db == nil {
		return nil
	}
	return &RetentionCleaner{
		db:             db,
		interval:       defaultRetentionInterval,
		batchSize:      defaultDeleteBatchSize,
		logRetention:   logRetention,
		eventRetention: eventRetention,
	}
}

// Start launches the cleanup loop in a background goroutine.
func (c *RetentionCleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx)
	log.Infof("usage: retention cleaner started (interval=%s)", c.interval)
}

func (c *RetentionCleaner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.CleanupOnce(ctx)
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// CleanupOnce runs a single pruning pass.
func (c *RetentionCleaner) CleanupOnce(ctx context.Context) {
	if c == nil || c.db == nil {
		return
	}
	now := time.Now().UTC()
	if c.logRetention > 0 {
		c.deleteBatches(ctx, models.RequestLog{}.TableName(), "requested_at", now.Add(-c.logRetention))
	}
	if c.eventRetention > 0 {
		c.deleteBatches(ctx, models.AdViewEvent{}.TableName(), "created_at", now.Add(-c.eventRetention))
	}
}

func (c *RetentionCleaner) deleteBatches(ctx context.Context, table, column string, cutoff time.Time) {
	deleted := int64(0)
	for batch := 0; batch < maxDeleteBatchesPerRun; batch++ {
		if ctx.Err() != nil {
			return
		}
		n, errDelete := c.deleteBatch(ctx, table, column, cutoff)
		if errDelete != nil {
			log.Errorf("usage: retention delete from %s: %v", table, errDelete)
			return
		}
		if n <= 0 {
			break
		}
		deleted += n
	}
	if deleted > 0 {
		log.Infof("usage: retention pruned %d rows from %s (cutoff=%s)", deleted, table, cutoff.Format(time.RFC3339))
	}
}

func (c *RetentionCleaner) deleteBatch(ctx context.Context, table, column string, cutoff time.Time) (int64, error) {
	limit := c.batchSize
	if limit <= 0 {
		limit = defaultDeleteBatchSize
	}

	// Limited subquery keeps each delete short and avoids long table locks.
	res := c.db.WithContext(ctx).Exec(`
		DELETE FROM `+table+`
		WHERE id IN (
			SELECT id FROM `+table+`
			WHERE `+column+` < ?
			ORDER BY `+column+` ASC
			LIMIT ?
		)
	`, cutoff, limit)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
