package usage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lexiconlabs/tokengate/internal/models"
	"gorm.io/gorm"
)

func setupUsageDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:usage_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.RequestLog{}, &models.AdViewEvent{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestRecorderWritesRowAndErrorDetail(t *testing.T) {
	conn := setupUsageDB(t)
	r := NewRecorder(conn)

	r.Write(context.Background(), Record{
		UserID:        1,
		ModelID:       "gpt-4",
		Outcome:       models.RequestOutcomeProviderError,
		CostTokens:    40,
		ChargedTokens: 0,
		Err:           errors.New("upstream unavailable"),
	})

	var row models.RequestLog
	if errFind := conn.First(&row).Error; errFind != nil {
		t.Fatalf("find request log: %v", errFind)
	}
	if row.Outcome != models.RequestOutcomeProviderError {
		t.Fatalf("unexpected outcome %q", row.Outcome)
	}
	if row.ChargedTokens != 0 || row.CostTokens != 40 {
		t.Fatalf("unexpected token columns: cost=%d charged=%d", row.CostTokens, row.ChargedTokens)
	}
	if len(row.ErrorDetail) == 0 {
		t.Fatalf("expected error detail JSON")
	}
	if row.RequestedAt.IsZero() {
		t.Fatalf("expected requested_at to be backfilled")
	}
}

func TestRecorderSurvivesCanceledRequestContext(t *testing.T) {
	conn := setupUsageDB(t)
	r := NewRecorder(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Write(ctx, Record{UserID: 2, ModelID: "gpt-4", Outcome: models.RequestOutcomeOK, ChargedTokens: 40})

	var count int64
	if errCount := conn.Model(&models.RequestLog{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count rows: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected 1 row despite canceled context, got %d", count)
	}
}

func TestCleanupOnceDeletesOnlyAgedRows(t *testing.T) {
	conn := setupUsageDB(t)
	now := time.Now().UTC()

	rows := []models.RequestLog{
		{UserID: 1, ModelID: "gpt-4", Outcome: models.RequestOutcomeOK, RequestedAt: now.Add(-40 * 24 * time.Hour)},
		{UserID: 1, ModelID: "gpt-4", Outcome: models.RequestOutcomeOK, RequestedAt: now.Add(-31 * 24 * time.Hour)},
		{UserID: 1, ModelID: "gpt-4", Outcome: models.RequestOutcomeOK, RequestedAt: now.Add(-time.Hour)},
	}
	if errCreate := conn.Create(&rows).Error; errCreate != nil {
		t.Fatalf("seed request logs: %v", errCreate)
	}
	events := []models.AdViewEvent{
		{UserID: 1, ModelID: "gpt-4", Amount: 20, IdempotencyKey: "old", CreatedAt: now.Add(-40 * 24 * time.Hour)},
		{UserID: 1, ModelID: "gpt-4", Amount: 20, IdempotencyKey: "new", CreatedAt: now.Add(-time.Hour)},
	}
	if errCreate := conn.Create(&events).Error; errCreate != nil {
		t.Fatalf("seed ad view events: %v", errCreate)
	}

	cleaner := NewRetentionCleaner(conn, 30*24*time.Hour, 30*24*time.Hour)
	cleaner.CleanupOnce(context.Background())

	var logCount int64
	if errCount := conn.Model(&models.RequestLog{}).Count(&logCount).Error; errCount != nil {
		t.Fatalf("count logs: %v", errCount)
	}
	if logCount != 1 {
		t.Fatalf("expected 1 surviving request log, got %d", logCount)
	}

	var survivor models.RequestLog
	if errFind := conn.First(&survivor).Error; errFind != nil {
		t.Fatalf("find survivor: %v", errFind)
	}
	if survivor.RequestedAt.Before(now.Add(-30 * 24 * time.Hour)) {
		t.Fatalf("survivor is older than the retention window: %v", survivor.RequestedAt)
	}

	var eventKeys []string
	if errPluck := conn.Model(&models.AdViewEvent{}).Pluck("idempotency_key", &eventKeys).Error; errPluck != nil {
		t.Fatalf("pluck event keys: %v", errPluck)
	}
	if len(eventKeys) != 1 || eventKeys[0] != "new" {
		t.Fatalf("expected only the recent event to survive, got %v", eventKeys)
	}
}

func TestCleanupOnceSpansMultipleBatches(t *testing.T) {
	conn := setupUsageDB(t)
	now := time.Now().UTC()

	old := make([]models.RequestLog, 7)
	for i := range old {
		old[i] = models.RequestLog{UserID: 1, ModelID: "gpt-4", Outcome: models.RequestOutcomeOK, RequestedAt: now.Add(-31 * 24 * time.Hour)}
	}
	if errCreate := conn.Create(&old).Error; errCreate != nil {
		t.Fatalf("seed request logs: %v", errCreate)
	}

	cleaner := NewRetentionCleaner(conn, 30*24*time.Hour, 0)
	cleaner.batchSize = 3
	cleaner.CleanupOnce(context.Background())

	var count int64
	if errCount := conn.Model(&models.RequestLog{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count logs: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected all aged rows pruned across batches, got %d", count)
	}
}
