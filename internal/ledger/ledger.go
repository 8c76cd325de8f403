// Package ledger is the durable per-(user, model) token balance store.
// Mutations for the same key are serialized with an optimistic
// compare-and-swap on the row version, retried a bounded number of times,
// so concurrent requests can never jointly overdraw one balance. Rows for
// different keys never contend.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiconlabs/tokengate/internal/models"
	"gorm.io/gorm"
)

// Ledger errors.
var (
	// ErrConflict indicates CAS retries were exhausted by concurrent writers.
	ErrConflict = errors.New("ledger: concurrent balance mutation")
	// ErrInsufficientFunds indicates the balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// casMaxRetries bounds the optimistic retry loop before ErrConflict surfaces.
const casMaxRetries = 5

// Store reads and mutates token balances.
type Store struct {
	db            *gorm.DB
	startingGrant int64
}

// NewStore constructs a Store. startingGrant seeds lazily created rows.
func NewStore(db *gorm.DB, startingGrant int64) *Store {
	if startingGrant < 0 {
		startingGrant = 0
	}
	return &Store{db: db, startingGrant: startingGrant}
}

// Fetch returns the balance row for (userID, modelID), creating it with the
// starting grant on first reference.
func (s *Store) Fetch(ctx context.Context, userID uint64, modelID string) (*models.TokenBalance, error) {
	return s.fetchIn(ctx, s.db, userID, modelID)
}

func (s *Store) fetchIn(ctx context.Context, db *gorm.DB, userID uint64, modelID string) (*models.TokenBalance, error) {
	var row models.TokenBalance
	errFind := db.WithContext(ctx).
		Where("user_id = ? AND model_id = ?", userID, modelID).
		First(&row).Error
	if errFind == nil {
		return &row, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ledger: fetch balance: %w", errFind)
	}

	row = models.TokenBalance{
		UserID:  userID,
		ModelID: modelID,
		Balance: s.startingGrant,
	}
	if errCreate := db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		// A concurrent request may have created the row first; the unique
		// index on (user_id, model_id) makes the re-read authoritative.
		var existing models.TokenBalance
		if errRetry := db.WithContext(ctx).
			Where("user_id = ? AND model_id = ?", userID, modelID).
			First(&existing).Error; errRetry == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("ledger: create balance: %w", errCreate)
	}
	return &row, nil
}

// Balances returns every balance row for a user keyed by model ID.
func (s *Store) Balances(ctx context.Context, userID uint64) (map[string]int64, error) {
	var rows []models.TokenBalance
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("model_id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: list balances: %w", errFind)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.ModelID] = row.Balance
	}
	return out, nil
}

// Debit atomically subtracts amount from the balance and returns the new
// value. Returns ErrInsufficientFunds when the balance cannot cover the
// amount and ErrConflict when concurrent writers exhaust the retry budget.
func (s *Store) Debit(ctx context.Context, userID uint64, modelID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: non-positive debit amount %d", amount)
	}
	return s.mutate(ctx, s.db, userID, modelID, func(balance int64) (int64, error) {
		if balance < amount {
			return 0, ErrInsufficientFunds
		}
		return balance - amount, nil
	})
}

// Credit atomically adds amount to the balance and returns the new value.
// The row is lazily created when missing, so a credit before any chat
// request still lands on top of the starting grant.
func (s *Store) Credit(ctx context.Context, userID uint64, modelID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: non-positive credit amount %d", amount)
	}
	return s.mutate(ctx, s.db, userID, modelID, func(balance int64) (int64, error) {
		return balance + amount, nil
	})
}

// CreditTx is Credit running inside the caller's transaction, so the credit
// rolls back together with the caller's other writes.
func (s *Store) CreditTx(ctx context.Context, tx *gorm.DB, userID uint64, modelID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: non-positive credit amount %d", amount)
	}
	return s.mutate(ctx, tx, userID, modelID, func(balance int64) (int64, error) {
		return balance + amount, nil
	})
}

// mutate runs one CAS loop applying fn to the current balance.
func (s *Store) mutate(ctx context.Context, db *gorm.DB, userID uint64, modelID string, fn func(int64) (int64, error)) (int64, error) {
	for attempt := 0; attempt < casMaxRetries; attempt++ {
		row, errFetch := s.fetchIn(ctx, db, userID, modelID)
		if errFetch != nil {
			return 0, errFetch
		}

		next, errFn := fn(row.Balance)
		if errFn != nil {
			return 0, errFn
		}

		res := db.WithContext(ctx).Model(&models.TokenBalance{}).
			Where("id = ? AND version = ?", row.ID, row.Version).
			Updates(map[string]any{
				"balance":    next,
				"version":    row.Version + 1,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return 0, fmt.Errorf("ledger: update balance: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return next, nil
		}
		// Lost the race; re-read and retry.
	}
	return 0, ErrConflict
}
