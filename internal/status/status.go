// Package status projects ledger and subscription state into the warning
// payload the client polls. Everything here is derived and read-only, safe
// to call at arbitrary frequency.
package status

import (
	"context"
	"errors"
	"time"

	"github.com/lexiconlabs/tokengate/internal/entitlement"
	"github.com/lexiconlabs/tokengate/internal/ledger"
	"github.com/lexiconlabs/tokengate/internal/modelcost"
	"github.com/lexiconlabs/tokengate/internal/models"
	"gorm.io/gorm"
)

// Report is the status payload for one user.
type Report struct {
	Balances           map[string]int64 `json:"balances"`
	IsPaidUser         bool             `json:"is_paid_user"`
	PaidUntil          *time.Time       `json:"paid_until,omitempty"`
	LowTokenWarning    bool             `json:"low_token_warning"`
	LowTokenModels     []string         `json:"low_token_models"`
	PaidExpiryWarning  bool             `json:"paid_expiry_warning"`
	PaidExpiryDaysLeft int              `json:"paid_expiry_days_left"`
}

// Reporter builds status reports.
type Reporter struct {
	db                *gorm.DB
	costs             *modelcost.Store
	ledger            *ledger.Store
	lowTokenThreshold int64
	expiryWindow      time.Duration
}

// NewReporter constructs a Reporter.
func NewReporter(db *gorm.DB, costs *modelcost.Store, ledgerStore *ledger.Store, lowTokenThreshold int64, expiryWindow time.Duration) *Reporter {
	return &Reporter{
		db:                db,
		costs:             costs,
		ledger:            ledgerStore,
		lowTokenThreshold: lowTokenThreshold,
		expiryWindow:      expiryWindow,
	}
}

// Get computes the status report for a user at the current time.
func (r *Reporter) Get(ctx context.Context, userID uint64) (*Report, error) {
	return r.at(ctx, userID, time.Now().UTC())
}

// at is the clock-injected implementation behind Get.
func (r *Reporter) at(ctx context.Context, userID uint64, now time.Time) (*Report, error) {
	balances, errList := r.ledger.Balances(ctx, userID)
	if errList != nil {
		return nil, errList
	}

	report := &Report{
		Balances:       balances,
		LowTokenModels: []string{},
	}

	var user models.User
	if errFind := r.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, errFind
		}
	} else if user.PaidAt(now) {
		report.IsPaidUser = true
		report.PaidUntil = user.PaidUntil
	}

	if !report.IsPaidUser {
		for _, entry := range r.costs.Entries() {
			balance, ok := balances[entry.ModelID]
			if !ok {
				continue
			}
			if entitlement.MessagesRemaining(balance, entry.Cost) <= r.lowTokenThreshold {
				report.LowTokenWarning = true
				report.LowTokenModels = append(report.LowTokenModels, entry.ModelID)
			}
		}
	}

	if report.IsPaidUser && user.PaidUntil != nil {
		remaining := user.PaidUntil.Sub(now)
		if remaining <= r.expiryWindow {
			report.PaidExpiryWarning = true
			report.PaidExpiryDaysLeft = ceilDays(remaining)
		}
	}

	return report, nil
}

// ceilDays returns the ceiling of remaining whole days, never negative.
func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
