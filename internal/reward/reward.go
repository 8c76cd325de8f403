// Package reward credits token balances for completed ad views. Retried
// submissions are deduplicated through a redis key with a bounded TTL (the
// idempotency window), backed by a unique index on the durable ad-view
// event row. Submissions without an idempotency key fall back to a rolling
// per-user frequency cap.
package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lexiconlabs/tokengate/internal/ledger"
	"github.com/lexiconlabs/tokengate/internal/modelcost"
	"github.com/lexiconlabs/tokengate/internal/models"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Reward errors.
var (
	// ErrTooManyRewards indicates the rolling-window frequency cap was hit.
	ErrTooManyRewards = errors.New("reward: too many rewards in window")
	// ErrUnknownModel indicates the reward targets a model with no cost
	// entry; crediting it would create a balance no chat can ever spend.
	ErrUnknownModel = errors.New("reward: unknown model")
)

// Config tunes the granter.
type Config struct {
	// Amount is the token credit per completed ad view.
	Amount int64
	// IdempotencyTTL bounds the dedup window for caller-supplied keys.
	IdempotencyTTL time.Duration
	// Window and WindowMax cap reward frequency per user when the caller
	// supplies no idempotency key.
	Window    time.Duration
	WindowMax int
}

// Granter credits ad-view rewards.
type Granter struct {
	db     *gorm.DB
	rdb    *redis.Client
	ledger *ledger.Store
	costs  *modelcost.Store
	cfg    Config
}

// NewGranter constructs a Granter.
func NewGranter(db *gorm.DB, rdb *redis.Client, ledgerStore *ledger.Store, costs *modelcost.Store, cfg Config) *Granter {
	return &Granter{db: db, rdb: rdb, ledger: ledgerStore, costs: costs, cfg: cfg}
}

// Grant credits one ad-view reward and returns the resulting balance.
// Calling it twice with the same idempotency key credits exactly once; the
// replay returns the current balance unchanged.
func (g *Granter) Grant(ctx context.Context, userID uint64, modelID, idempotencyKey string) (int64, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)

	canonical, _, ok := g.costs.Resolve(modelID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	modelID = canonical

	if idempotencyKey == "" {
		if errCap := g.checkWindow(ctx, userID); errCap != nil {
			return 0, errCap
		}
		return g.credit(ctx, userID, modelID, "")
	}

	fresh, errClaim := g.claimKey(ctx, userID, idempotencyKey)
	if errClaim != nil {
		return 0, errClaim
	}
	if !fresh {
		return g.currentBalance(ctx, userID, modelID)
	}
	newBalance, errCredit := g.credit(ctx, userID, modelID, idempotencyKey)
	if errCredit != nil {
		// A failed credit must not leave the key burned: release the redis
		// claim so a retry can attempt the reward again. The event row has
		// already rolled back with the credit.
		g.releaseKey(ctx, userID, idempotencyKey)
		return 0, errCredit
	}
	return newBalance, nil
}

// claimKey reserves the idempotency key in redis. Returns false when the
// key was already claimed inside the TTL window.
func (g *Granter) claimKey(ctx context.Context, userID uint64, key string) (bool, error) {
	redisKey := fmt.Sprintf("reward:idem:%d:%s", userID, key)
	ok, errSet := g.rdb.SetNX(ctx, redisKey, 1, g.cfg.IdempotencyTTL).Result()
	if errSet != nil {
		// Redis being down must not open a double-credit hole; the unique
		// index on ad_view_events stays authoritative.
		log.Warnf("reward: idempotency claim failed, relying on db backstop: %v", errSet)
		return true, nil
	}
	return ok, nil
}

// checkWindow enforces the rolling frequency cap for keyless submissions.
func (g *Granter) checkWindow(ctx context.Context, userID uint64) error {
	windowSeconds := int64(g.cfg.Window / time.Second)
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	bucket := time.Now().UTC().Unix() / windowSeconds
	redisKey := fmt.Sprintf("reward:window:%d:%d", userID, bucket)

	count, errIncr := g.rdb.Incr(ctx, redisKey).Result()
	if errIncr != nil {
		return fmt.Errorf("reward: window counter: %w", errIncr)
	}
	if count == 1 {
		if errExpire := g.rdb.Expire(ctx, redisKey, g.cfg.Window).Err(); errExpire != nil {
			log.Warnf("reward: window expire failed: %v", errExpire)
		}
	}
	if count > int64(g.cfg.WindowMax) {
		return ErrTooManyRewards
	}
	return nil
}

// credit inserts the ad-view event and applies the ledger credit in one
// transaction: either both land or neither does, so a failed credit can
// never leave a committed event row blocking future retries.
func (g *Granter) credit(ctx context.Context, userID uint64, modelID, idempotencyKey string) (int64, error) {
	eventKey := idempotencyKey
	if eventKey == "" {
		eventKey = fmt.Sprintf("window:%d:%d", userID, time.Now().UTC().UnixNano())
	}

	replayed := false
	var newBalance int64
	errTx := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := models.AdViewEvent{
			UserID:         userID,
			ModelID:        modelID,
			Amount:         g.cfg.Amount,
			IdempotencyKey: eventKey,
		}
		if errCreate := tx.Create(&event).Error; errCreate != nil {
			if idempotencyKey != "" {
				// The unique index rejects a replay that slipped past redis.
				var existing models.AdViewEvent
				if errFind := tx.
					Where("idempotency_key = ?", idempotencyKey).
					First(&existing).Error; errFind == nil {
					replayed = true
					return nil
				}
			}
			return fmt.Errorf("reward: record event: %w", errCreate)
		}

		balance, errCredit := g.ledger.CreditTx(ctx, tx, userID, modelID, g.cfg.Amount)
		if errCredit != nil {
			return errCredit
		}
		newBalance = balance
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	if replayed {
		return g.currentBalance(ctx, userID, modelID)
	}
	log.Infof("reward: credited %d tokens to user %d model %s", g.cfg.Amount, userID, modelID)
	return newBalance, nil
}

// releaseKey frees a redis idempotency claim after a failed credit.
func (g *Granter) releaseKey(ctx context.Context, userID uint64, key string) {
	redisKey := fmt.Sprintf("reward:idem:%d:%s", userID, key)
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if errDel := g.rdb.Del(delCtx, redisKey).Err(); errDel != nil {
		log.Warnf("reward: release idempotency claim %s failed: %v", redisKey, errDel)
	}
}

// currentBalance reads the balance without crediting, used on replays.
func (g *Granter) currentBalance(ctx context.Context, userID uint64, modelID string) (int64, error) {
	row, errFetch := g.ledger.Fetch(ctx, userID, modelID)
	if errFetch != nil {
		return 0, errFetch
	}
	return row.Balance, nil
}
