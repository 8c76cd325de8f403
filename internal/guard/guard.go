// Package guard authorizes, meters, and forwards chat requests. It is the
// only writer of debits: tokens are consumed if and only if the provider
// produced a response, enforced by debiting before the provider call and
// refunding on any downstream failure.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/lexiconlabs/tokengate/internal/entitlement"
	"github.com/lexiconlabs/tokengate/internal/ledger"
	"github.com/lexiconlabs/tokengate/internal/modelcost"
	"github.com/lexiconlabs/tokengate/internal/models"
	"github.com/lexiconlabs/tokengate/internal/provider"
	"github.com/lexiconlabs/tokengate/internal/store"
	"github.com/lexiconlabs/tokengate/internal/usage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ChatResult is a completed chat exchange.
type ChatResult struct {
	ConversationID uint64
	UserText       string
	BotText        string
	Timestamp      time.Time
	ChargedTokens  int64
}

// Guard orchestrates the chat request path.
type Guard struct {
	db        *gorm.DB
	costs     *modelcost.Store
	ledger    *ledger.Store
	completer provider.Completer
	convos    *store.ConversationStore
	recorder  *usage.Recorder
	timeout   time.Duration
}

// New constructs a Guard.
func New(
	db *gorm.DB,
	costs *modelcost.Store,
	ledgerStore *ledger.Store,
	completer provider.Completer,
	convos *store.ConversationStore,
	recorder *usage.Recorder,
	providerTimeout time.Duration,
) *Guard {
	return &Guard{
		db:        db,
		costs:     costs,
		ledger:    ledgerStore,
		completer: completer,
		convos:    convos,
		recorder:  recorder,
		timeout:   providerTimeout,
	}
}

// HandleChat authorizes and forwards one chat request.
//
// Order matters: the cost lookup and entitlement check run before any
// mutation, the debit lands before the provider is contacted, and a refund
// reverses the debit whenever the provider (or persistence) fails after it.
func (g *Guard) HandleChat(ctx context.Context, userID uint64, modelID, prompt string, conversationID uint64) (*ChatResult, error) {
	requestedAt := time.Now().UTC()

	canonical, cost, ok := g.costs.Resolve(modelID)
	if !ok {
		err := &UnknownModelError{ModelID: modelID}
		g.record(ctx, userID, modelID, models.RequestOutcomeUnknownModel, false, 0, 0, requestedAt, err)
		return nil, err
	}
	// All ledger, conversation, and log rows are keyed by the canonical ID:
	// a case variant of a known model must hit the same balance row.
	modelID = canonical

	isPaid, errSub := g.subscriptionActive(ctx, userID, requestedAt)
	if errSub != nil {
		return nil, errSub
	}

	balanceRow, errFetch := g.ledger.Fetch(ctx, userID, modelID)
	if errFetch != nil {
		return nil, errFetch
	}

	decision := entitlement.Evaluate(balanceRow.Balance, isPaid, cost)
	if !decision.Allowed {
		err := &InsufficientTokensError{Balance: balanceRow.Balance, Required: cost}
		g.record(ctx, userID, modelID, models.RequestOutcomeDenied, isPaid, cost, 0, requestedAt, err)
		return nil, err
	}

	// Conversation ownership is checked before the debit so a bad
	// conversation ID cannot trigger a debit/refund round trip.
	if conversationID != 0 {
		if errOwned := g.convos.EnsureOwned(ctx, userID, conversationID); errOwned != nil {
			return nil, errOwned
		}
	}

	// From the debit onward the operation is detached from client
	// cancellation: an abandoned request must still complete or refund,
	// never leak a debited token.
	opCtx := context.WithoutCancel(ctx)

	charged := int64(0)
	if !isPaid {
		if _, errDebit := g.ledger.Debit(opCtx, userID, modelID, cost); errDebit != nil {
			if errors.Is(errDebit, ledger.ErrInsufficientFunds) {
				// A concurrent request won the balance between evaluate
				// and debit.
				row, errRow := g.ledger.Fetch(opCtx, userID, modelID)
				balance := int64(0)
				if errRow == nil {
					balance = row.Balance
				}
				err := &InsufficientTokensError{Balance: balance, Required: cost}
				g.record(ctx, userID, modelID, models.RequestOutcomeDenied, isPaid, cost, 0, requestedAt, err)
				return nil, err
			}
			return nil, errDebit
		}
		charged = cost
	}

	result, errComplete := g.complete(opCtx, modelID, prompt)
	if errComplete != nil {
		g.refund(opCtx, userID, modelID, charged)
		g.record(ctx, userID, modelID, models.RequestOutcomeProviderError, isPaid, cost, 0, requestedAt, errComplete)
		return nil, errComplete
	}

	message, convoID, errAppend := g.convos.AppendExchange(opCtx, userID, conversationID, modelID, prompt, result.Text)
	if errAppend != nil {
		g.refund(opCtx, userID, modelID, charged)
		g.record(ctx, userID, modelID, models.RequestOutcomeProviderError, isPaid, cost, 0, requestedAt, errAppend)
		return nil, errAppend
	}

	g.record(ctx, userID, modelID, models.RequestOutcomeOK, isPaid, cost, charged, requestedAt, nil)
	return &ChatResult{
		ConversationID: convoID,
		UserText:       message.UserText,
		BotText:        message.BotText,
		Timestamp:      message.CreatedAt,
		ChargedTokens:  charged,
	}, nil
}

// complete calls the provider bounded by the configured timeout.
func (g *Guard) complete(ctx context.Context, modelID, prompt string) (*provider.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, errComplete := g.completer.Complete(callCtx, modelID, prompt)
	if errComplete != nil {
		timeout := errors.Is(errComplete, context.DeadlineExceeded) || callCtx.Err() != nil
		return nil, &ProviderError{ModelID: modelID, Timeout: timeout, Err: errComplete}
	}
	return result, nil
}

// refund reverses a debit after a downstream failure.
func (g *Guard) refund(ctx context.Context, userID uint64, modelID string, amount int64) {
	if amount <= 0 {
		return
	}
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, errCredit := g.ledger.Credit(refundCtx, userID, modelID, amount); errCredit != nil {
		log.Errorf("guard: refund %d tokens to user %d model %s failed: %v", amount, userID, modelID, errCredit)
	}
}

// subscriptionActive reads the user's subscription state. A missing user
// row is treated as free tier; the auth service owns user provisioning.
func (g *Guard) subscriptionActive(ctx context.Context, userID uint64, now time.Time) (bool, error) {
	var user models.User
	if errFind := g.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, errFind
	}
	return user.PaidAt(now), nil
}

func (g *Guard) record(ctx context.Context, userID uint64, modelID, outcome string, paid bool, cost, charged int64, requestedAt time.Time, err error) {
	g.recorder.Write(ctx, usage.Record{
		UserID:        userID,
		ModelID:       modelID,
		Outcome:       outcome,
		Paid:          paid,
		CostTokens:    cost,
		ChargedTokens: charged,
		RequestedAt:   requestedAt,
		Err:           err,
	})
}
