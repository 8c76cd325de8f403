package guard

import (
	"errors"
	"fmt"

	"github.com/lexiconlabs/tokengate/internal/ledger"
)

// ErrLedgerConflict surfaces when concurrent balance mutations exhaust the
// ledger's bounded retry budget. Transient; callers may retry.
var ErrLedgerConflict = ledger.ErrConflict

// UnknownModelError indicates the requested model has no cost entry. The
// guard never substitutes a default cost: silently defaulting could
// under- or over-charge.
type UnknownModelError struct {
	ModelID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.ModelID)
}

// InsufficientTokensError is the expected denial outcome for a free user
// whose balance cannot cover the message cost.
type InsufficientTokensError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: balance %d, required %d", e.Balance, e.Required)
}

// ProviderError indicates an upstream failure. Any debit has already been
// refunded when this surfaces.
type ProviderError struct {
	ModelID string
	Timeout bool
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("provider timeout for model %s", e.ModelID)
	}
	return fmt.Sprintf("provider error for model %s: %v", e.ModelID, e.Err)
}

// Unwrap exposes the underlying provider failure.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsDenial reports whether err is an expected business denial rather than a
// system fault.
func IsDenial(err error) bool {
	var insufficient *InsufficientTokensError
	return errors.As(err, &insufficient)
}
