// Package entitlement holds the pure allow/deny rules for metered chat
// messages. Nothing here touches storage, so the same functions serve both
// the request path and preview computations.
package entitlement

// Decision is the outcome of evaluating one chat request.
type Decision struct {
	Allowed bool
	// Shortfall is how many tokens were missing when denied.
	Shortfall int64
}

// Evaluate decides whether a message at the given cost may be sent. Paid
// users are unmetered and always allowed; free users need balance >= cost.
func Evaluate(balance int64, isPaid bool, modelCost int64) Decision {
	if isPaid {
		return Decision{Allowed: true}
	}
	if balance >= modelCost {
		return Decision{Allowed: true}
	}
	return Decision{Shortfall: modelCost - balance}
}

// MessagesRemaining returns how many messages the balance still covers.
// The cost table invariant guarantees modelCost > 0.
func MessagesRemaining(balance, modelCost int64) int64 {
	if balance < 0 {
		return 0
	}
	return balance / modelCost
}
