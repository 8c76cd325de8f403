package entitlement

import "testing"

func TestEvaluateFreeUser(t *testing.T) {
	cases := []struct {
		name      string
		balance   int64
		cost      int64
		allowed   bool
		shortfall int64
	}{
		{"exact balance", 20, 20, true, 0},
		{"surplus", 100, 20, true, 0},
		{"one short", 19, 20, false, 1},
		{"zero balance", 0, 20, false, 20},
		{"cost one", 1, 1, true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.balance, false, tc.cost)
			if d.Allowed != tc.allowed {
				t.Fatalf("Evaluate(%d, false, %d).Allowed = %v, want %v", tc.balance, tc.cost, d.Allowed, tc.allowed)
			}
			if d.Shortfall != tc.shortfall {
				t.Fatalf("Evaluate(%d, false, %d).Shortfall = %d, want %d", tc.balance, tc.cost, d.Shortfall, tc.shortfall)
			}
		})
	}
}

func TestEvaluatePaidUserAlwaysAllowed(t *testing.T) {
	for _, balance := range []int64{0, 1, 1000} {
		d := Evaluate(balance, true, 999999)
		if !d.Allowed || d.Shortfall != 0 {
			t.Fatalf("paid user with balance %d: %+v", balance, d)
		}
	}
}

func TestMessagesRemaining(t *testing.T) {
	cases := []struct {
		balance int64
		cost    int64
		want    int64
	}{
		{0, 20, 0},
		{19, 20, 0},
		{20, 20, 1},
		{60, 20, 3},
		{61, 20, 3},
		{80, 20, 4},
		{-5, 20, 0},
	}
	for _, tc := range cases {
		if got := MessagesRemaining(tc.balance, tc.cost); got != tc.want {
			t.Fatalf("MessagesRemaining(%d, %d) = %d, want %d", tc.balance, tc.cost, got, tc.want)
		}
	}
}

func TestEvaluateAgreesWithMessagesRemaining(t *testing.T) {
	// A free user is allowed exactly when at least one message remains.
	for balance := int64(0); balance <= 100; balance++ {
		for _, cost := range []int64{1, 7, 20, 33} {
			allowed := Evaluate(balance, false, cost).Allowed
			remaining := MessagesRemaining(balance, cost)
			if allowed != (remaining >= 1) {
				t.Fatalf("balance=%d cost=%d: allowed=%v remaining=%d", balance, cost, allowed, remaining)
			}
		}
	}
}
