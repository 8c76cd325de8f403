package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lexiconlabs/tokengate/internal/models"
	"gorm.io/gorm"
)

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.TokenBalance{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestFetchLazilyCreatesWithStartingGrant(t *testing.T) {
	store := NewStore(setupLedgerDB(t), 100)

	row, errFetch := store.Fetch(context.Background(), 1, "gpt-4")
	if errFetch != nil {
		t.Fatalf("fetch: %v", errFetch)
	}
	if row.Balance != 100 {
		t.Fatalf("balance = %d, want starting grant 100", row.Balance)
	}

	// Second fetch returns the same row, not a fresh grant.
	again, errFetch := store.Fetch(context.Background(), 1, "gpt-4")
	if errFetch != nil {
		t.Fatalf("fetch again: %v", errFetch)
	}
	if again.ID != row.ID || again.Balance != 100 {
		t.Fatalf("refetch = id %d balance %d, want id %d balance 100", again.ID, again.Balance, row.ID)
	}
}

func TestDebitAndCredit(t *testing.T) {
	store := NewStore(setupLedgerDB(t), 100)
	ctx := context.Background()

	newBalance, errDebit := store.Debit(ctx, 1, "gpt-4", 20)
	if errDebit != nil {
		t.Fatalf("debit: %v", errDebit)
	}
	if newBalance != 80 {
		t.Fatalf("balance after debit = %d, want 80", newBalance)
	}

	newBalance, errCredit := store.Credit(ctx, 1, "gpt-4", 5)
	if errCredit != nil {
		t.Fatalf("credit: %v", errCredit)
	}
	if newBalance != 85 {
		t.Fatalf("balance after credit = %d, want 85", newBalance)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	store := NewStore(setupLedgerDB(t), 10)
	ctx := context.Background()

	if _, errDebit := store.Debit(ctx, 1, "gpt-4", 11); !errors.Is(errDebit, ErrInsufficientFunds) {
		t.Fatalf("debit error = %v, want ErrInsufficientFunds", errDebit)
	}

	// The failed debit must not have touched the balance.
	row, errFetch := store.Fetch(ctx, 1, "gpt-4")
	if errFetch != nil {
		t.Fatalf("fetch: %v", errFetch)
	}
	if row.Balance != 10 {
		t.Fatalf("balance = %d, want 10", row.Balance)
	}
}

func TestCreditCreatesRowOnTopOfGrant(t *testing.T) {
	store := NewStore(setupLedgerDB(t), 100)

	newBalance, errCredit := store.Credit(context.Background(), 7, "gpt-3.5", 20)
	if errCredit != nil {
		t.Fatalf("credit: %v", errCredit)
	}
	if newBalance != 120 {
		t.Fatalf("balance = %d, want grant 100 + credit 20", newBalance)
	}
}

func TestDifferentKeysAreIndependent(t *testing.T) {
	store := NewStore(setupLedgerDB(t), 100)
	ctx := context.Background()

	if _, errDebit := store.Debit(ctx, 1, "gpt-4", 100); errDebit != nil {
		t.Fatalf("debit: %v", errDebit)
	}

	balances, errList := store.Balances(ctx, 1)
	if errList != nil {
		t.Fatalf("balances: %v", errList)
	}
	if balances["gpt-4"] != 0 {
		t.Fatalf("gpt-4 balance = %d, want 0", balances["gpt-4"])
	}

	// Same user, different model: untouched grant.
	row, errFetch := store.Fetch(ctx, 1, "gpt-3.5")
	if errFetch != nil {
		t.Fatalf("fetch: %v", errFetch)
	}
	if row.Balance != 100 {
		t.Fatalf("gpt-3.5 balance = %d, want 100", row.Balance)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	store := NewStore(setupLedgerDB(t), 100)
	ctx := context.Background()

	// Warm the row so every goroutine races on the same version chain.
	if _, errFetch := store.Fetch(ctx, 1, "gpt-4"); errFetch != nil {
		t.Fatalf("fetch: %v", errFetch)
	}

	const workers = 8
	const amount = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, errDebit := store.Debit(ctx, 1, "gpt-4", amount); errDebit == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	row, errFetch := store.Fetch(ctx, 1, "gpt-4")
	if errFetch != nil {
		t.Fatalf("fetch: %v", errFetch)
	}
	if row.Balance < 0 {
		t.Fatalf("balance went negative: %d", row.Balance)
	}
	if want := int64(100 - succeeded*amount); row.Balance != want {
		t.Fatalf("balance = %d, want %d after %d successful debits", row.Balance, want, succeeded)
	}
	if succeeded > 5 {
		t.Fatalf("%d debits of %d succeeded against a balance of 100", succeeded, amount)
	}
}
