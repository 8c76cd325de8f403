package modelcost

import (
	"errors"
	"testing"
)

func TestStoreLookupIsCaseInsensitive(t *testing.T) {
	store := NewStore(map[string]int64{"GPT-4": 40, "gpt-3.5": 20})

	canonical, cost, ok := store.Resolve("gpt-4")
	if !ok || cost != 40 || canonical != "GPT-4" {
		t.Fatalf("Resolve(gpt-4) = %q, %d, %v; want GPT-4, 40, true", canonical, cost, ok)
	}
	canonical, cost, ok = store.Resolve(" GPT-3.5 ")
	if !ok || cost != 20 || canonical != "gpt-3.5" {
		t.Fatalf("Resolve(GPT-3.5) = %q, %d, %v; want gpt-3.5, 20, true", canonical, cost, ok)
	}
	if _, _, ok := store.Resolve("claude"); ok {
		t.Fatal("Resolve(claude) should not match")
	}
}

func TestStoreSkipsInvalidEntries(t *testing.T) {
	store := NewStore(map[string]int64{"": 10, "free-model": 0, "bad": -5, "ok": 1})
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", store.Len())
	}
	entries := store.Entries()
	if len(entries) != 1 || entries[0].ModelID != "ok" || entries[0].Cost != 1 {
		t.Fatalf("Entries = %+v", entries)
	}
}

func TestConfigSourcePrimaryWins(t *testing.T) {
	src := NewConfigSource(
		map[string]int64{"gpt-4": 40},
		map[string]int64{"gpt-4": 99},
		FallbackStatic,
	)
	store, errResolve := src.Resolve()
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if _, cost, _ := store.Resolve("gpt-4"); cost != 40 {
		t.Fatalf("cost = %d, want primary 40", cost)
	}
}

func TestConfigSourceStaticFallback(t *testing.T) {
	src := NewConfigSource(nil, map[string]int64{"gpt-4": 40}, FallbackStatic)
	store, errResolve := src.Resolve()
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if _, cost, _ := store.Resolve("gpt-4"); cost != 40 {
		t.Fatalf("cost = %d, want fallback 40", cost)
	}
}

func TestConfigSourceFailPolicy(t *testing.T) {
	src := NewConfigSource(nil, map[string]int64{"gpt-4": 40}, FallbackFail)
	if _, errResolve := src.Resolve(); !errors.Is(errResolve, ErrNoCostTable) {
		t.Fatalf("resolve error = %v, want ErrNoCostTable", errResolve)
	}
}

func TestConfigSourceEmptyFallback(t *testing.T) {
	src := NewConfigSource(nil, nil, FallbackStatic)
	if _, errResolve := src.Resolve(); !errors.Is(errResolve, ErrNoCostTable) {
		t.Fatalf("resolve error = %v, want ErrNoCostTable", errResolve)
	}
}
