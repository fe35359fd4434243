package settings

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	snap, err := Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !snap.VATRate.Equal(decimal.RequireFromString("0.075")) {
		t.Fatalf("expected VAT 0.075, got %s", snap.VATRate)
	}
	if !snap.CashWithdrawalFee.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected cash fee 100, got %s", snap.CashWithdrawalFee)
	}
	if !snap.TokenWithdrawalFee.IsZero() {
		t.Fatalf("expected token fee 0, got %s", snap.TokenWithdrawalFee)
	}
	if !snap.AutoApproveThreshold.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("expected threshold 100000, got %s", snap.AutoApproveThreshold)
	}
	// The cash minimum must admit the smallest supported withdrawal of 500.
	if !snap.MinCashWithdrawal.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected cash minimum 500, got %s", snap.MinCashWithdrawal)
	}
}

func TestLoadOverrides(t *testing.T) {
	store := NewMemoryStore()
	store.Set(KeyCashWithdrawalFee, "250")
	store.Set(KeyMinCashWithdrawal, "2000")

	snap, err := Load(context.Background(), store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !snap.CashWithdrawalFee.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("override lost: %s", snap.CashWithdrawalFee)
	}
	if !snap.MinCashWithdrawal.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("override lost: %s", snap.MinCashWithdrawal)
	}
	// Untouched keys keep their defaults.
	if !snap.VATRate.Equal(decimal.RequireFromString("0.075")) {
		t.Fatalf("default lost: %s", snap.VATRate)
	}
}

func TestLoadRejectsMalformedValue(t *testing.T) {
	store := NewMemoryStore()
	store.Set(KeyVATRate, "seven percent")
	if _, err := Load(context.Background(), store); err == nil {
		t.Fatalf("expected error for malformed setting")
	}
}

func TestCachedStoreReadThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	inner := NewMemoryStore()
	inner.Set(KeyVATRate, "0.1")
	cached := NewCachedStore(inner, cache, time.Minute)
	ctx := context.Background()

	got, err := cached.Get(ctx, KeyVATRate, "0.075")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "0.1" {
		t.Fatalf("expected 0.1, got %s", got)
	}

	// A write to the inner store is invisible until the cache entry expires.
	inner.Set(KeyVATRate, "0.2")
	got, _ = cached.Get(ctx, KeyVATRate, "0.075")
	if got != "0.1" {
		t.Fatalf("expected cached 0.1, got %s", got)
	}

	mr.FastForward(2 * time.Minute)
	got, _ = cached.Get(ctx, KeyVATRate, "0.075")
	if got != "0.2" {
		t.Fatalf("expected refreshed 0.2, got %s", got)
	}
}

func TestCachedStoreFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()
	mr.Close() // cache is now unreachable

	inner := NewMemoryStore()
	inner.Set(KeyVATRate, "0.3")
	cached := NewCachedStore(inner, cache, time.Minute)

	got, err := cached.Get(context.Background(), KeyVATRate, "0.075")
	if err != nil {
		t.Fatalf("expected fail-open read, got %v", err)
	}
	if got != "0.3" {
		t.Fatalf("expected inner value 0.3, got %s", got)
	}
}
