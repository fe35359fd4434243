package wallet

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseKnownKinds(t *testing.T) {
	for _, k := range Kinds {
		parsed, err := Parse(string(k))
		if err != nil {
			t.Fatalf("parse %s: %v", k, err)
		}
		if parsed != k {
			t.Fatalf("parse %s returned %s", k, parsed)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, s := range []string{"", "savings", "MAIN", "main "} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestRestrictedSet(t *testing.T) {
	want := map[Kind]bool{
		Main: false, Spendable: false, Shareholder: false, Cashback: false,
		Community: false, Education: true, Car: true, Business: true, Shelter: true,
	}
	for k, restricted := range want {
		if k.Restricted() != restricted {
			t.Fatalf("wallet %s: restricted = %v, want %v", k, k.Restricted(), restricted)
		}
	}
}

func TestBalancesTotal(t *testing.T) {
	b := NewBalances()
	if len(b) != len(Kinds) {
		t.Fatalf("expected %d wallets, got %d", len(Kinds), len(b))
	}
	if !b.Total().IsZero() {
		t.Fatalf("fresh balances must total zero, got %s", b.Total())
	}

	b[Main] = decimal.NewFromInt(100)
	b[Education] = decimal.NewFromInt(50)
	if !b.Total().Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected total 150, got %s", b.Total())
	}
	if !b.Get("unknown").IsZero() {
		t.Fatalf("absent wallet must read zero")
	}
}
