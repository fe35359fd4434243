package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// SeedBalance is a test helper that sets a wallet balance directly when the
// store is the in-memory implementation.
func SeedBalance(s Store, userID string, kind wallet.Kind, amount decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if _, exists := mem.balances[userID]; !exists {
			mem.balances[userID] = wallet.NewBalances()
		}
		mem.balances[userID][kind] = amount
	}
}

// AllRecords is a test helper that snapshots every record in the in-memory
// store, used by reconciliation assertions.
func AllRecords(s Store) []Record {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		out := make([]Record, len(mem.records))
		copy(out, mem.records)
		return out
	}
	return nil
}
