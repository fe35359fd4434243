package settings

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Setting keys read by the ledger engine. Each carries a stated default used
// whenever the key is absent from the backing store.
const (
	KeyVATRate              = "vat_rate"
	KeyCashWithdrawalFee    = "withdrawal_fee_cash"
	KeyTokenWithdrawalFee   = "withdrawal_fee_token"
	KeyMinCashWithdrawal    = "withdrawal_min_cash"
	KeyMinTokenWithdrawal   = "withdrawal_min_token"
	KeyAutoApproveThreshold = "withdrawal_auto_approve_threshold"
	KeyMaxInterWallet       = "transfer_max_inter_wallet"
)

// Defaults applied when a setting is missing. Amounts are in naira.
var defaults = map[string]string{
	KeyVATRate:              "0.075",
	KeyCashWithdrawalFee:    "100",
	KeyTokenWithdrawalFee:   "0",
	KeyMinCashWithdrawal:    "500",
	KeyMinTokenWithdrawal:   "10",
	KeyAutoApproveThreshold: "100000",
	KeyMaxInterWallet:       "1000000",
}

// Store reads named admin settings. The engine only ever reads; settings are
// mutated by administrative collaborators outside this core.
type Store interface {
	Get(ctx context.Context, key, fallback string) (string, error)
}

// Snapshot is the explicit configuration handed to the engine at call time.
// It replaces ad hoc per-call lookups so tests can supply deterministic
// values without a backing store.
type Snapshot struct {
	VATRate              decimal.Decimal
	CashWithdrawalFee    decimal.Decimal
	TokenWithdrawalFee   decimal.Decimal
	MinCashWithdrawal    decimal.Decimal
	MinTokenWithdrawal   decimal.Decimal
	AutoApproveThreshold decimal.Decimal
	MaxInterWalletAmount decimal.Decimal
}

// DefaultSnapshot returns the documented defaults, used by tests and as the
// base when no store is configured.
func DefaultSnapshot() Snapshot {
	snap, _ := Load(context.Background(), nil)
	return snap
}

// Load assembles a Snapshot from the store, falling back to defaults for
// absent keys. A nil store yields pure defaults.
func Load(ctx context.Context, store Store) (Snapshot, error) {
	get := func(key string) (decimal.Decimal, error) {
		raw := defaults[key]
		if store != nil {
			v, err := store.Get(ctx, key, defaults[key])
			if err != nil {
				return decimal.Zero, fmt.Errorf("read setting %s: %w", key, err)
			}
			raw = v
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("setting %s: invalid value %q: %w", key, raw, err)
		}
		return d, nil
	}

	var snap Snapshot
	var err error
	if snap.VATRate, err = get(KeyVATRate); err != nil {
		return Snapshot{}, err
	}
	if snap.CashWithdrawalFee, err = get(KeyCashWithdrawalFee); err != nil {
		return Snapshot{}, err
	}
	if snap.TokenWithdrawalFee, err = get(KeyTokenWithdrawalFee); err != nil {
		return Snapshot{}, err
	}
	if snap.MinCashWithdrawal, err = get(KeyMinCashWithdrawal); err != nil {
		return Snapshot{}, err
	}
	if snap.MinTokenWithdrawal, err = get(KeyMinTokenWithdrawal); err != nil {
		return Snapshot{}, err
	}
	if snap.AutoApproveThreshold, err = get(KeyAutoApproveThreshold); err != nil {
		return Snapshot{}, err
	}
	if snap.MaxInterWalletAmount, err = get(KeyMaxInterWallet); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
