package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// The engine rejects operations with precise, typed business errors. Every
// message names the exact reason (minimum, shortfall, freeze reason); callers
// surface them verbatim and must never retry them automatically.

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// SecurityError reports a transaction PIN mismatch or missing PIN.
type SecurityError struct {
	Reason string
}

func (e *SecurityError) Error() string { return e.Reason }

// FrozenAccountError reports an administrative freeze, carrying its reason.
type FrozenAccountError struct {
	Reason string
}

func (e *FrozenAccountError) Error() string {
	if e.Reason == "" {
		return "account is frozen"
	}
	return fmt.Sprintf("account is frozen: %s", e.Reason)
}

// BannedError reports a withdrawal ban on the account.
type BannedError struct{}

func (e *BannedError) Error() string { return "account is banned from withdrawals" }

// LockedWalletError reports a restricted wallet with no released unlock.
type LockedWalletError struct {
	Wallet wallet.Kind
}

func (e *LockedWalletError) Error() string {
	return fmt.Sprintf("%s wallet is locked until your package is released", e.Wallet)
}

// BelowMinimumError reports an amount under the configured minimum.
type BelowMinimumError struct {
	Minimum decimal.Decimal
	Amount  decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("amount %s is below the minimum of %s", e.Amount.String(), e.Minimum.String())
}

// LimitExceededError reports an amount over the configured maximum.
type LimitExceededError struct {
	Limit  decimal.Decimal
	Amount decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("amount %s exceeds the transfer limit of %s", e.Amount.String(), e.Limit.String())
}

// RecipientNotFoundError reports a failed recipient resolution.
type RecipientNotFoundError struct {
	Identifier string
}

func (e *RecipientNotFoundError) Error() string {
	return fmt.Sprintf("no member found for %q", e.Identifier)
}

// ConfigurationError reports a requested gateway with no active credentials.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

// ExternalServiceError wraps a gateway or payout call failure.
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: external service error: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
