package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

var (
	// ErrInsufficientFunds occurs when a debit would push a wallet below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadySettled indicates a settlement was attempted against a record
	// that has already reached a terminal status. Callers must treat this as
	// success of a previous attempt, never as a reason to retry the mutation.
	ErrAlreadySettled = errors.New("already settled")

	// ErrRecordNotFound indicates no record matches the given reference.
	ErrRecordNotFound = errors.New("transaction record not found")
)

// InsufficientFundsError carries the exact shortfall for user-facing messages.
type InsufficientFundsError struct {
	UserID    string
	Wallet    wallet.Kind
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	short := e.Requested.Sub(e.Available)
	return fmt.Sprintf("insufficient funds in %s wallet: need %s, have %s (short %s)",
		e.Wallet, e.Requested.String(), e.Available.String(), short.String())
}

// Is lets errors.Is(err, ErrInsufficientFunds) match the detailed form.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Shortfall is the amount missing from the wallet.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// BalanceChange describes one wallet delta inside an atomic unit. A negative
// delta is a debit and is rejected unless the wallet holds at least |delta|.
type BalanceChange struct {
	UserID string
	Wallet wallet.Kind
	Delta  decimal.Decimal
}

// Refund describes the compensating credit issued when a withdrawal fails
// after its deduction.
type Refund struct {
	Change BalanceChange
	Record Record
}

// HistoryFilter narrows and pages transaction history queries.
type HistoryFilter struct {
	Category Category
	Wallet   wallet.Kind
	Limit    int
	Offset   int
}

// Store is the durable representation of wallet balances plus the immutable
// transaction log. Every mutating method is a single atomic unit: either all
// balance checks pass and every change and record lands, or nothing does; no
// partial application is observable to a concurrent reader.
type Store interface {
	// EnsureAccount provisions zeroed balance rows for a user.
	EnsureAccount(ctx context.Context, userID string) error

	// Balance returns one wallet balance.
	Balance(ctx context.Context, userID string, kind wallet.Kind) (decimal.Decimal, error)

	// Balances returns every wallet balance for the user.
	Balances(ctx context.Context, userID string) (wallet.Balances, error)

	// ApplyAtomic performs the read-check-write for every change and appends
	// every record in one unit. Concurrent debits of the same wallet serialize
	// against each other; a stale balance can never pass the check.
	ApplyAtomic(ctx context.Context, changes []BalanceChange, records []Record) error

	// ApplyAtomicWith is ApplyAtomic with a hook joining the same unit: fn
	// runs after every balance check passes and before anything commits, and
	// an error from fn discards the whole unit. The Postgres store hands fn a
	// context carrying the open transaction (WithTx/TxFrom) so collaborating
	// repositories write inside it.
	ApplyAtomicWith(ctx context.Context, changes []BalanceChange, records []Record, fn func(ctx context.Context) error) error

	// FindByReference returns every record sharing a correlation reference.
	FindByReference(ctx context.Context, reference string) ([]Record, error)

	// History lists a user's records most-recent-first.
	History(ctx context.Context, userID string, f HistoryFilter) ([]Record, error)

	// MarkProcessing advances a pending withdrawal record to processing.
	MarkProcessing(ctx context.Context, reference string) error

	// SettleDeposit completes a pending deposit: credits the wallet, marks the
	// deposit record completed and appends the VAT record, all in one unit.
	// Returns ErrAlreadySettled if the deposit already reached a terminal state.
	SettleDeposit(ctx context.Context, reference string, credit BalanceChange, vat *Record) error

	// SettleWithdrawal drives a non-terminal withdrawal to its terminal state.
	// On success the withdrawal record completes (fee and tax records are
	// created completed and stay so). On failure every record under the
	// reference fails and the refund change plus refund record apply in the
	// same unit. The status compare guarantees the refund is issued at most
	// once per reference.
	SettleWithdrawal(ctx context.Context, reference string, success bool, refund *Refund) error
}
