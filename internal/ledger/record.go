package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// Category is the typed class of a transaction record.
type Category string

const (
	CategoryDeposit         Category = "deposit"
	CategoryWithdrawalCash  Category = "withdrawal_cash"
	CategoryWithdrawalToken Category = "withdrawal_token"
	CategoryWithdrawalFee   Category = "withdrawal_fee"
	CategoryTaxPayment      Category = "tax_payment"
	CategoryInterWallet     Category = "inter_wallet_transfer"
	CategoryTransferSent    Category = "transfer_sent"
	CategoryTransferRecv    Category = "transfer_received"
	CategoryRefund          Category = "refund"
)

// Status tracks a record along its lifecycle. Records are append-only and
// only ever advance status, never any other field.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a record may move from s to next under the
// normal lifecycle. One exception lives outside this table: when
// Store.SettleWithdrawal reverses a withdrawal, the reference's already
// completed fee and tax records move to failed alongside the principal, so
// CompletedWalletSum keeps matching the refunded balance. No other path may
// leave a terminal status.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Record is one immutable audit-log row for a monetary event. Amount is
// signed: debits are negative. Wallet tags the balance the amount settled
// against; records charged on top of a payment (deposit VAT) or paired with
// reversed debits (refunds) carry no tag so per-wallet sums stay exact.
// Inter-wallet transfers are a single record: Amount is the (negative)
// debit of Wallet and CounterWallet receives the same magnitude.
type Record struct {
	ID            string
	UserID        string
	Category      Category
	Amount        decimal.Decimal
	Description   string
	Status        Status
	Reference     string
	Wallet        wallet.Kind
	CounterWallet wallet.Kind
	CreatedAt     time.Time
}

// CompletedWalletSum folds completed records into the net amount settled
// against one wallet. Together with the balance rows it expresses the
// reconciliation invariant: for every user and wallet, this sum equals the
// stored balance.
func CompletedWalletSum(records []Record, k wallet.Kind) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		if r.Status != StatusCompleted {
			continue
		}
		if r.Category == CategoryInterWallet {
			if r.Wallet == k {
				sum = sum.Add(r.Amount)
			}
			if r.CounterWallet == k {
				sum = sum.Sub(r.Amount)
			}
			continue
		}
		if r.Wallet == k {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}
