package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// Type distinguishes cash (bank) withdrawals from token withdrawals.
type Type string

const (
	TypeCash  Type = "cash"
	TypeToken Type = "token"
)

// ParseType converts a wire value into a withdrawal type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeCash, TypeToken:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown withdrawal type %q", s)
	}
}

// Destination holds the payout target. Cash withdrawals need the bank
// fields; token withdrawals need the wallet address.
type Destination struct {
	BankCode      string
	AccountNumber string
	AccountName   string
	TokenAddress  string
}

// Validate checks the destination shape for the withdrawal type.
func (d Destination) Validate(t Type) error {
	switch t {
	case TypeCash:
		if d.BankCode == "" || d.AccountNumber == "" || d.AccountName == "" {
			return fmt.Errorf("cash withdrawals require bank code, account number and account name")
		}
	case TypeToken:
		if d.TokenAddress == "" {
			return fmt.Errorf("token withdrawals require a wallet address")
		}
	}
	return nil
}

// Statuses of a withdrawal request. pending awaits admin action; processing
// awaits the external payout; completed and failed are terminal, failed
// always paired with a compensating refund.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Request is the derived view over a withdrawal's transaction record plus
// its history: the full deduction breakdown and the payout destination.
type Request struct {
	Reference     string
	UserID        string
	Type          Type
	SourceWallet  wallet.Kind
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Tax           decimal.Decimal
	TotalDeducted decimal.Decimal
	Destination   Destination
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	SettledAt     *time.Time
}
