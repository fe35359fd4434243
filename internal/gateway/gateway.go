package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Payment and payout statuses reported by external providers.
const (
	StatusSuccess = "success"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// InitiateResult is the hand-off payload for a gateway deposit: the caller
// is redirected to the provider checkout and the deposit stays pending until
// Verify confirms it.
type InitiateResult struct {
	Reference   string
	RedirectURL string
}

// VerifyResult reports the provider-side state of a previously initiated
// payment.
type VerifyResult struct {
	Reference string
	Status    string
}

// Client is a payment gateway connector used for card and bank-transfer
// deposits.
type Client interface {
	Initiate(ctx context.Context, amount decimal.Decimal, reference string) (InitiateResult, error)
	Verify(ctx context.Context, reference string) (VerifyResult, error)
}

// PayoutRequest carries the destination details for an external payout. Cash
// payouts use the bank fields; token payouts use the wallet address.
type PayoutRequest struct {
	Reference     string
	Amount        decimal.Decimal
	BankCode      string
	AccountNumber string
	AccountName   string
	TokenAddress  string
}

// PayoutResult is the provider response for a payout attempt.
type PayoutResult struct {
	Reference string
	Status    string
}

// PayoutClient pushes funds to an external destination after a withdrawal
// clears approval.
type PayoutClient interface {
	Transfer(ctx context.Context, req PayoutRequest) (PayoutResult, error)
}
