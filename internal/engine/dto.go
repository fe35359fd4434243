package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/ledger"
)

// DepositRequest captures user-provided data to fund the main wallet.
type DepositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Channel   string          `json:"channel"`
	Reference string          `json:"reference"`
}

// DepositResponse is the API response for deposit actions.
type DepositResponse struct {
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	DepositedAmount decimal.Decimal `json:"deposited_amount"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	RedirectURL     string          `json:"redirect_url,omitempty"`
	ReceiptURL      string          `json:"receipt_url,omitempty"`
}

// WithdrawRequest captures a withdrawal submission.
type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	SourceWallet  string          `json:"source_wallet"`
	PIN           string          `json:"pin"`
	BankCode      string          `json:"bank_code,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	AccountName   string          `json:"account_name,omitempty"`
	TokenAddress  string          `json:"token_address,omitempty"`
}

// WithdrawResponse is the deduction breakdown returned for a withdrawal.
type WithdrawResponse struct {
	Status           string          `json:"status"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	Fee              decimal.Decimal `json:"fee"`
	Tax              decimal.Decimal `json:"tax"`
	TotalDeducted    decimal.Decimal `json:"total_deducted"`
	RequiresApproval bool            `json:"requires_approval"`
}

// InterWalletRequest captures a move between two wallets of one user.
type InterWalletRequest struct {
	FromWallet string          `json:"from_wallet"`
	ToWallet   string          `json:"to_wallet"`
	Amount     decimal.Decimal `json:"amount"`
	PIN        string          `json:"pin"`
}

// UserTransferRequest captures a member-to-member transfer.
type UserTransferRequest struct {
	Recipient    string          `json:"recipient"`
	SourceWallet string          `json:"source_wallet"`
	Amount       decimal.Decimal `json:"amount"`
	Note         string          `json:"note,omitempty"`
	PIN          string          `json:"pin"`
}

// TransactionResponse is one history entry.
type TransactionResponse struct {
	ID            string          `json:"id"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	Reference     string          `json:"reference"`
	Wallet        string          `json:"wallet,omitempty"`
	CounterWallet string          `json:"counter_wallet,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toTransactionResponse(r ledger.Record) TransactionResponse {
	return TransactionResponse{
		ID:            r.ID,
		Category:      string(r.Category),
		Amount:        r.Amount,
		Description:   r.Description,
		Status:        string(r.Status),
		Reference:     r.Reference,
		Wallet:        string(r.Wallet),
		CounterWallet: string(r.CounterWallet),
		CreatedAt:     r.CreatedAt,
	}
}
