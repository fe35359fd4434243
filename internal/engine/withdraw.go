package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/events"
	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/metrics"
	"github.com/kobo-pay/kobo_pay/internal/settlement"
	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// WithdrawInput captures one withdrawal request.
type WithdrawInput struct {
	Amount       decimal.Decimal
	Type         settlement.Type
	SourceWallet wallet.Kind
	Destination  settlement.Destination
	PIN          string
}

// WithdrawResult is the deduction breakdown returned to the caller.
type WithdrawResult struct {
	Status           settlement.Status
	Reference        string
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Tax              decimal.Decimal
	TotalDeducted    decimal.Decimal
	RequiresApproval bool
}

// Withdraw deducts amount + fee + tax from the source wallet in one atomic
// unit and routes the request by the auto-approval threshold: at or above it
// the request awaits admin action, below it the settlement workflow attempts
// the external payout asynchronously. Preconditions run in a fixed order and
// each failure is a distinct typed error with the precise reason.
func (e *Engine) Withdraw(ctx context.Context, userID string, in WithdrawInput) (res WithdrawResult, err error) {
	start := time.Now()
	defer func() { metrics.Observe("withdraw", time.Since(start).Seconds(), err) }()

	if _, err := e.guard(ctx, userID, in.PIN, in.SourceWallet, true); err != nil {
		return WithdrawResult{}, err
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return WithdrawResult{}, err
	}

	minimum := snap.MinCashWithdrawal
	fee := snap.CashWithdrawalFee
	category := ledger.CategoryWithdrawalCash
	if in.Type == settlement.TypeToken {
		minimum = snap.MinTokenWithdrawal
		fee = snap.TokenWithdrawalFee
		category = ledger.CategoryWithdrawalToken
	}
	if in.Amount.LessThan(minimum) {
		return WithdrawResult{}, &BelowMinimumError{Minimum: minimum, Amount: in.Amount}
	}

	tax := decimal.Zero
	if in.SourceWallet.Restricted() {
		tax = in.Amount.Mul(snap.VATRate).Round(2)
	}
	total := in.Amount.Add(fee).Add(tax)

	available, err := e.store.Balance(ctx, userID, in.SourceWallet)
	if err != nil {
		return WithdrawResult{}, err
	}
	if available.LessThan(total) {
		return WithdrawResult{}, &ledger.InsufficientFundsError{
			UserID:    userID,
			Wallet:    in.SourceWallet,
			Requested: total,
			Available: available,
		}
	}

	if err := in.Destination.Validate(in.Type); err != nil {
		return WithdrawResult{}, &ValidationError{Reason: err.Error()}
	}

	reference := uuid.NewString()
	requiresApproval := in.Amount.GreaterThanOrEqual(snap.AutoApproveThreshold)
	recordStatus := ledger.StatusProcessing
	requestStatus := settlement.StatusProcessing
	if requiresApproval {
		recordStatus = ledger.StatusPending
		requestStatus = settlement.StatusPending
	}

	records := []ledger.Record{{
		UserID:      userID,
		Category:    category,
		Amount:      in.Amount.Neg(),
		Description: fmt.Sprintf("%s withdrawal of %s from %s wallet", in.Type, in.Amount.String(), in.SourceWallet),
		Status:      recordStatus,
		Reference:   reference,
		Wallet:      in.SourceWallet,
	}}
	if fee.IsPositive() {
		records = append(records, ledger.Record{
			UserID:      userID,
			Category:    ledger.CategoryWithdrawalFee,
			Amount:      fee.Neg(),
			Description: fmt.Sprintf("Withdrawal fee of %s (revenue)", fee.String()),
			Status:      ledger.StatusCompleted,
			Reference:   reference,
			Wallet:      in.SourceWallet,
		})
	}
	if tax.IsPositive() {
		records = append(records, ledger.Record{
			UserID:      userID,
			Category:    ledger.CategoryTaxPayment,
			Amount:      tax.Neg(),
			Description: fmt.Sprintf("Tax at 7.5%% on %s wallet withdrawal", in.SourceWallet),
			Status:      ledger.StatusCompleted,
			Reference:   reference,
			Wallet:      in.SourceWallet,
		})
	}

	req := settlement.Request{
		Reference:     reference,
		UserID:        userID,
		Type:          in.Type,
		SourceWallet:  in.SourceWallet,
		Amount:        in.Amount,
		Fee:           fee,
		Tax:           tax,
		TotalDeducted: total,
		Destination:   in.Destination,
		Status:        requestStatus,
		CreatedAt:     time.Now().UTC(),
	}

	// The request row joins the deduction's atomic unit: if it cannot be
	// written, no money moves and no records land.
	change := ledger.BalanceChange{UserID: userID, Wallet: in.SourceWallet, Delta: total.Neg()}
	err = e.store.ApplyAtomicWith(ctx, []ledger.BalanceChange{change}, records, func(ctx context.Context) error {
		return e.requests.Create(ctx, req)
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	if requiresApproval {
		e.outbox.Emit(events.Event{
			Kind:      events.KindWithdrawalPending,
			UserID:    userID,
			Reference: reference,
			Payload:   map[string]any{"amount": in.Amount.String()},
		})
		e.outbox.Emit(events.Event{
			Kind:      events.KindAdminActionRequired,
			UserID:    userID,
			Reference: reference,
			Payload:   map[string]any{"amount": in.Amount.String(), "type": string(in.Type)},
		})
	} else {
		e.scheduler.Submit(reference)
		e.outbox.Emit(events.Event{
			Kind:      events.KindWithdrawalQueued,
			UserID:    userID,
			Reference: reference,
			Payload:   map[string]any{"amount": in.Amount.String(), "total": total.String()},
		})
	}

	return WithdrawResult{
		Status:           requestStatus,
		Reference:        reference,
		Amount:           in.Amount,
		Fee:              fee,
		Tax:              tax,
		TotalDeducted:    total,
		RequiresApproval: requiresApproval,
	}, nil
}
