package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/account"
	"github.com/kobo-pay/kobo_pay/internal/events"
	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/metrics"
	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// InterWalletResult reports a completed move between two wallets of one user.
type InterWalletResult struct {
	Reference  string
	Amount     decimal.Decimal
	FromWallet wallet.Kind
	ToWallet   wallet.Kind
}

// TransferInterWallet moves amount between two wallets of the same user.
// Zero-sum, no fee: the decrement and increment commit in one atomic unit
// with a single dual-tagged record.
func (e *Engine) TransferInterWallet(ctx context.Context, userID string, from, to wallet.Kind, amount decimal.Decimal, pin string) (res InterWalletResult, err error) {
	start := time.Now()
	defer func() { metrics.Observe("transfer_inter_wallet", time.Since(start).Seconds(), err) }()

	if from == to {
		return InterWalletResult{}, &ValidationError{Reason: "source and destination wallet are the same"}
	}
	if !amount.IsPositive() {
		return InterWalletResult{}, &ValidationError{Reason: "transfer amount must be positive"}
	}

	if _, err := e.guard(ctx, userID, pin, from, false); err != nil {
		return InterWalletResult{}, err
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return InterWalletResult{}, err
	}
	if amount.GreaterThan(snap.MaxInterWalletAmount) {
		return InterWalletResult{}, &LimitExceededError{Limit: snap.MaxInterWalletAmount, Amount: amount}
	}

	reference := uuid.NewString()
	record := ledger.Record{
		UserID:        userID,
		Category:      ledger.CategoryInterWallet,
		Amount:        amount.Neg(),
		Description:   fmt.Sprintf("Transfer of %s from %s to %s wallet", amount.String(), from, to),
		Status:        ledger.StatusCompleted,
		Reference:     reference,
		Wallet:        from,
		CounterWallet: to,
	}
	changes := []ledger.BalanceChange{
		{UserID: userID, Wallet: from, Delta: amount.Neg()},
		{UserID: userID, Wallet: to, Delta: amount},
	}
	if err := e.store.ApplyAtomic(ctx, changes, []ledger.Record{record}); err != nil {
		return InterWalletResult{}, err
	}

	e.outbox.Emit(events.Event{
		Kind:      events.KindInterWalletMoved,
		UserID:    userID,
		Reference: reference,
		Payload: map[string]any{
			"amount": amount.String(),
			"from":   string(from),
			"to":     string(to),
		},
	})
	return InterWalletResult{Reference: reference, Amount: amount, FromWallet: from, ToWallet: to}, nil
}

// UserTransferResult reports a completed member-to-member transfer.
type UserTransferResult struct {
	Reference         string
	Amount            decimal.Decimal
	RecipientID       string
	RecipientUsername string
}

// TransferToUser moves amount from the sender's source wallet into the
// recipient's main wallet. No fee; both legs and both records commit in one
// atomic unit so no concurrent reader ever observes money in flight.
func (e *Engine) TransferToUser(ctx context.Context, senderID, recipientIdentifier string, source wallet.Kind, amount decimal.Decimal, note, pin string) (res UserTransferResult, err error) {
	start := time.Now()
	defer func() { metrics.Observe("transfer_to_user", time.Since(start).Seconds(), err) }()

	if !amount.IsPositive() {
		return UserTransferResult{}, &ValidationError{Reason: "transfer amount must be positive"}
	}

	if _, err := e.guard(ctx, senderID, pin, source, false); err != nil {
		return UserTransferResult{}, err
	}

	recipient, err := e.accounts.FindByIdentifier(ctx, recipientIdentifier)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return UserTransferResult{}, &RecipientNotFoundError{Identifier: recipientIdentifier}
		}
		return UserTransferResult{}, err
	}
	if recipient.ID == senderID {
		return UserTransferResult{}, &ValidationError{
			Reason: "cannot transfer to yourself, use an inter-wallet transfer instead",
		}
	}

	sentRef := uuid.NewString()
	recvRef := uuid.NewString()
	description := fmt.Sprintf("Transfer of %s to %s", amount.String(), recipient.Username)
	if note != "" {
		description = fmt.Sprintf("%s: %s", description, note)
	}

	records := []ledger.Record{
		{
			UserID:      senderID,
			Category:    ledger.CategoryTransferSent,
			Amount:      amount.Neg(),
			Description: description,
			Status:      ledger.StatusCompleted,
			Reference:   sentRef,
			Wallet:      source,
		},
		{
			UserID:      recipient.ID,
			Category:    ledger.CategoryTransferRecv,
			Amount:      amount,
			Description: fmt.Sprintf("Transfer of %s received", amount.String()),
			Status:      ledger.StatusCompleted,
			Reference:   recvRef,
			Wallet:      wallet.Main,
		},
	}
	changes := []ledger.BalanceChange{
		{UserID: senderID, Wallet: source, Delta: amount.Neg()},
		{UserID: recipient.ID, Wallet: wallet.Main, Delta: amount},
	}
	if err := e.store.ApplyAtomic(ctx, changes, records); err != nil {
		return UserTransferResult{}, err
	}

	e.outbox.Emit(events.Event{
		Kind:      events.KindTransferSent,
		UserID:    senderID,
		Reference: sentRef,
		Payload:   map[string]any{"amount": amount.String(), "recipient": recipient.Username},
	})
	e.outbox.Emit(events.Event{
		Kind:      events.KindTransferReceived,
		UserID:    recipient.ID,
		Reference: recvRef,
		Payload:   map[string]any{"amount": amount.String()},
	})
	return UserTransferResult{
		Reference:         sentRef,
		Amount:            amount,
		RecipientID:       recipient.ID,
		RecipientUsername: recipient.Username,
	}, nil
}
