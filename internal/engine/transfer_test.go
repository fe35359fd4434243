package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/kobo-pay/kobo_pay/internal/account"
	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

func TestInterWalletTransferZeroSum(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "1000")
	ctx := context.Background()

	res, err := f.engine.TransferInterWallet(ctx, f.userID, wallet.Main, wallet.Education, dec("400"), testPIN)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	main := f.balance(t, wallet.Main)
	edu := f.balance(t, wallet.Education)
	if !main.Equal(dec("600")) || !edu.Equal(dec("400")) {
		t.Fatalf("expected 600/400, got %s/%s", main, edu)
	}
	if !main.Add(edu).Equal(dec("1000")) {
		t.Fatalf("transfer created or destroyed money: %s", main.Add(edu))
	}

	recs, err := f.store.FindByReference(ctx, res.Reference)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected a single dual-tagged record, got %d", len(recs))
	}
	r := recs[0]
	if r.Category != ledger.CategoryInterWallet || !r.Amount.Equal(dec("-400")) ||
		r.Wallet != wallet.Main || r.CounterWallet != wallet.Education {
		t.Fatalf("unexpected record %+v", r)
	}
}

func TestInterWalletTransferSameWalletRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "1000")

	var verr *ValidationError
	_, err := f.engine.TransferInterWallet(context.Background(), f.userID, wallet.Main, wallet.Main, dec("100"), testPIN)
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := f.balance(t, wallet.Main); !got.Equal(dec("1000")) {
		t.Fatalf("rejected transfer mutated balance: %s", got)
	}
	if recs := ledger.AllRecords(f.store); len(recs) != 0 {
		t.Fatalf("rejected transfer logged records: %d", len(recs))
	}
}

func TestInterWalletTransferOverLimit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "2000000")

	var lerr *LimitExceededError
	_, err := f.engine.TransferInterWallet(context.Background(), f.userID, wallet.Main, wallet.Spendable, dec("1000001"), testPIN)
	if !errors.As(err, &lerr) {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestInterWalletTransferInsufficient(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "50")

	if _, err := f.engine.TransferInterWallet(context.Background(), f.userID, wallet.Main, wallet.Spendable, dec("100"), testPIN); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestInterWalletTransferFromRestrictedNeedsRelease(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Car, "5000")

	var lerr *LockedWalletError
	_, err := f.engine.TransferInterWallet(context.Background(), f.userID, wallet.Car, wallet.Main, dec("1000"), testPIN)
	if !errors.As(err, &lerr) {
		t.Fatalf("expected locked wallet error, got %v", err)
	}

	if _, err := f.svc.ReleaseWallet(context.Background(), f.userID, wallet.Car); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := f.engine.TransferInterWallet(context.Background(), f.userID, wallet.Car, wallet.Main, dec("1000"), testPIN); err != nil {
		t.Fatalf("transfer after release: %v", err)
	}
}

func TestUserTransferMovesIntoRecipientMain(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "1000")
	ctx := context.Background()

	recipient, err := f.svc.Register(ctx, account.RegisterInput{
		Username: "bisi", Email: "bisi@example.com", PIN: "5678",
	})
	if err != nil {
		t.Fatalf("register recipient: %v", err)
	}

	res, err := f.engine.TransferToUser(ctx, f.userID, "bisi", wallet.Main, dec("250"), "lunch", testPIN)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.RecipientID != recipient.ID {
		t.Fatalf("wrong recipient resolved")
	}

	if got := f.balance(t, wallet.Main); !got.Equal(dec("750")) {
		t.Fatalf("expected sender at 750, got %s", got)
	}
	recvBal, err := f.store.Balance(ctx, recipient.ID, wallet.Main)
	if err != nil {
		t.Fatalf("recipient balance: %v", err)
	}
	if !recvBal.Equal(dec("250")) {
		t.Fatalf("expected recipient at 250, got %s", recvBal)
	}

	// Both legs logged, each under its own reference.
	sent, err := f.store.History(ctx, f.userID, ledger.HistoryFilter{Category: ledger.CategoryTransferSent})
	if err != nil || len(sent) != 1 {
		t.Fatalf("expected one sent record, got %v %v", sent, err)
	}
	recv, err := f.store.History(ctx, recipient.ID, ledger.HistoryFilter{Category: ledger.CategoryTransferRecv})
	if err != nil || len(recv) != 1 {
		t.Fatalf("expected one received record, got %v %v", recv, err)
	}
	if sent[0].Reference == recv[0].Reference {
		t.Fatalf("legs must carry distinct references")
	}
}

func TestUserTransferRecipientNotFound(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "1000")

	var nerr *RecipientNotFoundError
	_, err := f.engine.TransferToUser(context.Background(), f.userID, "ghost", wallet.Main, dec("100"), "", testPIN)
	if !errors.As(err, &nerr) {
		t.Fatalf("expected recipient-not-found, got %v", err)
	}
	if got := f.balance(t, wallet.Main); !got.Equal(dec("1000")) {
		t.Fatalf("failed transfer mutated balance: %s", got)
	}
}

func TestUserTransferToSelfRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "1000")

	var verr *ValidationError
	_, err := f.engine.TransferToUser(context.Background(), f.userID, "ade", wallet.Main, dec("100"), "", testPIN)
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
