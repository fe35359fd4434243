package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/kobo-pay/kobo_pay/internal/account"
	"github.com/kobo-pay/kobo_pay/internal/events"
	"github.com/kobo-pay/kobo_pay/internal/gateway"
	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/logging"
	"github.com/kobo-pay/kobo_pay/internal/settings"
	"github.com/kobo-pay/kobo_pay/internal/settlement"
	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

func cashInput(amount string) WithdrawInput {
	return WithdrawInput{
		Amount:       dec(amount),
		Type:         settlement.TypeCash,
		SourceWallet: wallet.Main,
		PIN:          testPIN,
		Destination: settlement.Destination{
			BankCode:      "058",
			AccountNumber: "0123456789",
			AccountName:   "Ade Obi",
		},
	}
}

func TestWithdrawDeductsAmountFeeAndQueues(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "1000")

	res, err := f.engine.Withdraw(context.Background(), f.userID, cashInput("500"))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.Fee.Equal(dec("100")) || !res.Tax.IsZero() || !res.TotalDeducted.Equal(dec("600")) {
		t.Fatalf("unexpected breakdown: fee %s tax %s total %s", res.Fee, res.Tax, res.TotalDeducted)
	}
	if res.RequiresApproval || res.Status != settlement.StatusProcessing {
		t.Fatalf("expected auto-approved processing, got %+v", res)
	}
	if got := f.balance(t, wallet.Main); !got.Equal(dec("400")) {
		t.Fatalf("expected 400 after deduction, got %s", got)
	}
	if len(f.sched.refs) != 1 || f.sched.refs[0] != res.Reference {
		t.Fatalf("expected payout submission, got %v", f.sched.refs)
	}

	req, err := f.requests.Get(context.Background(), res.Reference)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Status != settlement.StatusProcessing || !req.TotalDeducted.Equal(dec("600")) {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestWithdrawAboveThresholdAwaitsApproval(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "200000")

	res, err := f.engine.Withdraw(context.Background(), f.userID, cashInput("100000"))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.RequiresApproval || res.Status != settlement.StatusPending {
		t.Fatalf("expected pending approval, got %+v", res)
	}
	if len(f.sched.refs) != 0 {
		t.Fatalf("pending request must not reach the payout queue")
	}

	var sawAdmin bool
	for _, k := range f.outbox.kinds() {
		if k == events.KindAdminActionRequired {
			sawAdmin = true
		}
	}
	if !sawAdmin {
		t.Fatalf("expected admin notification, got %v", f.outbox.kinds())
	}

	// The deduction happens up front either way.
	if got := f.balance(t, wallet.Main); !got.Equal(dec("99900")) {
		t.Fatalf("expected 99900 held back, got %s", got)
	}
}

func TestWithdrawWrongPINFailsBeforeBalanceCheck(t *testing.T) {
	f := newFixture(t)
	// Deliberately no funds: the PIN error must win.
	in := cashInput("500")
	in.PIN = "9999"

	var serr *SecurityError
	if _, err := f.engine.Withdraw(context.Background(), f.userID, in); !errors.As(err, &serr) {
		t.Fatalf("expected security error, got %v", err)
	}
	if recs := ledger.AllRecords(f.store); len(recs) != 0 {
		t.Fatalf("rejected withdrawal must not log records, got %d", len(recs))
	}
}

func TestWithdrawFrozenAccount(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "5000")
	account.SetFlags(f.accounts, f.userID, true, "compliance review", false)

	var ferr *FrozenAccountError
	_, err := f.engine.Withdraw(context.Background(), f.userID, cashInput("2000"))
	if !errors.As(err, &ferr) {
		t.Fatalf("expected frozen error, got %v", err)
	}
	if ferr.Reason != "compliance review" {
		t.Fatalf("freeze reason lost: %q", ferr.Reason)
	}
}

func TestWithdrawBannedAccount(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "5000")
	account.SetFlags(f.accounts, f.userID, false, "", true)

	var berr *BannedError
	if _, err := f.engine.Withdraw(context.Background(), f.userID, cashInput("2000")); !errors.As(err, &berr) {
		t.Fatalf("expected banned error, got %v", err)
	}
}

func TestWithdrawBelowMinimum(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "5000")

	var merr *BelowMinimumError
	if _, err := f.engine.Withdraw(context.Background(), f.userID, cashInput("499")); !errors.As(err, &merr) {
		t.Fatalf("expected below-minimum error, got %v", err)
	}
	if !merr.Minimum.Equal(dec("500")) {
		t.Fatalf("expected minimum 500, got %s", merr.Minimum)
	}
}

func TestWithdrawInsufficientForAmountPlusFee(t *testing.T) {
	f := newFixture(t)
	// Covers the amount but not amount + fee.
	f.seed(t, wallet.Main, "1050")

	var ierr *ledger.InsufficientFundsError
	_, err := f.engine.Withdraw(context.Background(), f.userID, cashInput("1000"))
	if !errors.As(err, &ierr) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if !ierr.Shortfall().Equal(dec("50")) {
		t.Fatalf("expected shortfall 50, got %s", ierr.Shortfall())
	}
	if got := f.balance(t, wallet.Main); !got.Equal(dec("1050")) {
		t.Fatalf("rejected withdrawal mutated balance: %s", got)
	}
}

func TestWithdrawRestrictedWalletLocked(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Education, "50000")
	in := cashInput("2000")
	in.SourceWallet = wallet.Education

	var lerr *LockedWalletError
	if _, err := f.engine.Withdraw(context.Background(), f.userID, in); !errors.As(err, &lerr) {
		t.Fatalf("expected locked wallet error, got %v", err)
	}
	if lerr.Wallet != wallet.Education {
		t.Fatalf("wrong wallet in error: %s", lerr.Wallet)
	}
}

func TestWithdrawRestrictedWalletTaxedAfterRelease(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Education, "50000")
	if _, err := f.svc.ReleaseWallet(context.Background(), f.userID, wallet.Education); err != nil {
		t.Fatalf("release: %v", err)
	}

	in := cashInput("2000")
	in.SourceWallet = wallet.Education
	res, err := f.engine.Withdraw(context.Background(), f.userID, in)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// 7.5% of 2000 = 150, plus the flat 100 cash fee.
	if !res.Tax.Equal(dec("150")) || !res.TotalDeducted.Equal(dec("2250")) {
		t.Fatalf("unexpected breakdown: tax %s total %s", res.Tax, res.TotalDeducted)
	}
	if got := f.balance(t, wallet.Education); !got.Equal(dec("47750")) {
		t.Fatalf("expected 47750, got %s", got)
	}
}

func TestWithdrawTokenMinimumAndNoFee(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "100")

	in := WithdrawInput{
		Amount:       dec("50"),
		Type:         settlement.TypeToken,
		SourceWallet: wallet.Main,
		PIN:          testPIN,
		Destination:  settlement.Destination{TokenAddress: "0xabc123"},
	}
	res, err := f.engine.Withdraw(context.Background(), f.userID, in)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.Fee.IsZero() || !res.TotalDeducted.Equal(dec("50")) {
		t.Fatalf("token withdrawal should carry no fee, got %+v", res)
	}
}

type failingRequests struct {
	settlement.Repository
}

func (failingRequests) Create(context.Context, settlement.Request) error {
	return errors.New("connection reset")
}

func TestWithdrawRequestWriteFailureMovesNoMoney(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "1000")
	eng := New(f.store, f.accounts, settings.NewMemoryStore(),
		map[Channel]gateway.Client{ChannelCard: f.card},
		f.sched, failingRequests{f.requests}, f.outbox, logging.Discard())

	if _, err := eng.Withdraw(context.Background(), f.userID, cashInput("500")); err == nil {
		t.Fatalf("expected request write failure to surface")
	}

	// The deduction and its records share the request row's fate.
	if got := f.balance(t, wallet.Main); !got.Equal(dec("1000")) {
		t.Fatalf("deduction committed without a request row: %s", got)
	}
	if recs := ledger.AllRecords(f.store); len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
	if len(f.sched.refs) != 0 {
		t.Fatalf("nothing should reach the payout queue")
	}
}

func TestWithdrawCashMissingBankDetails(t *testing.T) {
	f := newFixture(t)
	f.seed(t, wallet.Main, "5000")
	in := cashInput("2000")
	in.Destination.AccountNumber = ""

	var verr *ValidationError
	if _, err := f.engine.Withdraw(context.Background(), f.userID, in); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
