package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newStoreWithUser(t *testing.T, userID string) Store {
	t.Helper()
	s := NewInMemory()
	if err := s.EnsureAccount(context.Background(), userID); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	return s
}

func TestApplyAtomicMovesMoney(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")
	SeedBalance(s, "alice", wallet.Main, dec("1000"))

	changes := []BalanceChange{
		{UserID: "alice", Wallet: wallet.Main, Delta: dec("-300")},
		{UserID: "alice", Wallet: wallet.Spendable, Delta: dec("300")},
	}
	record := Record{
		UserID:        "alice",
		Category:      CategoryInterWallet,
		Amount:        dec("-300"),
		Status:        StatusCompleted,
		Reference:     "ref-1",
		Wallet:        wallet.Main,
		CounterWallet: wallet.Spendable,
	}
	if err := s.ApplyAtomic(ctx, changes, []Record{record}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	main, _ := s.Balance(ctx, "alice", wallet.Main)
	spend, _ := s.Balance(ctx, "alice", wallet.Spendable)
	if !main.Equal(dec("700")) || !spend.Equal(dec("300")) {
		t.Fatalf("expected 700/300, got %s/%s", main, spend)
	}

	recs, err := s.FindByReference(ctx, "ref-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(recs) != 1 || recs[0].ID == "" || recs[0].CreatedAt.IsZero() {
		t.Fatalf("expected one stamped record, got %+v", recs)
	}
}

func TestApplyAtomicWithHookFailureAppliesNothing(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")
	SeedBalance(s, "alice", wallet.Main, dec("1000"))

	change := BalanceChange{UserID: "alice", Wallet: wallet.Main, Delta: dec("-600")}
	record := Record{
		UserID: "alice", Category: CategoryWithdrawalCash,
		Amount: dec("-500"), Status: StatusProcessing, Reference: "ref-h", Wallet: wallet.Main,
	}
	hookErr := errors.New("connection reset")
	err := s.ApplyAtomicWith(ctx, []BalanceChange{change}, []Record{record}, func(context.Context) error {
		return hookErr
	})
	if !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}

	bal, _ := s.Balance(ctx, "alice", wallet.Main)
	if !bal.Equal(dec("1000")) {
		t.Fatalf("hook failure must not move money, got %s", bal)
	}
	if _, err := s.FindByReference(ctx, "ref-h"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("hook failure must not log records, got %v", err)
	}
}

func TestApplyAtomicWithHookRunsAfterBalanceCheck(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")
	SeedBalance(s, "alice", wallet.Main, dec("100"))

	var hookRan bool
	change := BalanceChange{UserID: "alice", Wallet: wallet.Main, Delta: dec("-600")}
	err := s.ApplyAtomicWith(ctx, []BalanceChange{change}, nil, func(context.Context) error {
		hookRan = true
		return nil
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if hookRan {
		t.Fatalf("hook must not run for a unit that fails its balance check")
	}
}

func TestApplyAtomicAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")
	SeedBalance(s, "alice", wallet.Main, dec("100"))

	// Second change overdraws; the first must not apply either.
	changes := []BalanceChange{
		{UserID: "alice", Wallet: wallet.Main, Delta: dec("-50")},
		{UserID: "alice", Wallet: wallet.Main, Delta: dec("-100")},
	}
	err := s.ApplyAtomic(ctx, changes, []Record{{
		UserID: "alice", Category: CategoryWithdrawalCash,
		Amount: dec("-150"), Status: StatusProcessing, Reference: "ref-x", Wallet: wallet.Main,
	}})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	var detail *InsufficientFundsError
	if !errors.As(err, &detail) {
		t.Fatalf("expected detailed error, got %T", err)
	}
	if !detail.Shortfall().Equal(dec("50")) {
		t.Fatalf("expected shortfall 50, got %s", detail.Shortfall())
	}

	bal, _ := s.Balance(ctx, "alice", wallet.Main)
	if !bal.Equal(dec("100")) {
		t.Fatalf("balance mutated on failed unit: %s", bal)
	}
	if _, err := s.FindByReference(ctx, "ref-x"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("record appended on failed unit")
	}
}

func TestMarkProcessingTransitions(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")
	SeedBalance(s, "alice", wallet.Main, dec("500"))

	record := Record{
		UserID: "alice", Category: CategoryWithdrawalCash,
		Amount: dec("-200"), Status: StatusPending, Reference: "wd-1", Wallet: wallet.Main,
	}
	if err := s.ApplyAtomic(ctx, []BalanceChange{{UserID: "alice", Wallet: wallet.Main, Delta: dec("-200")}}, []Record{record}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := s.MarkProcessing(ctx, "wd-1"); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := s.MarkProcessing(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.SettleWithdrawal(ctx, "wd-1", true, nil); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := s.MarkProcessing(ctx, "wd-1"); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected already settled, got %v", err)
	}
}

func TestSettleWithdrawalRefundExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")
	SeedBalance(s, "alice", wallet.Main, dec("1000"))

	// Deduct 500 + 100 fee in one unit, as the engine does.
	records := []Record{
		{UserID: "alice", Category: CategoryWithdrawalCash, Amount: dec("-500"),
			Status: StatusProcessing, Reference: "wd-2", Wallet: wallet.Main},
		{UserID: "alice", Category: CategoryWithdrawalFee, Amount: dec("-100"),
			Status: StatusCompleted, Reference: "wd-2", Wallet: wallet.Main},
	}
	change := BalanceChange{UserID: "alice", Wallet: wallet.Main, Delta: dec("-600")}
	if err := s.ApplyAtomic(ctx, []BalanceChange{change}, records); err != nil {
		t.Fatalf("apply: %v", err)
	}

	refund := &Refund{
		Change: BalanceChange{UserID: "alice", Wallet: wallet.Main, Delta: dec("600")},
		Record: Record{UserID: "alice", Category: CategoryRefund, Amount: dec("600"),
			Status: StatusCompleted, Reference: "wd-2"},
	}
	if err := s.SettleWithdrawal(ctx, "wd-2", false, refund); err != nil {
		t.Fatalf("settle failure: %v", err)
	}

	bal, _ := s.Balance(ctx, "alice", wallet.Main)
	if !bal.Equal(dec("1000")) {
		t.Fatalf("expected full refund to 1000, got %s", bal)
	}

	// Replays must not double-credit.
	if err := s.SettleWithdrawal(ctx, "wd-2", false, refund); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected already settled, got %v", err)
	}
	bal, _ = s.Balance(ctx, "alice", wallet.Main)
	if !bal.Equal(dec("1000")) {
		t.Fatalf("refund applied twice: %s", bal)
	}

	recs, _ := s.FindByReference(ctx, "wd-2")
	for _, r := range recs {
		switch r.Category {
		case CategoryRefund:
			if r.Status != StatusCompleted {
				t.Fatalf("refund record not completed: %s", r.Status)
			}
		default:
			if r.Status != StatusFailed {
				t.Fatalf("%s record not failed: %s", r.Category, r.Status)
			}
		}
	}
}

func TestSettleDepositIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")

	pending := Record{
		UserID: "alice", Category: CategoryDeposit, Amount: dec("1000"),
		Status: StatusPending, Reference: "dep-1", Wallet: wallet.Main,
	}
	if err := s.ApplyAtomic(ctx, nil, []Record{pending}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	credit := BalanceChange{UserID: "alice", Wallet: wallet.Main, Delta: dec("1000")}
	vat := Record{UserID: "alice", Category: CategoryTaxPayment, Amount: dec("75"),
		Status: StatusCompleted, Reference: "dep-1"}
	if err := s.SettleDeposit(ctx, "dep-1", credit, &vat); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := s.SettleDeposit(ctx, "dep-1", credit, &vat); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected already settled, got %v", err)
	}

	bal, _ := s.Balance(ctx, "alice", wallet.Main)
	if !bal.Equal(dec("1000")) {
		t.Fatalf("expected 1000, got %s", bal)
	}
}

func TestHistoryFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")
	SeedBalance(s, "alice", wallet.Main, dec("1000"))

	seed := []Record{
		{UserID: "alice", Category: CategoryDeposit, Amount: dec("100"), Status: StatusCompleted, Reference: "r1", Wallet: wallet.Main},
		{UserID: "alice", Category: CategoryTransferSent, Amount: dec("-50"), Status: StatusCompleted, Reference: "r2", Wallet: wallet.Main},
		{UserID: "alice", Category: CategoryInterWallet, Amount: dec("-20"), Status: StatusCompleted, Reference: "r3", Wallet: wallet.Main, CounterWallet: wallet.Education},
		{UserID: "bob", Category: CategoryDeposit, Amount: dec("10"), Status: StatusCompleted, Reference: "r4", Wallet: wallet.Main},
	}
	if err := s.ApplyAtomic(ctx, nil, seed); err != nil {
		t.Fatalf("apply: %v", err)
	}

	all, err := s.History(ctx, "alice", HistoryFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	deposits, _ := s.History(ctx, "alice", HistoryFilter{Category: CategoryDeposit})
	if len(deposits) != 1 || deposits[0].Reference != "r1" {
		t.Fatalf("category filter failed: %+v", deposits)
	}

	// The wallet filter matches the counter side of an inter-wallet move too.
	edu, _ := s.History(ctx, "alice", HistoryFilter{Wallet: wallet.Education})
	if len(edu) != 1 || edu[0].Reference != "r3" {
		t.Fatalf("counter-wallet filter failed: %+v", edu)
	}

	paged, _ := s.History(ctx, "alice", HistoryFilter{Limit: 2, Offset: 2})
	if len(paged) != 1 {
		t.Fatalf("paging failed: %+v", paged)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")
	SeedBalance(s, "alice", wallet.Main, dec("100"))

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ApplyAtomic(ctx,
				[]BalanceChange{{UserID: "alice", Wallet: wallet.Main, Delta: dec("-10")}}, nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 debits to pass, got %d", succeeded)
	}
	bal, _ := s.Balance(ctx, "alice", wallet.Main)
	if !bal.Equal(decimal.Zero) {
		t.Fatalf("expected zero, got %s", bal)
	}
}

func TestCompletedWalletSumReconciles(t *testing.T) {
	ctx := context.Background()
	s := newStoreWithUser(t, "alice")

	// Instant deposit 1000, move 300 to education, withdraw 200 from main
	// with a 100 fee, then fail and refund the withdrawal.
	if err := s.ApplyAtomic(ctx,
		[]BalanceChange{{UserID: "alice", Wallet: wallet.Main, Delta: dec("1000")}},
		[]Record{
			{UserID: "alice", Category: CategoryDeposit, Amount: dec("1000"), Status: StatusCompleted, Reference: "d1", Wallet: wallet.Main},
			{UserID: "alice", Category: CategoryTaxPayment, Amount: dec("75"), Status: StatusCompleted, Reference: "d1"},
		}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := s.ApplyAtomic(ctx,
		[]BalanceChange{
			{UserID: "alice", Wallet: wallet.Main, Delta: dec("-300")},
			{UserID: "alice", Wallet: wallet.Education, Delta: dec("300")},
		},
		[]Record{{UserID: "alice", Category: CategoryInterWallet, Amount: dec("-300"), Status: StatusCompleted,
			Reference: "t1", Wallet: wallet.Main, CounterWallet: wallet.Education}}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := s.ApplyAtomic(ctx,
		[]BalanceChange{{UserID: "alice", Wallet: wallet.Main, Delta: dec("-300")}},
		[]Record{
			{UserID: "alice", Category: CategoryWithdrawalCash, Amount: dec("-200"), Status: StatusProcessing, Reference: "w1", Wallet: wallet.Main},
			{UserID: "alice", Category: CategoryWithdrawalFee, Amount: dec("-100"), Status: StatusCompleted, Reference: "w1", Wallet: wallet.Main},
		}); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := s.SettleWithdrawal(ctx, "w1", false, &Refund{
		Change: BalanceChange{UserID: "alice", Wallet: wallet.Main, Delta: dec("300")},
		Record: Record{UserID: "alice", Category: CategoryRefund, Amount: dec("300"), Status: StatusCompleted, Reference: "w1"},
	}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	recs := AllRecords(s)
	for _, k := range wallet.Kinds {
		bal, err := s.Balance(ctx, "alice", k)
		if err != nil {
			t.Fatalf("balance %s: %v", k, err)
		}
		sum := CompletedWalletSum(recs, k)
		if !sum.Equal(bal) {
			t.Fatalf("wallet %s does not reconcile: records sum %s, balance %s", k, sum, bal)
		}
	}
}
