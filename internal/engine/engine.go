package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/account"
	"github.com/kobo-pay/kobo_pay/internal/events"
	"github.com/kobo-pay/kobo_pay/internal/gateway"
	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/metrics"
	"github.com/kobo-pay/kobo_pay/internal/settings"
	"github.com/kobo-pay/kobo_pay/internal/settlement"
	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// Channel selects how a deposit is funded.
type Channel string

const (
	ChannelCard     Channel = "card"
	ChannelTransfer Channel = "transfer"
	// ChannelInstant settles immediately with no gateway round-trip.
	ChannelInstant Channel = "instant"
)

// ParseChannel converts a wire value into a deposit channel.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelCard, ChannelTransfer, ChannelInstant:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("unknown deposit channel %q", s)
	}
}

// Engine performs validated, atomic mutations of wallet balances plus their
// transaction records. Money is never created or destroyed except through an
// explicit, logged fee or tax line; the settlement workflow is the only path
// that reverses a completed deduction.
type Engine struct {
	store     ledger.Store
	accounts  account.Repository
	settings  settings.Store
	gateways  map[Channel]gateway.Client
	scheduler settlement.Scheduler
	requests  settlement.Repository
	outbox    events.Outbox
	logger    *slog.Logger
}

// New wires the engine. gateways may omit channels with no credentials;
// requesting such a channel yields a ConfigurationError.
func New(store ledger.Store, accounts account.Repository, settingsStore settings.Store,
	gateways map[Channel]gateway.Client, scheduler settlement.Scheduler,
	requests settlement.Repository, outbox events.Outbox, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		accounts:  accounts,
		settings:  settingsStore,
		gateways:  gateways,
		scheduler: scheduler,
		requests:  requests,
		outbox:    outbox,
		logger:    logger,
	}
}

func (e *Engine) snapshot(ctx context.Context) (settings.Snapshot, error) {
	return settings.Load(ctx, e.settings)
}

// guard runs the shared withdrawal/transfer preconditions in their required
// order: PIN, administrative holds, then the restricted-wallet unlock for
// the source wallet. Each failure is a distinct typed error, raised before
// any balance is read.
func (e *Engine) guard(ctx context.Context, userID, pin string, source wallet.Kind, checkBan bool) (account.Account, error) {
	acct, err := e.accounts.Get(ctx, userID)
	if err != nil {
		return account.Account{}, err
	}
	if len(acct.PINHash) == 0 {
		return account.Account{}, &SecurityError{Reason: "no transaction PIN configured"}
	}
	if !account.VerifyPIN(acct, pin) {
		return account.Account{}, &SecurityError{Reason: "invalid transaction PIN"}
	}
	if acct.Frozen {
		return account.Account{}, &FrozenAccountError{Reason: acct.FreezeReason}
	}
	if checkBan && acct.WithdrawalBanned {
		return account.Account{}, &BannedError{}
	}
	if source.Restricted() {
		unlocked, err := e.accounts.HasReleasedUnlock(ctx, userID, source)
		if err != nil {
			return account.Account{}, err
		}
		if !unlocked {
			return account.Account{}, &LockedWalletError{Wallet: source}
		}
	}
	return acct, nil
}

// DepositResult is the outcome of a deposit request.
type DepositResult struct {
	Status          ledger.Status
	Reference       string
	DepositedAmount decimal.Decimal
	VATAmount       decimal.Decimal
	TotalPaid       decimal.Decimal
	RedirectURL     string
	ReceiptURL      string
}

// Deposit funds the main wallet. Gateway channels return a redirect payload
// and settle on confirmation; the instant channel credits immediately. VAT
// at the configured rate is charged on top of the deposited amount.
func (e *Engine) Deposit(ctx context.Context, userID string, amount decimal.Decimal, channel Channel, reference string) (res DepositResult, err error) {
	start := time.Now()
	defer func() { metrics.Observe("deposit", time.Since(start).Seconds(), err) }()

	if !amount.IsPositive() {
		return DepositResult{}, &ValidationError{Reason: "deposit amount must be positive"}
	}
	if _, err := e.accounts.Get(ctx, userID); err != nil {
		return DepositResult{}, err
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return DepositResult{}, err
	}
	vat := amount.Mul(snap.VATRate).Round(2)
	total := amount.Add(vat)

	if reference == "" {
		reference = uuid.NewString()
	}

	if channel == ChannelInstant {
		records := []ledger.Record{
			{
				UserID:      userID,
				Category:    ledger.CategoryDeposit,
				Amount:      amount,
				Description: fmt.Sprintf("Instant deposit of %s", amount.String()),
				Status:      ledger.StatusCompleted,
				Reference:   reference,
				Wallet:      wallet.Main,
			},
			vatRecord(userID, reference, vat),
		}
		change := ledger.BalanceChange{UserID: userID, Wallet: wallet.Main, Delta: amount}
		if err := e.store.ApplyAtomic(ctx, []ledger.BalanceChange{change}, records); err != nil {
			return DepositResult{}, err
		}
		e.outbox.Emit(events.Event{
			Kind:      events.KindDepositCompleted,
			UserID:    userID,
			Reference: reference,
			Payload:   map[string]any{"amount": amount.String(), "receipt": "rcpt-" + reference},
		})
		return DepositResult{
			Status:          ledger.StatusCompleted,
			Reference:       reference,
			DepositedAmount: amount,
			VATAmount:       vat,
			TotalPaid:       total,
			ReceiptURL:      "/receipts/" + reference,
		}, nil
	}

	client, ok := e.gateways[channel]
	if !ok || client == nil {
		return DepositResult{}, &ConfigurationError{
			Reason: fmt.Sprintf("no active credentials for the %s gateway", channel),
		}
	}

	pending := ledger.Record{
		UserID:      userID,
		Category:    ledger.CategoryDeposit,
		Amount:      amount,
		Description: fmt.Sprintf("Deposit of %s via %s", amount.String(), channel),
		Status:      ledger.StatusPending,
		Reference:   reference,
		Wallet:      wallet.Main,
	}
	if err := e.store.ApplyAtomic(ctx, nil, []ledger.Record{pending}); err != nil {
		return DepositResult{}, err
	}

	handoff, err := client.Initiate(ctx, total, reference)
	if err != nil {
		return DepositResult{}, &ExternalServiceError{Op: "initiate deposit", Err: err}
	}
	e.outbox.Emit(events.Event{
		Kind:      events.KindDepositPending,
		UserID:    userID,
		Reference: reference,
		Payload:   map[string]any{"amount": amount.String(), "channel": string(channel)},
	})
	return DepositResult{
		Status:          ledger.StatusPending,
		Reference:       reference,
		DepositedAmount: amount,
		VATAmount:       vat,
		TotalPaid:       total,
		RedirectURL:     handoff.RedirectURL,
	}, nil
}

func vatRecord(userID, reference string, vat decimal.Decimal) ledger.Record {
	// No wallet tag: VAT is charged on top of the payment and never passes
	// through a wallet balance.
	return ledger.Record{
		UserID:      userID,
		Category:    ledger.CategoryTaxPayment,
		Amount:      vat,
		Description: "VAT at 7.5% on deposit",
		Status:      ledger.StatusCompleted,
		Reference:   reference,
	}
}

// ConfirmDeposit settles a pending gateway deposit after external
// confirmation. References already terminal return their existing outcome,
// so gateway callbacks can be replayed safely. Abandoned checkouts simply
// stay pending.
func (e *Engine) ConfirmDeposit(ctx context.Context, reference string, channel Channel) (res DepositResult, err error) {
	start := time.Now()
	defer func() { metrics.Observe("confirm_deposit", time.Since(start).Seconds(), err) }()

	recs, err := e.store.FindByReference(ctx, reference)
	if err != nil {
		return DepositResult{}, err
	}
	var dep *ledger.Record
	for i := range recs {
		if recs[i].Category == ledger.CategoryDeposit {
			dep = &recs[i]
			break
		}
	}
	if dep == nil {
		return DepositResult{}, ledger.ErrRecordNotFound
	}
	if dep.Status.Terminal() {
		return e.depositOutcome(ctx, *dep)
	}

	client, ok := e.gateways[channel]
	if !ok || client == nil {
		return DepositResult{}, &ConfigurationError{
			Reason: fmt.Sprintf("no active credentials for the %s gateway", channel),
		}
	}
	verdict, err := client.Verify(ctx, reference)
	if err != nil {
		return DepositResult{}, &ExternalServiceError{Op: "verify deposit", Err: err}
	}
	if verdict.Status != gateway.StatusSuccess {
		return DepositResult{Status: dep.Status, Reference: reference, DepositedAmount: dep.Amount}, nil
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return DepositResult{}, err
	}
	vat := dep.Amount.Mul(snap.VATRate).Round(2)
	credit := ledger.BalanceChange{UserID: dep.UserID, Wallet: wallet.Main, Delta: dep.Amount}
	vr := vatRecord(dep.UserID, reference, vat)
	if err := e.store.SettleDeposit(ctx, reference, credit, &vr); err != nil {
		if errors.Is(err, ledger.ErrAlreadySettled) {
			return e.depositOutcome(ctx, *dep)
		}
		return DepositResult{}, err
	}
	e.outbox.Emit(events.Event{
		Kind:      events.KindDepositCompleted,
		UserID:    dep.UserID,
		Reference: reference,
		Payload:   map[string]any{"amount": dep.Amount.String(), "receipt": "rcpt-" + reference},
	})
	return DepositResult{
		Status:          ledger.StatusCompleted,
		Reference:       reference,
		DepositedAmount: dep.Amount,
		VATAmount:       vat,
		TotalPaid:       dep.Amount.Add(vat),
		ReceiptURL:      "/receipts/" + reference,
	}, nil
}

func (e *Engine) depositOutcome(ctx context.Context, dep ledger.Record) (DepositResult, error) {
	res := DepositResult{
		Status:          dep.Status,
		Reference:       dep.Reference,
		DepositedAmount: dep.Amount,
	}
	if dep.Status == ledger.StatusCompleted {
		res.ReceiptURL = "/receipts/" + dep.Reference
	}
	return res, nil
}

// Balances returns every wallet balance for the user.
func (e *Engine) Balances(ctx context.Context, userID string) (wallet.Balances, error) {
	if _, err := e.accounts.Get(ctx, userID); err != nil {
		return nil, err
	}
	return e.store.Balances(ctx, userID)
}

// History lists the user's transaction records most-recent-first.
func (e *Engine) History(ctx context.Context, userID string, f ledger.HistoryFilter) ([]ledger.Record, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	return e.store.History(ctx, userID, f)
}
