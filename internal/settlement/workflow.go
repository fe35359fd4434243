package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kobo-pay/kobo_pay/internal/events"
	"github.com/kobo-pay/kobo_pay/internal/gateway"
	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/metrics"
)

// Scheduler is the engine-facing hand-off: a withdrawal that clears
// auto-approval is submitted here and resolved asynchronously.
type Scheduler interface {
	Submit(reference string)
}

// ErrNotPending indicates an admin action against a request that already
// left the pending state.
var ErrNotPending = errors.New("withdrawal request is not pending approval")

// Workflow is the approval/settlement state machine over withdrawal
// requests. Auto-approved requests flow processing -> completed|failed; a
// failure always issues the compensating refund through the ledger store's
// settlement unit, which is the only path that returns deducted fee and tax
// money to a wallet.
type Workflow struct {
	store          ledger.Store
	repo           Repository
	payout         gateway.PayoutClient
	outbox         events.Outbox
	logger         *slog.Logger
	attemptTimeout time.Duration
	pollInterval   time.Duration

	queue chan string

	mu       sync.Mutex
	inflight map[string]bool
}

// NewWorkflow builds the settlement workflow.
func NewWorkflow(store ledger.Store, repo Repository, payout gateway.PayoutClient,
	outbox events.Outbox, logger *slog.Logger, attemptTimeout, pollInterval time.Duration) *Workflow {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Workflow{
		store:          store,
		repo:           repo,
		payout:         payout,
		outbox:         outbox,
		logger:         logger,
		attemptTimeout: attemptTimeout,
		pollInterval:   pollInterval,
		queue:          make(chan string, 128),
		inflight:       make(map[string]bool),
	}
}

// Submit queues a processing withdrawal for its payout attempt. A full queue
// is not fatal: the recovery poll re-discovers processing requests.
func (w *Workflow) Submit(reference string) {
	select {
	case w.queue <- reference:
	default:
		w.logger.Warn("settlement queue full, deferring to recovery poll", "reference", reference)
	}
}

// Run drains the queue and periodically re-scans for processing requests
// left over from a restart. It returns when the context is cancelled.
func (w *Workflow) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case reference := <-w.queue:
			w.settle(ctx, reference)
		case <-ticker.C:
			w.recover(ctx)
		}
	}
}

func (w *Workflow) recover(ctx context.Context) {
	stale, err := w.repo.ListByStatus(ctx, StatusProcessing, 50)
	if err != nil {
		w.logger.Error("settlement recovery scan failed", "error", err)
		return
	}
	for _, req := range stale {
		w.settle(ctx, req.Reference)
	}
}

// settle runs one payout attempt and drives the request to a terminal state.
// Safe to call repeatedly for the same reference: the ledger's status
// compare rejects a second settlement, so a refund can never double-credit.
func (w *Workflow) settle(ctx context.Context, reference string) {
	w.mu.Lock()
	if w.inflight[reference] {
		w.mu.Unlock()
		return
	}
	w.inflight[reference] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inflight, reference)
		w.mu.Unlock()
	}()

	req, err := w.repo.Get(ctx, reference)
	if err != nil {
		w.logger.Error("settlement lookup failed", "reference", reference, "error", err)
		return
	}
	if req.Status != StatusProcessing {
		return
	}

	// The ledger is authoritative. A crash between the ledger settlement and
	// the request row update leaves the row processing; checking the record
	// here stops a second payout for money the ledger already returned.
	records, err := w.store.FindByReference(ctx, reference)
	if err != nil {
		w.logger.Error("settlement record lookup failed", "reference", reference, "error", err)
		return
	}
	if rec, ok := withdrawalRecord(records); ok && rec.Status.Terminal() {
		w.reconcile(ctx, req, rec.Status)
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.attemptTimeout)
	result, err := w.payout.Transfer(attemptCtx, gateway.PayoutRequest{
		Reference:     req.Reference,
		Amount:        req.Amount,
		BankCode:      req.Destination.BankCode,
		AccountNumber: req.Destination.AccountNumber,
		AccountName:   req.Destination.AccountName,
		TokenAddress:  req.Destination.TokenAddress,
	})
	cancel()

	if err == nil && result.Status == gateway.StatusSuccess {
		w.complete(ctx, req)
		return
	}
	reason := "payout attempt failed"
	if err != nil {
		reason = err.Error()
	}
	w.fail(ctx, req, reason)
}

// withdrawalRecord picks the principal withdrawal record out of a reference's
// record set.
func withdrawalRecord(records []ledger.Record) (ledger.Record, bool) {
	for _, r := range records {
		if r.Category == ledger.CategoryWithdrawalCash || r.Category == ledger.CategoryWithdrawalToken {
			return r, true
		}
	}
	return ledger.Record{}, false
}

// reconcile aligns the request row with the ledger's terminal verdict so the
// worker stops revisiting it.
func (w *Workflow) reconcile(ctx context.Context, req Request, verdict ledger.Status) {
	status := StatusCompleted
	reason := ""
	if verdict == ledger.StatusFailed {
		status = StatusFailed
		reason = req.FailureReason
		if reason == "" {
			reason = "payout failed; refund already issued"
		}
	}
	if req.Status == status {
		return
	}
	if err := w.repo.UpdateStatus(ctx, req.Reference, status, reason); err != nil {
		w.logger.Error("request reconciliation failed", "reference", req.Reference, "error", err)
	}
}

// syncFromLedger repairs a request row whose terminal update was lost.
func (w *Workflow) syncFromLedger(ctx context.Context, req Request) {
	records, err := w.store.FindByReference(ctx, req.Reference)
	if err != nil {
		w.logger.Error("settlement record lookup failed", "reference", req.Reference, "error", err)
		return
	}
	if rec, ok := withdrawalRecord(records); ok && rec.Status.Terminal() {
		w.reconcile(ctx, req, rec.Status)
	}
}

func (w *Workflow) complete(ctx context.Context, req Request) {
	if err := w.store.SettleWithdrawal(ctx, req.Reference, true, nil); err != nil {
		if errors.Is(err, ledger.ErrAlreadySettled) {
			w.syncFromLedger(ctx, req)
			return
		}
		w.logger.Error("ledger completion failed", "reference", req.Reference, "error", err)
		return
	}
	if err := w.repo.UpdateStatus(ctx, req.Reference, StatusCompleted, ""); err != nil {
		w.logger.Error("request completion update failed", "reference", req.Reference, "error", err)
	}
	metrics.SettlementsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	w.outbox.Emit(events.Event{
		Kind:      events.KindWithdrawalCompleted,
		UserID:    req.UserID,
		Reference: req.Reference,
		Payload: map[string]any{
			"amount":  req.Amount.String(),
			"receipt": "rcpt-" + req.Reference,
		},
	})
}

// fail issues the compensating refund: the full deduction (amount + fee +
// tax) returns to the source wallet in one atomic unit with the refund
// record, and only then is anyone notified.
func (w *Workflow) fail(ctx context.Context, req Request, reason string) {
	refund := &ledger.Refund{
		Change: ledger.BalanceChange{
			UserID: req.UserID,
			Wallet: req.SourceWallet,
			Delta:  req.TotalDeducted,
		},
		Record: ledger.Record{
			UserID:      req.UserID,
			Category:    ledger.CategoryRefund,
			Amount:      req.TotalDeducted,
			Description: fmt.Sprintf("Refund of failed %s withdrawal to %s wallet", req.Type, req.SourceWallet),
			Status:      ledger.StatusCompleted,
			Reference:   req.Reference,
		},
	}
	if err := w.store.SettleWithdrawal(ctx, req.Reference, false, refund); err != nil {
		if errors.Is(err, ledger.ErrAlreadySettled) {
			w.syncFromLedger(ctx, req)
			return
		}
		w.logger.Error("refund failed, will retry on recovery poll", "reference", req.Reference, "error", err)
		return
	}
	if err := w.repo.UpdateStatus(ctx, req.Reference, StatusFailed, reason); err != nil {
		w.logger.Error("request failure update failed", "reference", req.Reference, "error", err)
	}
	metrics.SettlementsTotal.WithLabelValues(string(StatusFailed)).Inc()
	w.outbox.Emit(events.Event{
		Kind:      events.KindWithdrawalFailed,
		UserID:    req.UserID,
		Reference: req.Reference,
		Payload: map[string]any{
			"refunded": req.TotalDeducted.String(),
			"reason":   reason,
		},
	})
}

// Approve moves a pending withdrawal into processing and queues its payout.
func (w *Workflow) Approve(ctx context.Context, reference string) error {
	req, err := w.repo.Get(ctx, reference)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}
	if err := w.store.MarkProcessing(ctx, reference); err != nil {
		return err
	}
	if err := w.repo.UpdateStatus(ctx, reference, StatusProcessing, ""); err != nil {
		return err
	}
	w.Submit(reference)
	return nil
}

// Reject fails a pending withdrawal and refunds the full deduction.
func (w *Workflow) Reject(ctx context.Context, reference, reason string) error {
	req, err := w.repo.Get(ctx, reference)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return ErrNotPending
	}
	if reason == "" {
		reason = "rejected by administrator"
	}
	w.fail(ctx, req, reason)
	return nil
}

// Request lookup for handlers.
func (w *Workflow) Get(ctx context.Context, reference string) (Request, error) {
	return w.repo.Get(ctx, reference)
}
