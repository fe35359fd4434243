package events

import (
	"context"
	"time"
)

// Kind enumerates the domain events the ledger engine emits on state
// transitions.
type Kind string

const (
	KindDepositPending      Kind = "deposit_pending"
	KindDepositCompleted    Kind = "deposit_completed"
	KindWithdrawalPending   Kind = "withdrawal_pending_approval"
	KindWithdrawalQueued    Kind = "withdrawal_processing"
	KindWithdrawalCompleted Kind = "withdrawal_completed"
	KindWithdrawalFailed    Kind = "withdrawal_failed"
	KindInterWalletMoved    Kind = "inter_wallet_transfer"
	KindTransferSent        Kind = "transfer_sent"
	KindTransferReceived    Kind = "transfer_received"
	KindAdminActionRequired Kind = "admin_action_required"
)

// Event is one domain event. Payload carries event-specific details such as
// amounts and receipt references.
type Event struct {
	Kind       Kind
	UserID     string
	Reference  string
	Payload    map[string]any
	OccurredAt time.Time
}

// Outbox receives events from the engine. Emitting never fails the emitting
// operation: the ledger mutation has already committed by the time an event
// is produced, and a notification problem must never be mistaken for a
// ledger problem.
type Outbox interface {
	Emit(event Event)
}

// Notifier delivers a materialized notification downstream.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}
