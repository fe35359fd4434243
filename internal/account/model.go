package account

import "time"

// Account is one member's profile as the ledger core sees it: identity for
// recipient resolution, the transaction PIN hash, and administrative holds.
// Wallet balances live in the ledger store keyed by the account id.
type Account struct {
	ID               string
	Username         string
	Email            string
	PINHash          []byte
	Frozen           bool
	FreezeReason     string
	WithdrawalBanned bool
	CreatedAt        time.Time
}

// UnlockStatus tracks the lifecycle of a restricted-wallet unlock event.
type UnlockStatus string

const (
	UnlockPending  UnlockStatus = "pending"
	UnlockReleased UnlockStatus = "released"
)

// Unlock records an external release event for a restricted wallet. A wallet
// is considered unlocked once any released record exists for it.
type Unlock struct {
	ID        string
	UserID    string
	Wallet    string
	Status    UnlockStatus
	CreatedAt time.Time
}
