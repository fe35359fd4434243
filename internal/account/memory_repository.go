package account

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	unlocks  []Unlock
}

// NewMemoryRepository constructs an in-memory repository for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[acct.ID]; exists {
		return errors.New("account exists")
	}
	for _, a := range r.accounts {
		if a.Username == acct.Username || (acct.Email != "" && a.Email == acct.Email) {
			return errors.New("username or email taken")
		}
	}
	r.accounts[acct.ID] = acct
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) FindByIdentifier(_ context.Context, identifier string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username == identifier || a.Email == identifier {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepository) UpdatePIN(_ context.Context, id string, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PINHash = hash
	r.accounts[id] = a
	return nil
}

func (r *memoryRepository) HasReleasedUnlock(_ context.Context, userID string, kind wallet.Kind) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.unlocks {
		if u.UserID == userID && u.Wallet == string(kind) && u.Status == UnlockReleased {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) CreateUnlock(_ context.Context, unlock Unlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if unlock.ID == "" {
		unlock.ID = uuid.NewString()
	}
	if unlock.CreatedAt.IsZero() {
		unlock.CreatedAt = time.Now().UTC()
	}
	r.unlocks = append(r.unlocks, unlock)
	return nil
}

// SetFlags is a test helper that toggles administrative holds on an account.
func SetFlags(repo Repository, id string, frozen bool, reason string, banned bool) {
	if mem, ok := repo.(*memoryRepository); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		a := mem.accounts[id]
		a.Frozen = frozen
		a.FreezeReason = reason
		a.WithdrawalBanned = banned
		mem.accounts[id] = a
	}
}
