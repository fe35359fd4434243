package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// Service manages account lifecycle: registration, PIN handling and
// restricted-wallet unlock events. Balance provisioning is delegated to the
// ledger store so an account always has zeroed wallets from creation.
type Service struct {
	repo   Repository
	ledger ledger.Store
}

// NewService creates an account service.
func NewService(repo Repository, ledgerStore ledger.Store) *Service {
	return &Service{repo: repo, ledger: ledgerStore}
}

// RegisterInput captures data required to open an account.
type RegisterInput struct {
	Username string
	Email    string
	PIN      string
}

// Register creates an account with a hashed transaction PIN and provisions
// its wallet balances.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Account, error) {
	if input.Username == "" {
		return Account{}, errors.New("username is required")
	}
	if len(input.PIN) < 4 {
		return Account{}, errors.New("PIN must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.PIN), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		ID:        uuid.NewString(),
		Username:  input.Username,
		Email:     input.Email,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		return Account{}, err
	}
	if err := s.ledger.EnsureAccount(ctx, acct.ID); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.Get(ctx, id)
}

// VerifyPIN compares the stored hash against the provided PIN.
func VerifyPIN(acct Account, pin string) bool {
	if len(acct.PINHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(acct.PINHash, []byte(pin)) == nil
}

// ReleaseWallet records a released unlock event for a restricted wallet,
// making it available for withdrawal and transfer.
func (s *Service) ReleaseWallet(ctx context.Context, userID string, kind wallet.Kind) (Unlock, error) {
	if !kind.Restricted() {
		return Unlock{}, errors.New("wallet is not restricted")
	}
	if _, err := s.repo.Get(ctx, userID); err != nil {
		return Unlock{}, err
	}
	unlock := Unlock{
		ID:        uuid.NewString(),
		UserID:    userID,
		Wallet:    string(kind),
		Status:    UnlockReleased,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUnlock(ctx, unlock); err != nil {
		return Unlock{}, err
	}
	return unlock, nil
}
