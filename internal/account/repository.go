package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// ErrNotFound indicates no account matches the lookup.
var ErrNotFound = errors.New("account not found")

// Repository persists account profiles and restricted-wallet unlock records.
type Repository interface {
	Create(ctx context.Context, acct Account) error
	Get(ctx context.Context, id string) (Account, error)
	// FindByIdentifier resolves a username or email to an account.
	FindByIdentifier(ctx context.Context, identifier string) (Account, error)
	UpdatePIN(ctx context.Context, id string, hash []byte) error
	// HasReleasedUnlock reports whether at least one released unlock record
	// exists for the wallet.
	HasReleasedUnlock(ctx context.Context, userID string, kind wallet.Kind) (bool, error)
	CreateUnlock(ctx context.Context, unlock Unlock) error
}

// PostgresRepository stores accounts in PostgreSQL. The accounts table also
// carries the balance columns owned by the ledger store; this repository only
// touches the profile columns.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, acct Account) error {
	id, err := uuid.Parse(acct.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts
        (id, username, email, pin_hash, frozen, freeze_reason, withdrawal_banned, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, acct.Username, acct.Email, acct.PINHash, acct.Frozen,
		acct.FreezeReason, acct.WithdrawalBanned, acct.CreatedAt.UTC())
	return err
}

const accountColumns = `id, username, email, pin_hash, frozen, freeze_reason, withdrawal_banned, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var id uuid.UUID
	var createdAt time.Time
	if err := row.Scan(&id, &a.Username, &a.Email, &a.PINHash, &a.Frozen,
		&a.FreezeReason, &a.WithdrawalBanned, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.ID = id.String()
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, uid)
	return scanAccount(row)
}

func (r *PostgresRepository) FindByIdentifier(ctx context.Context, identifier string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE username = $1 OR email = $1`, identifier)
	return scanAccount(row)
}

func (r *PostgresRepository) UpdatePIN(ctx context.Context, id string, hash []byte) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET pin_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) HasReleasedUnlock(ctx context.Context, userID string, kind wallet.Kind) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
        SELECT 1 FROM wallet_unlocks WHERE user_id = $1 AND wallet = $2 AND status = $3)`,
		userID, string(kind), string(UnlockReleased)).Scan(&exists)
	return exists, err
}

func (r *PostgresRepository) CreateUnlock(ctx context.Context, unlock Unlock) error {
	if unlock.ID == "" {
		unlock.ID = uuid.NewString()
	}
	if unlock.CreatedAt.IsZero() {
		unlock.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `INSERT INTO wallet_unlocks (id, user_id, wallet, status, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		unlock.ID, unlock.UserID, unlock.Wallet, string(unlock.Status), unlock.CreatedAt.UTC())
	return err
}
