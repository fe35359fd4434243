package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kobo-pay/kobo_pay/internal/ledger"
	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// ErrRequestNotFound indicates no withdrawal request matches the reference.
var ErrRequestNotFound = errors.New("withdrawal request not found")

// Repository persists withdrawal requests.
type Repository interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, reference string) (Request, error)
	UpdateStatus(ctx context.Context, reference string, status Status, failureReason string) error
	// ListByStatus returns requests in the given status, oldest first, used
	// by the payout worker to recover queued work after a restart.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Request, error)
}

// PostgresRepository stores withdrawal requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Create writes the request row. When the context carries an open ledger
// transaction the insert joins it, so the row commits or rolls back together
// with the deduction it describes.
func (r *PostgresRepository) Create(ctx context.Context, req Request) error {
	var exec execer = r.db
	if tx, ok := ledger.TxFrom(ctx); ok {
		exec = tx
	}
	_, err := exec.Exec(ctx, `INSERT INTO withdrawal_requests
        (reference, user_id, type, source_wallet, amount, fee, tax, total_deducted,
         bank_code, account_number, account_name, token_address, status, failure_reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		req.Reference, req.UserID, string(req.Type), string(req.SourceWallet),
		req.Amount, req.Fee, req.Tax, req.TotalDeducted,
		req.Destination.BankCode, req.Destination.AccountNumber, req.Destination.AccountName,
		req.Destination.TokenAddress, string(req.Status), req.FailureReason, req.CreatedAt.UTC())
	return err
}

const requestColumns = `reference, user_id, type, source_wallet, amount, fee, tax, total_deducted,
        bank_code, account_number, account_name, token_address, status, failure_reason, created_at, settled_at`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	var typ, sourceWallet, status string
	var settledAt *time.Time
	if err := row.Scan(&req.Reference, &req.UserID, &typ, &sourceWallet,
		&req.Amount, &req.Fee, &req.Tax, &req.TotalDeducted,
		&req.Destination.BankCode, &req.Destination.AccountNumber, &req.Destination.AccountName,
		&req.Destination.TokenAddress, &status, &req.FailureReason, &req.CreatedAt, &settledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, err
	}
	req.Type = Type(typ)
	req.SourceWallet = wallet.Kind(sourceWallet)
	req.Status = Status(status)
	req.SettledAt = settledAt
	return req, nil
}

func (r *PostgresRepository) Get(ctx context.Context, reference string) (Request, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests WHERE reference = $1`, reference)
	return scanRequest(row)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, reference string, status Status, failureReason string) error {
	var settledAt *time.Time
	if status == StatusCompleted || status == StatusFailed {
		now := time.Now().UTC()
		settledAt = &now
	}
	tag, err := r.db.Exec(ctx, `UPDATE withdrawal_requests
        SET status = $1, failure_reason = $2, settled_at = COALESCE($3, settled_at)
        WHERE reference = $4`,
		string(status), failureReason, settledAt, reference)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM withdrawal_requests
        WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
