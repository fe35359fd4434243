package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

// PostgresStore persists wallet balances as named numeric columns on the
// accounts row and transaction records in an append-only table. Atomicity of
// the read-check-write is enforced with row-level locks, not application
// mutexes, so concurrent debits of one wallet serialize at the database.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed ledger store.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// balanceColumn maps a wallet kind onto its accounts column. Kind is a closed
// enumeration, so the interpolation below cannot carry user input.
func balanceColumn(k wallet.Kind) (string, error) {
	if !k.Valid() {
		return "", fmt.Errorf("unknown wallet %q", k)
	}
	return string(k) + "_balance", nil
}

func (s *PostgresStore) EnsureAccount(ctx context.Context, userID string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("parse user id: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, uid)
	return err
}

func (s *PostgresStore) Balance(ctx context.Context, userID string, kind wallet.Kind) (decimal.Decimal, error) {
	col, err := balanceColumn(kind)
	if err != nil {
		return decimal.Zero, err
	}
	var bal decimal.Decimal
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, col)
	if err := s.db.QueryRow(ctx, query, userID).Scan(&bal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("no balances for user %s", userID)
		}
		return decimal.Zero, err
	}
	return bal, nil
}

func (s *PostgresStore) Balances(ctx context.Context, userID string) (wallet.Balances, error) {
	cols := make([]string, 0, len(wallet.Kinds))
	for _, k := range wallet.Kinds {
		col, err := balanceColumn(k)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, strings.Join(cols, ", "))
	vals := make([]decimal.Decimal, len(wallet.Kinds))
	dest := make([]any, len(vals))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := s.db.QueryRow(ctx, query, userID).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no balances for user %s", userID)
		}
		return nil, err
	}
	out := wallet.NewBalances()
	for i, k := range wallet.Kinds {
		out[k] = vals[i]
	}
	return out, nil
}

func (s *PostgresStore) ApplyAtomic(ctx context.Context, changes []BalanceChange, records []Record) error {
	return s.ApplyAtomicWith(ctx, changes, records, nil)
}

func (s *PostgresStore) ApplyAtomicWith(ctx context.Context, changes []BalanceChange, records []Record, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := applyChangesTx(ctx, tx, changes); err != nil {
		return err
	}
	for _, r := range records {
		if err := insertRecordTx(ctx, tx, r); err != nil {
			return err
		}
	}
	if fn != nil {
		if err := fn(WithTx(ctx, tx)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

type txContextKey struct{}

// WithTx returns a context carrying an open ledger transaction so that
// collaborating repositories can join the store's atomic unit.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFrom extracts the transaction placed by ApplyAtomicWith, if any.
func TxFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok
}

// applyChangesTx locks the involved account rows in sorted user order
// (deterministic lock order prevents deadlocks between concurrent transfers),
// re-reads each balance under the lock, rejects any debit past zero and
// writes the new values.
func applyChangesTx(ctx context.Context, tx pgx.Tx, changes []BalanceChange) error {
	byUser := make(map[string][]BalanceChange)
	users := make([]string, 0, len(changes))
	for _, c := range changes {
		if _, seen := byUser[c.UserID]; !seen {
			users = append(users, c.UserID)
		}
		byUser[c.UserID] = append(byUser[c.UserID], c)
	}
	sort.Strings(users)

	for _, uid := range users {
		userChanges := byUser[uid]
		kinds := make([]wallet.Kind, 0, len(userChanges))
		seen := make(map[wallet.Kind]bool)
		for _, c := range userChanges {
			if !seen[c.Wallet] {
				seen[c.Wallet] = true
				kinds = append(kinds, c.Wallet)
			}
		}
		cols := make([]string, len(kinds))
		for i, k := range kinds {
			col, err := balanceColumn(k)
			if err != nil {
				return err
			}
			cols[i] = col
		}

		query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1 FOR UPDATE`, strings.Join(cols, ", "))
		vals := make([]decimal.Decimal, len(kinds))
		dest := make([]any, len(vals))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := tx.QueryRow(ctx, query, uid).Scan(dest...); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("no balances for user %s", uid)
			}
			return err
		}

		current := make(map[wallet.Kind]decimal.Decimal, len(kinds))
		for i, k := range kinds {
			current[k] = vals[i]
		}
		for _, c := range userChanges {
			next := current[c.Wallet].Add(c.Delta)
			if next.IsNegative() {
				return &InsufficientFundsError{
					UserID:    c.UserID,
					Wallet:    c.Wallet,
					Requested: c.Delta.Neg(),
					Available: current[c.Wallet],
				}
			}
			current[c.Wallet] = next
		}

		sets := make([]string, len(kinds))
		args := make([]any, 0, len(kinds)+1)
		for i, k := range kinds {
			sets[i] = fmt.Sprintf("%s = $%d", cols[i], i+1)
			args = append(args, current[k])
		}
		args = append(args, uid)
		update := fmt.Sprintf(`UPDATE accounts SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(kinds)+1)
		if _, err := tx.Exec(ctx, update, args...); err != nil {
			return err
		}
	}
	return nil
}

func insertRecordTx(ctx context.Context, tx pgx.Tx, r Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `INSERT INTO transactions
        (id, user_id, category, amount, description, status, reference, wallet, counter_wallet, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.UserID, string(r.Category), r.Amount, r.Description, string(r.Status),
		r.Reference, string(r.Wallet), string(r.CounterWallet), r.CreatedAt)
	return err
}

const recordColumns = `id, user_id, category, amount, description, status, reference, wallet, counter_wallet, created_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var category, status, walletTag, counterTag string
	if err := row.Scan(&r.ID, &r.UserID, &category, &r.Amount, &r.Description,
		&status, &r.Reference, &walletTag, &counterTag, &r.CreatedAt); err != nil {
		return Record{}, err
	}
	r.Category = Category(category)
	r.Status = Status(status)
	r.Wallet = wallet.Kind(walletTag)
	r.CounterWallet = wallet.Kind(counterTag)
	return r, nil
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) ([]Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE reference = $1 ORDER BY created_at`, recordColumns)
	rows, err := s.db.Query(ctx, query, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrRecordNotFound
	}
	return out, nil
}

func (s *PostgresStore) History(ctx context.Context, userID string, f HistoryFilter) ([]Record, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM transactions WHERE user_id = $1`, recordColumns)
	args := []any{userID}
	if f.Category != "" {
		args = append(args, string(f.Category))
		fmt.Fprintf(&sb, ` AND category = $%d`, len(args))
	}
	if f.Wallet != "" {
		args = append(args, string(f.Wallet))
		fmt.Fprintf(&sb, ` AND (wallet = $%d OR counter_wallet = $%d)`, len(args), len(args))
	}
	sb.WriteString(` ORDER BY created_at DESC`)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&sb, ` OFFSET $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, reference string) error {
	tag, err := s.db.Exec(ctx, `UPDATE transactions SET status = $1
        WHERE reference = $2 AND category IN ($3, $4) AND status = $5`,
		string(StatusProcessing), reference,
		string(CategoryWithdrawalCash), string(CategoryWithdrawalToken), string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		_, ferr := s.FindByReference(ctx, reference)
		if ferr != nil {
			return ErrRecordNotFound
		}
		return ErrAlreadySettled
	}
	return nil
}

func (s *PostgresStore) SettleDeposit(ctx context.Context, reference string, credit BalanceChange, vat *Record) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var recordID, status string
	err = tx.QueryRow(ctx, `SELECT id, status FROM transactions
        WHERE reference = $1 AND category = $2 FOR UPDATE`,
		reference, string(CategoryDeposit)).Scan(&recordID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRecordNotFound
		}
		return err
	}
	if Status(status).Terminal() {
		return ErrAlreadySettled
	}

	if err := applyChangesTx(ctx, tx, []BalanceChange{credit}); err != nil {
		return err
	}
	if vat != nil {
		if err := insertRecordTx(ctx, tx, *vat); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`,
		string(StatusCompleted), recordID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) SettleWithdrawal(ctx context.Context, reference string, success bool, refund *Refund) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var recordID, status string
	err = tx.QueryRow(ctx, `SELECT id, status FROM transactions
        WHERE reference = $1 AND category IN ($2, $3) FOR UPDATE`,
		reference, string(CategoryWithdrawalCash), string(CategoryWithdrawalToken)).Scan(&recordID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRecordNotFound
		}
		return err
	}
	if Status(status).Terminal() {
		return ErrAlreadySettled
	}

	if success {
		if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`,
			string(StatusCompleted), recordID); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	if refund == nil {
		return fmt.Errorf("refund required to fail withdrawal %s", reference)
	}
	if err := applyChangesTx(ctx, tx, []BalanceChange{refund.Change}); err != nil {
		return err
	}
	if err := insertRecordTx(ctx, tx, refund.Record); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1
        WHERE reference = $2 AND category <> $3`,
		string(StatusFailed), reference, string(CategoryRefund)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
