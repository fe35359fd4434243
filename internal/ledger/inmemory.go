package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobo-pay/kobo_pay/internal/wallet"
)

type inMemoryStore struct {
	mu       sync.RWMutex
	balances map[string]wallet.Balances
	records  []Record
}

// NewInMemory creates a concurrency-safe in-memory store. It backs unit tests
// and dev mode without a DATABASE_URL.
func NewInMemory() Store {
	return &inMemoryStore{balances: make(map[string]wallet.Balances)}
}

func (s *inMemoryStore) EnsureAccount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[userID]; !ok {
		s.balances[userID] = wallet.NewBalances()
	}
	return nil
}

func (s *inMemoryStore) Balance(_ context.Context, userID string, kind wallet.Kind) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("no balances for user %s", userID)
	}
	return b.Get(kind), nil
}

func (s *inMemoryStore) Balances(_ context.Context, userID string) (wallet.Balances, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[userID]
	if !ok {
		return nil, fmt.Errorf("no balances for user %s", userID)
	}
	out := wallet.NewBalances()
	for k, v := range b {
		out[k] = v
	}
	return out, nil
}

func (s *inMemoryStore) ApplyAtomic(_ context.Context, changes []BalanceChange, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(changes, records)
}

func (s *inMemoryStore) ApplyAtomicWith(ctx context.Context, changes []BalanceChange, records []Record, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged, err := s.stageLocked(changes)
	if err != nil {
		return err
	}
	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	s.commitLocked(staged, records)
	return nil
}

// applyLocked validates every change before mutating anything so the unit is
// all-or-nothing.
func (s *inMemoryStore) applyLocked(changes []BalanceChange, records []Record) error {
	staged, err := s.stageLocked(changes)
	if err != nil {
		return err
	}
	s.commitLocked(staged, records)
	return nil
}

func (s *inMemoryStore) stageLocked(changes []BalanceChange) (map[string]decimal.Decimal, error) {
	staged := make(map[string]decimal.Decimal, len(changes))
	for _, c := range changes {
		b, ok := s.balances[c.UserID]
		if !ok {
			return nil, fmt.Errorf("no balances for user %s", c.UserID)
		}
		key := c.UserID + "/" + string(c.Wallet)
		cur, seen := staged[key]
		if !seen {
			cur = b.Get(c.Wallet)
		}
		next := cur.Add(c.Delta)
		if next.IsNegative() {
			return nil, &InsufficientFundsError{
				UserID:    c.UserID,
				Wallet:    c.Wallet,
				Requested: c.Delta.Neg(),
				Available: cur,
			}
		}
		staged[key] = next
	}
	return staged, nil
}

func (s *inMemoryStore) commitLocked(staged map[string]decimal.Decimal, records []Record) {
	for key, v := range staged {
		parts := strings.SplitN(key, "/", 2)
		s.balances[parts[0]][wallet.Kind(parts[1])] = v
	}
	for _, r := range records {
		s.records = append(s.records, stamp(r))
	}
}

func stamp(r Record) Record {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return r
}

func (s *inMemoryStore) FindByReference(_ context.Context, reference string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.Reference == reference {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrRecordNotFound
	}
	return out, nil
}

func (s *inMemoryStore) History(_ context.Context, userID string, f HistoryFilter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.UserID != userID {
			continue
		}
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if f.Wallet != "" && r.Wallet != f.Wallet && r.CounterWallet != f.Wallet {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *inMemoryStore) MarkProcessing(_ context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.withdrawalIndexLocked(reference)
	if idx < 0 {
		return ErrRecordNotFound
	}
	if s.records[idx].Status.Terminal() {
		return ErrAlreadySettled
	}
	if !s.records[idx].Status.CanTransition(StatusProcessing) {
		return fmt.Errorf("record %s cannot move to processing from %s", reference, s.records[idx].Status)
	}
	s.records[idx].Status = StatusProcessing
	return nil
}

func (s *inMemoryStore) SettleDeposit(_ context.Context, reference string, credit BalanceChange, vat *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, r := range s.records {
		if r.Reference == reference && r.Category == CategoryDeposit {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrRecordNotFound
	}
	if s.records[idx].Status.Terminal() {
		return ErrAlreadySettled
	}
	var extra []Record
	if vat != nil {
		extra = append(extra, *vat)
	}
	if err := s.applyLocked([]BalanceChange{credit}, extra); err != nil {
		return err
	}
	s.records[idx].Status = StatusCompleted
	return nil
}

func (s *inMemoryStore) SettleWithdrawal(_ context.Context, reference string, success bool, refund *Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.withdrawalIndexLocked(reference)
	if idx < 0 {
		return ErrRecordNotFound
	}
	if s.records[idx].Status.Terminal() {
		return ErrAlreadySettled
	}
	if success {
		s.records[idx].Status = StatusCompleted
		return nil
	}
	if refund == nil {
		return fmt.Errorf("refund required to fail withdrawal %s", reference)
	}
	if err := s.applyLocked([]BalanceChange{refund.Change}, []Record{refund.Record}); err != nil {
		return err
	}
	for i, r := range s.records {
		if r.Reference == reference && r.Category != CategoryRefund {
			s.records[i].Status = StatusFailed
		}
	}
	return nil
}

func (s *inMemoryStore) withdrawalIndexLocked(reference string) int {
	for i, r := range s.records {
		if r.Reference != reference {
			continue
		}
		if r.Category == CategoryWithdrawalCash || r.Category == CategoryWithdrawalToken {
			return i
		}
	}
	return -1
}
