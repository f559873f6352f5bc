package account

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerpay/ledgerpay/internal/audit"
)

// MemoryStore is a concurrency-safe in-memory store useful for unit tests.
// A single mutex serializes every mutation, which gives the same
// serialization guarantee the Postgres row locks provide.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]Account
	order []string
	log   *audit.MemoryLog
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(log *audit.MemoryLog) *MemoryStore {
	if log == nil {
		log = audit.NewMemoryLog()
	}
	return &MemoryStore{byID: make(map[string]Account), log: log}
}

// AuditLog exposes the recorded audit entries.
func (s *MemoryStore) AuditLog() *audit.MemoryLog {
	return s.log
}

func (s *MemoryStore) Create(_ context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[a.ID]; exists {
		return ErrConflict
	}
	for _, existing := range s.byID {
		if existing.AccountNumber == a.AccountNumber {
			return ErrConflict
		}
	}
	s.byID[a.ID] = a
	s.order = append(s.order, a.ID)
	s.log.Append(audit.Entry{ActorID: a.UserID, Action: audit.ActionAccountCreated, ResourceType: "account", ResourceID: a.ID})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id, userID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok || a.UserID != userID {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var accounts []Account
	for i := len(s.order) - 1; i >= 0; i-- {
		if a := s.byID[s.order[i]]; a.UserID == userID {
			accounts = append(accounts, a)
		}
	}
	return accounts, nil
}

func (s *MemoryStore) Adjust(_ context.Context, id string, amount decimal.Decimal, dir Direction, actorID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return decimal.Zero, ErrNotFound
	}

	delta := amount
	switch dir {
	case DirectionCredit:
	case DirectionDebit:
		if a.Balance.LessThan(amount) {
			return decimal.Zero, ErrInsufficientFunds
		}
		delta = amount.Neg()
	default:
		return decimal.Zero, ErrValidation
	}

	a.Balance = a.Balance.Add(delta)
	a.AvailableBalance = a.AvailableBalance.Add(delta)
	a.UpdatedAt = time.Now().UTC()
	s.byID[id] = a

	s.log.Append(audit.Entry{
		ActorID:      actorID,
		Action:       audit.ActionBalanceAdjusted,
		ResourceType: "account",
		ResourceID:   id,
		Details:      map[string]any{"amount": amount.String(), "direction": string(dir)},
	})
	return a.Balance, nil
}

func (s *MemoryStore) Close(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	if a.Status != StatusActive || !a.Balance.IsZero() {
		return ErrInvalidState
	}
	a.Status = StatusClosed
	a.UpdatedAt = time.Now().UTC()
	s.byID[id] = a
	s.log.Append(audit.Entry{ActorID: userID, Action: audit.ActionAccountClosed, ResourceType: "account", ResourceID: id})
	return nil
}

// Snapshot returns a copy of the account regardless of owner. Used by the
// in-memory transaction store, which joins through accounts itself.
func (s *MemoryStore) Snapshot(id string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	return a, ok
}

// Mutate applies fn to the requested accounts under the store lock, so a
// settlement touching one or two accounts commits or aborts as a whole.
// If fn returns an error no account is modified.
func (s *MemoryStore) Mutate(ids []string, fn func(map[string]*Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := make(map[string]*Account, len(ids))
	for _, id := range ids {
		a, ok := s.byID[id]
		if !ok {
			return ErrNotFound
		}
		copied := a
		working[id] = &copied
	}

	if err := fn(working); err != nil {
		return err
	}

	now := time.Now().UTC()
	for id, a := range working {
		a.UpdatedAt = now
		s.byID[id] = *a
	}
	return nil
}
