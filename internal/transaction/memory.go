package transaction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ledgerpay/ledgerpay/internal/account"
	"github.com/ledgerpay/ledgerpay/internal/audit"
)

// MemoryStore is an in-memory twin of the Postgres store for unit tests.
// It mutates accounts through the account store's Mutate primitive so a
// settlement touching one or two accounts commits as a whole, and its own
// mutex serializes transaction lifecycle changes.
type MemoryStore struct {
	accounts *account.MemoryStore
	log      *audit.MemoryLog

	mu    sync.Mutex
	byID  map[string]Transaction
	order []string
}

// NewMemoryStore constructs an in-memory store over the given account
// store, sharing its audit log.
func NewMemoryStore(accounts *account.MemoryStore) *MemoryStore {
	return &MemoryStore{
		accounts: accounts,
		log:      accounts.AuditLog(),
		byID:     make(map[string]Transaction),
	}
}

// AuditLog exposes the shared audit log.
func (s *MemoryStore) AuditLog() *audit.MemoryLog {
	return s.log
}

func (s *MemoryStore) Create(_ context.Context, txn Transaction, actorID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[txn.ID]; exists {
		return Transaction{}, ErrConflict
	}
	for _, existing := range s.byID {
		if existing.ReferenceNumber == txn.ReferenceNumber {
			return Transaction{}, ErrConflict
		}
	}

	src, ok := s.accounts.Snapshot(txn.AccountID)
	if !ok {
		return Transaction{}, account.ErrNotFound
	}
	if src.Status != account.StatusActive {
		return Transaction{}, fmt.Errorf("%w: account is not active", account.ErrInvalidState)
	}
	if txn.Type == TypeTransfer {
		dest, ok := s.accounts.Snapshot(txn.CounterpartyID)
		if !ok {
			return Transaction{}, account.ErrNotFound
		}
		if dest.Status != account.StatusActive {
			return Transaction{}, fmt.Errorf("%w: destination account is not active", account.ErrInvalidState)
		}
	}

	if txn.Type.Reserves() {
		err := s.accounts.Mutate([]string{txn.AccountID}, func(accs map[string]*account.Account) error {
			a := accs[txn.AccountID]
			if a.AvailableBalance.LessThan(txn.Amount) {
				return account.ErrInsufficientFunds
			}
			a.AvailableBalance = a.AvailableBalance.Sub(txn.Amount)
			return nil
		})
		if err != nil {
			return Transaction{}, err
		}
	}

	s.byID[txn.ID] = txn
	s.order = append(s.order, txn.ID)
	s.log.Append(audit.Entry{
		ActorID:      actorID,
		Action:       audit.ActionTransactionCreated,
		ResourceType: "transaction",
		ResourceID:   txn.ID,
		Details:      map[string]any{"amount": txn.Amount.String(), "type": string(txn.Type)},
	})
	return txn, nil
}

func (s *MemoryStore) Settle(_ context.Context, id, actorID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.byID[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if txn.Status != StatusPending {
		return Transaction{}, ErrAlreadyProcessed
	}

	ids := []string{txn.AccountID}
	if txn.Type == TypeTransfer {
		ids = append(ids, txn.CounterpartyID)
		sort.Strings(ids)
	}

	insufficient := false
	err := s.accounts.Mutate(ids, func(accs map[string]*account.Account) error {
		// an account closed or suspended after creation blocks settlement;
		// the transaction stays pending
		for _, a := range accs {
			if a.Status != account.StatusActive {
				return fmt.Errorf("%w: account is not active", account.ErrInvalidState)
			}
		}
		src := accs[txn.AccountID]
		switch {
		case txn.Type.Credits():
			src.Balance = src.Balance.Add(txn.Amount)
			src.AvailableBalance = src.AvailableBalance.Add(txn.Amount)
		case txn.Type == TypeTransfer:
			if src.Balance.LessThan(txn.Amount) {
				insufficient = true
				src.AvailableBalance = src.AvailableBalance.Add(txn.Amount)
				return nil
			}
			dest := accs[txn.CounterpartyID]
			src.Balance = src.Balance.Sub(txn.Amount)
			dest.Balance = dest.Balance.Add(txn.Amount)
			dest.AvailableBalance = dest.AvailableBalance.Add(txn.Amount)
		default:
			if src.Balance.LessThan(txn.Amount) {
				insufficient = true
				src.AvailableBalance = src.AvailableBalance.Add(txn.Amount)
				return nil
			}
			src.Balance = src.Balance.Sub(txn.Amount)
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	completedAt := time.Now().UTC()
	txn.CompletedAt = &completedAt
	if insufficient {
		txn.Status = StatusFailed
	} else {
		txn.Status = StatusCompleted
	}
	s.byID[id] = txn

	action := audit.ActionTransactionCompleted
	if insufficient {
		action = audit.ActionTransactionFailed
	}
	s.log.Append(audit.Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: "transaction",
		ResourceID:   txn.ID,
		Details:      map[string]any{"amount": txn.Amount.String(), "type": string(txn.Type)},
	})

	if insufficient {
		return txn, account.ErrInsufficientFunds
	}
	return txn, nil
}

func (s *MemoryStore) Get(_ context.Context, id, userID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.byID[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	owner, ok := s.accounts.Snapshot(txn.AccountID)
	if !ok || owner.UserID != userID {
		return Transaction{}, ErrNotFound
	}
	return txn, nil
}

func (s *MemoryStore) List(_ context.Context, accountID, userID string, f ListFilter) ([]Transaction, Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.accounts.Snapshot(accountID)
	if !ok || owner.UserID != userID {
		return nil, Page{}, account.ErrNotFound
	}

	var matched []Transaction
	for i := len(s.order) - 1; i >= 0; i-- {
		txn := s.byID[s.order[i]]
		if txn.AccountID != accountID {
			continue
		}
		if f.Status != "" && txn.Status != f.Status {
			continue
		}
		if f.Type != "" && txn.Type != f.Type {
			continue
		}
		matched = append(matched, txn)
	}

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}

	page := Page{Page: f.Page, Limit: f.Limit, Total: total, TotalPages: (total + f.Limit - 1) / f.Limit}
	return matched[start:end], page, nil
}
