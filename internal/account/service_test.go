package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ledgerpay/ledgerpay/internal/audit"
	"github.com/ledgerpay/ledgerpay/internal/cache"
	"github.com/ledgerpay/ledgerpay/internal/events"
	"github.com/ledgerpay/ledgerpay/internal/logging"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, e := range p.events {
		names = append(names, e.Name)
	}
	return names
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *capturePublisher) {
	t.Helper()
	store := NewMemoryStore(audit.NewMemoryLog())
	publisher := &capturePublisher{}
	svc := NewService(store, cache.Noop{}, publisher, logging.Discard(), 0)
	return svc, store, publisher
}

func TestCreateAccountDefaults(t *testing.T) {
	svc, store, publisher := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	a, err := svc.Create(ctx, userID, CreateInput{AccountType: "checking"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if a.Currency != "USD" {
		t.Fatalf("expected USD default, got %q", a.Currency)
	}
	if a.Status != StatusActive {
		t.Fatalf("expected active status, got %q", a.Status)
	}
	if !a.Balance.IsZero() || !a.AvailableBalance.IsZero() {
		t.Fatalf("expected zero balances, got %s/%s", a.Balance, a.AvailableBalance)
	}
	if !strings.HasPrefix(a.AccountNumber, "WS") || len(a.AccountNumber) != 14 {
		t.Fatalf("unexpected account number %q", a.AccountNumber)
	}

	entries := store.AuditLog().Entries()
	if len(entries) != 1 || entries[0].Action != audit.ActionAccountCreated {
		t.Fatalf("expected one ACCOUNT_CREATED audit entry, got %+v", entries)
	}
	if names := publisher.names(); len(names) != 1 || names[0] != events.AccountCreated {
		t.Fatalf("expected account.created event, got %v", names)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, uuid.NewString(), CreateInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing type, got %v", err)
	}
	if _, err := svc.Create(ctx, uuid.NewString(), CreateInput{AccountType: "checking", Currency: "USDT"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for bad currency, got %v", err)
	}
	if _, err := svc.Create(ctx, "", CreateInput{AccountType: "checking"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing user, got %v", err)
	}
}

func TestGetOwnerScoped(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.NewString()

	a, err := svc.Create(ctx, owner, CreateInput{AccountType: "checking"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if _, err := svc.Get(ctx, a.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign owner, got %v", err)
	}
	if _, err := svc.Get(ctx, a.ID, owner); err != nil {
		t.Fatalf("expected owner read to succeed, got %v", err)
	}
}

func TestGetUsesCacheAndInvalidates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewMemoryStore(audit.NewMemoryLog())
	svc := NewService(store, cache.NewRedis(client), &capturePublisher{}, logging.Discard(), 0)
	ctx := context.Background()
	userID := uuid.NewString()

	a, err := svc.Create(ctx, userID, CreateInput{AccountType: "checking"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if _, err := svc.Get(ctx, a.ID, userID); err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !mr.Exists(CacheKey(a.ID)) {
		t.Fatalf("expected snapshot cached after read")
	}

	if _, err := svc.Adjust(ctx, a.ID, decimal.NewFromInt(100), DirectionCredit, userID); err != nil {
		t.Fatalf("adjust balance: %v", err)
	}
	if mr.Exists(CacheKey(a.ID)) {
		t.Fatalf("expected snapshot invalidated after mutation")
	}

	got, err := svc.Get(ctx, a.ID, userID)
	if err != nil {
		t.Fatalf("get after mutation: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected fresh balance 100, got %s", got.Balance)
	}
}

func TestAdjustBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	a, err := svc.Create(ctx, userID, CreateInput{AccountType: "checking"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	newBalance, err := svc.Adjust(ctx, a.ID, decimal.NewFromInt(100), DirectionCredit, userID)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !newBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected balance 100, got %s", newBalance)
	}

	newBalance, err = svc.Adjust(ctx, a.ID, decimal.NewFromInt(40), DirectionDebit, userID)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !newBalance.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected balance 60, got %s", newBalance)
	}

	if _, err := svc.Adjust(ctx, a.ID, decimal.NewFromInt(100), DirectionDebit, userID); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := svc.Adjust(ctx, a.ID, decimal.Zero, DirectionCredit, userID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

func TestCloseRequiresZeroBalance(t *testing.T) {
	svc, store, publisher := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	a, err := svc.Create(ctx, userID, CreateInput{AccountType: "checking"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	SeedBalance(store, a.ID, decimal.NewFromInt(10), decimal.NewFromInt(10))
	if err := svc.Close(ctx, a.ID, userID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for non-zero balance, got %v", err)
	}
	got, _ := svc.Get(ctx, a.ID, userID)
	if got.Status != StatusActive {
		t.Fatalf("failed close must not change status, got %q", got.Status)
	}

	SeedBalance(store, a.ID, decimal.Zero, decimal.Zero)
	if err := svc.Close(ctx, a.ID, userID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := svc.Close(ctx, a.ID, userID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("closing is terminal, expected invalid state, got %v", err)
	}

	names := publisher.names()
	if names[len(names)-1] != events.AccountClosed {
		t.Fatalf("expected account.closed event, got %v", names)
	}
	entries := store.AuditLog().Entries()
	last := entries[len(entries)-1]
	if last.Action != audit.ActionAccountClosed {
		t.Fatalf("expected ACCOUNT_CLOSED audit entry, got %+v", last)
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	first, err := svc.Create(ctx, userID, CreateInput{AccountType: "checking"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(ctx, userID, CreateInput{AccountType: "savings"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	accounts, err := svc.List(ctx, userID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].ID != second.ID || accounts[1].ID != first.ID {
		t.Fatalf("expected newest first ordering")
	}
}
