package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerpay/ledgerpay/internal/account"
	"github.com/ledgerpay/ledgerpay/internal/cache"
	"github.com/ledgerpay/ledgerpay/internal/events"
	"github.com/ledgerpay/ledgerpay/internal/refnum"
)

// referenceAttempts bounds the regenerate-and-retry loop on reference
// number collisions.
const referenceAttempts = 3

// Engine drives the transaction lifecycle: creation reserves funds,
// settlement commits them, both exactly once. Failure surfaces to the
// caller; resubmission is a new operation, never an automatic retry.
type Engine struct {
	store     Store
	accounts  *account.Service
	cache     cache.Cache
	publisher events.Publisher
	logger    *slog.Logger
}

// NewEngine builds a transaction engine.
func NewEngine(store Store, accounts *account.Service, c cache.Cache, publisher events.Publisher, logger *slog.Logger) *Engine {
	if c == nil {
		c = cache.Noop{}
	}
	return &Engine{store: store, accounts: accounts, cache: c, publisher: publisher, logger: logger}
}

// CreateInput captures the data needed to open a transaction.
type CreateInput struct {
	AccountID            string
	Type                 Type
	Amount               decimal.Decimal
	Currency             string
	Description          string
	Metadata             map[string]string
	DestinationAccountID string
}

// Create validates the request against the owning account and persists the
// pending transaction, reserving available balance for reserve types.
func (e *Engine) Create(ctx context.Context, userID string, input CreateInput) (Transaction, error) {
	if !input.Type.Valid() {
		return Transaction{}, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, input.Type)
	}
	if !input.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if input.Type == TypeTransfer {
		if input.DestinationAccountID == "" {
			return Transaction{}, fmt.Errorf("%w: transfer requires a destination account", ErrValidation)
		}
		if input.DestinationAccountID == input.AccountID {
			return Transaction{}, fmt.Errorf("%w: transfer destination must differ from source", ErrValidation)
		}
	}

	acct, err := e.accounts.Get(ctx, input.AccountID, userID)
	if err != nil {
		return Transaction{}, err
	}
	if acct.Status != account.StatusActive {
		return Transaction{}, fmt.Errorf("%w: account is not active", account.ErrInvalidState)
	}
	if input.Type.Reserves() && acct.AvailableBalance.LessThan(input.Amount) {
		return Transaction{}, account.ErrInsufficientFunds
	}

	currency := input.Currency
	if currency == "" {
		currency = acct.Currency
	}
	if len(currency) != 3 {
		return Transaction{}, fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}

	txn := Transaction{
		ID:             uuid.NewString(),
		AccountID:      input.AccountID,
		CounterpartyID: input.DestinationAccountID,
		Type:           input.Type,
		Amount:         input.Amount,
		Currency:       currency,
		Status:         StatusPending,
		Description:    input.Description,
		Metadata:       input.Metadata,
		CreatedAt:      time.Now().UTC(),
	}

	var created Transaction
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		txn.ReferenceNumber = refnum.Reference()
		created, err = e.store.Create(ctx, txn, userID)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConflict) {
			return Transaction{}, err
		}
	}
	if err != nil {
		return Transaction{}, err
	}

	e.invalidate(ctx, created.AccountID)
	e.logger.Info("transaction created", "transaction_id", created.ID, "type", created.Type, "amount", created.Amount)
	e.publish(ctx, events.TransactionCreated, created)
	return created, nil
}

// Process settles the pending transaction exactly once. A second
// invocation observes the terminal state and fails with
// ErrAlreadyProcessed without mutating anything.
func (e *Engine) Process(ctx context.Context, id, actorID string) (Transaction, error) {
	txn, err := e.store.Settle(ctx, id, actorID)
	if err != nil {
		if errors.Is(err, account.ErrInsufficientFunds) && txn.Status == StatusFailed {
			// the failed terminal state committed; surface the error after
			// invalidating and emitting the failure event
			e.invalidate(ctx, txn.AccountID)
			e.logger.Info("transaction failed", "transaction_id", txn.ID, "type", txn.Type)
			e.publish(ctx, events.TransactionFailed, txn)
			return txn, err
		}
		return Transaction{}, err
	}

	e.invalidate(ctx, txn.AccountID, txn.CounterpartyID)
	e.logger.Info("transaction completed", "transaction_id", txn.ID, "type", txn.Type, "amount", txn.Amount)
	e.publish(ctx, events.TransactionCompleted, txn)
	return txn, nil
}

// Get returns the transaction if the caller owns its account.
func (e *Engine) Get(ctx context.Context, id, userID string) (Transaction, error) {
	return e.store.Get(ctx, id, userID)
}

// List returns the account's transactions newest first.
func (e *Engine) List(ctx context.Context, accountID, userID string, f ListFilter) ([]Transaction, Page, error) {
	return e.store.List(ctx, accountID, userID, f)
}

func (e *Engine) invalidate(ctx context.Context, accountIDs ...string) {
	for _, id := range accountIDs {
		if id == "" {
			continue
		}
		if err := e.cache.Del(ctx, account.CacheKey(id)); err != nil {
			e.logger.Warn("invalidate account snapshot", "account_id", id, "error", err)
		}
	}
}

func (e *Engine) publish(ctx context.Context, name string, txn Transaction) {
	if e.publisher == nil {
		return
	}
	err := e.publisher.Publish(ctx, events.Event{
		Name:         name,
		ResourceType: "transaction",
		ResourceID:   txn.ID,
		Payload: map[string]any{
			"account_id": txn.AccountID,
			"type":       string(txn.Type),
			"amount":     txn.Amount.String(),
			"status":     string(txn.Status),
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("publish event", "event", name, "transaction_id", txn.ID, "error", err)
	}
}
