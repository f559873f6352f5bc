package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerpay/ledgerpay/internal/cache"
	"github.com/ledgerpay/ledgerpay/internal/events"
	"github.com/ledgerpay/ledgerpay/internal/refnum"
)

const (
	// DefaultCacheTTL bounds how stale a cached account snapshot can get.
	DefaultCacheTTL = 300 * time.Second

	defaultCurrency = "USD"

	// numberAttempts bounds the regenerate-and-retry loop on account
	// number collisions.
	numberAttempts = 5
)

// Service exposes account operations backed by the store, with a
// cache-aside read path and strict invalidation on every mutation.
type Service struct {
	store     Store
	cache     cache.Cache
	publisher events.Publisher
	logger    *slog.Logger
	cacheTTL  time.Duration
}

// NewService builds an account service. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewService(store Store, c cache.Cache, publisher events.Publisher, logger *slog.Logger, ttl time.Duration) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{store: store, cache: c, publisher: publisher, logger: logger, cacheTTL: ttl}
}

// CreateInput captures data required to open an account.
type CreateInput struct {
	AccountType string
	Currency    string
}

// Create opens an account with zero balances, generating account numbers
// until the store accepts one.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (Account, error) {
	if userID == "" {
		return Account{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if input.AccountType == "" {
		return Account{}, fmt.Errorf("%w: account type is required", ErrValidation)
	}
	currency := input.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	if len(currency) != 3 {
		return Account{}, fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}

	a := Account{
		ID:               uuid.NewString(),
		UserID:           userID,
		AccountType:      input.AccountType,
		Currency:         currency,
		Balance:          decimal.Zero,
		AvailableBalance: decimal.Zero,
		Status:           StatusActive,
		CreatedAt:        time.Now().UTC(),
	}
	a.UpdatedAt = a.CreatedAt

	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		a.AccountNumber = refnum.AccountNumber()
		if err = s.store.Create(ctx, a); err == nil {
			break
		}
		if !errors.Is(err, ErrConflict) {
			return Account{}, err
		}
	}
	if err != nil {
		return Account{}, err
	}

	s.logger.Info("account created", "account_id", a.ID, "user_id", userID)
	s.publish(ctx, events.Event{
		Name:         events.AccountCreated,
		ResourceType: "account",
		ResourceID:   a.ID,
		Payload:      map[string]any{"user_id": userID, "currency": currency},
	})
	return a, nil
}

// Get returns the account, serving from the snapshot cache when possible.
// Cached snapshots still enforce ownership.
func (s *Service) Get(ctx context.Context, id, userID string) (Account, error) {
	key := CacheKey(id)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var cached Account
		if err := json.Unmarshal(raw, &cached); err == nil {
			if cached.UserID != userID {
				return Account{}, ErrNotFound
			}
			return cached, nil
		}
	}

	a, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return Account{}, err
	}

	if raw, err := json.Marshal(a); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
			s.logger.Warn("cache account snapshot", "account_id", id, "error", err)
		}
	}
	return a, nil
}

// List returns the caller's accounts, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Account, error) {
	return s.store.List(ctx, userID)
}

// GetBalance returns a balance snapshot straight from the store.
func (s *Service) GetBalance(ctx context.Context, id, userID string) (Balance, error) {
	a, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Balance: a.Balance, AvailableBalance: a.AvailableBalance, Currency: a.Currency}, nil
}

// Adjust is the atomic balance mutation primitive. It routes through the
// store's row lock and invalidates the account snapshot.
func (s *Service) Adjust(ctx context.Context, id string, amount decimal.Decimal, dir Direction, actorID string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	newBalance, err := s.store.Adjust(ctx, id, amount, dir, actorID)
	if err != nil {
		return decimal.Zero, err
	}
	s.invalidate(ctx, id)
	return newBalance, nil
}

// Close marks the account closed once its settled balance is zero.
func (s *Service) Close(ctx context.Context, id, userID string) error {
	if err := s.store.Close(ctx, id, userID); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.logger.Info("account closed", "account_id", id, "user_id", userID)
	s.publish(ctx, events.Event{
		Name:         events.AccountClosed,
		ResourceType: "account",
		ResourceID:   id,
		Payload:      map[string]any{"user_id": userID},
	})
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Del(ctx, CacheKey(id)); err != nil {
		s.logger.Warn("invalidate account snapshot", "account_id", id, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	e.OccurredAt = time.Now().UTC()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event", "event", e.Name, "resource_id", e.ResourceID, "error", err)
	}
}
