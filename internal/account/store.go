package account

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists accounts and owns the atomic balance mutation primitive.
// Every mutating method appends its audit entry inside the same unit of
// work as the mutation.
type Store interface {
	// Create inserts the account. ErrConflict signals a generated account
	// number collision; the caller regenerates and retries.
	Create(ctx context.Context, a Account) error

	// Get returns the account matching both id and owner.
	Get(ctx context.Context, id, userID string) (Account, error)

	// List returns the owner's accounts, newest first.
	List(ctx context.Context, userID string) ([]Account, error)

	// Adjust applies amount to the settled and available balances under an
	// exclusive row lock. Debits fail with ErrInsufficientFunds when the
	// settled balance would go negative. Returns the new settled balance.
	Adjust(ctx context.Context, id string, amount decimal.Decimal, dir Direction, actorID string) (decimal.Decimal, error)

	// Close marks the account closed. Requires active status and a settled
	// balance of exactly zero.
	Close(ctx context.Context, id, userID string) error
}
