package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the account does not exist or is not owned by
	// the caller. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("account not found")

	// ErrValidation indicates malformed or missing input. No mutation
	// occurred.
	ErrValidation = errors.New("invalid account input")

	// ErrInvalidState indicates the operation is illegal for the account's
	// current state, e.g. closing an account with a non-zero balance.
	ErrInvalidState = errors.New("account state does not permit operation")

	// ErrInsufficientFunds occurs when a debit would take a balance
	// negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict indicates a uniqueness violation on insert, e.g. a
	// generated account number collision. Callers regenerate and retry.
	ErrConflict = errors.New("conflicting account record")
)

// Account statuses. Closed is terminal.
const (
	StatusActive    = "active"
	StatusClosed    = "closed"
	StatusSuspended = "suspended"
)

// Direction selects the sign of a balance adjustment.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Account is a user-owned ledger account. Balance is the settled balance;
// AvailableBalance is the settled balance minus reservations from pending
// transactions and is what new withdrawals may draw on.
type Account struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	AccountNumber    string          `json:"account_number"`
	AccountType      string          `json:"account_type"`
	Currency         string          `json:"currency"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Balance is a point-in-time balance snapshot for an account.
type Balance struct {
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Currency         string          `json:"currency"`
}

// CacheKey returns the snapshot cache key for an account id. Transaction
// settlement uses it to invalidate affected accounts.
func CacheKey(accountID string) string {
	return "account:" + accountID
}
