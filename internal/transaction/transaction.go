package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the transaction does not exist or is not
	// reachable through an account the caller owns.
	ErrNotFound = errors.New("transaction not found")

	// ErrAlreadyProcessed indicates a settlement attempt against a
	// transaction already in a terminal state. No mutation occurred.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("invalid transaction input")

	// ErrConflict indicates a reference number collision on insert; the
	// engine regenerates and retries.
	ErrConflict = errors.New("conflicting transaction record")
)

// Type is the closed set of transaction types. Direction of effect is
// determined by type, never by the sign of the amount.
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
	TypeTransfer   Type = "transfer"
	TypeCredit     Type = "credit"
	TypeDebit      Type = "debit"
)

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypeCredit, TypeDebit:
		return true
	}
	return false
}

// Reserves reports whether creating a transaction of this type reserves
// available balance. Credit-type transactions add funds and have nothing
// to reserve.
func (t Type) Reserves() bool {
	switch t {
	case TypeWithdrawal, TypeDebit, TypeTransfer:
		return true
	}
	return false
}

// Credits reports whether settlement adds funds to the owning account.
func (t Type) Credits() bool {
	return t == TypeDeposit || t == TypeCredit
}

// Status is the transaction lifecycle state. Transitions are monotonic:
// pending -> completed or pending -> failed, nothing else.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Transaction is a balance-affecting operation against one account, or two
// for transfers, where CounterpartyID names the destination account.
type Transaction struct {
	ID              string            `json:"id"`
	AccountID       string            `json:"account_id"`
	CounterpartyID  string            `json:"counterparty_id,omitempty"`
	Type            Type              `json:"transaction_type"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Status          Status            `json:"status"`
	Description     string            `json:"description,omitempty"`
	ReferenceNumber string            `json:"reference_number"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// ListFilter narrows and paginates a transaction listing.
type ListFilter struct {
	Page   int
	Limit  int
	Status Status
	Type   Type
}

// Page describes pagination metadata returned with a listing.
type Page struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
