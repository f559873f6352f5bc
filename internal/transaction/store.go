package transaction

import "context"

// Store persists transactions and owns the atomic creation and settlement
// units of work. Implementations append audit entries inside the same unit
// of work as the mutation they record.
type Store interface {
	// Create inserts the transaction in pending state and, for
	// reserve-type transactions, debits the account's available balance in
	// the same unit of work. Fails with account.ErrInsufficientFunds when
	// the reservation cannot be covered, ErrConflict on a reference number
	// collision.
	Create(ctx context.Context, txn Transaction, actorID string) (Transaction, error)

	// Settle drives the pending transaction to a terminal state under
	// exclusive locks on the transaction row and its account row(s),
	// transaction first, accounts in ascending id order. Every involved
	// account must still be active; otherwise settlement fails with
	// account.ErrInvalidState and the transaction stays pending. A
	// settlement that fails funds checks commits the failed status and
	// returns the updated transaction alongside
	// account.ErrInsufficientFunds.
	Settle(ctx context.Context, id, actorID string) (Transaction, error)

	// Get returns the transaction, joining through the owning account to
	// enforce ownership.
	Get(ctx context.Context, id, userID string) (Transaction, error)

	// List returns the account's transactions newest first with paging
	// metadata.
	List(ctx context.Context, accountID, userID string, f ListFilter) ([]Transaction, Page, error)
}
