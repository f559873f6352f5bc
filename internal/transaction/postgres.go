package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerpay/ledgerpay/internal/account"
	"github.com/ledgerpay/ledgerpay/internal/audit"
)

const uniqueViolation = "23505"

// PostgresStore persists transactions in PostgreSQL. Creation and
// settlement each run as one pgx transaction holding SELECT ... FOR UPDATE
// locks: the transaction row first, then account rows in ascending id
// order, so concurrent settlements and transfers cannot deadlock.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the pending transaction and reserves available balance
// for reserve-type transactions, atomically.
func (s *PostgresStore) Create(ctx context.Context, txn Transaction, actorID string) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var status string
	var available decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT status, available_balance FROM accounts WHERE id = $1 FOR UPDATE`, txn.AccountID).
		Scan(&status, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, account.ErrNotFound
		}
		return Transaction{}, err
	}
	if status != account.StatusActive {
		return Transaction{}, fmt.Errorf("%w: account is not active", account.ErrInvalidState)
	}
	if txn.Type.Reserves() && available.LessThan(txn.Amount) {
		return Transaction{}, account.ErrInsufficientFunds
	}

	if txn.Type == TypeTransfer {
		var destStatus string
		err = tx.QueryRow(ctx, `SELECT status FROM accounts WHERE id = $1`, txn.CounterpartyID).Scan(&destStatus)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Transaction{}, account.ErrNotFound
			}
			return Transaction{}, err
		}
		if destStatus != account.StatusActive {
			return Transaction{}, fmt.Errorf("%w: destination account is not active", account.ErrInvalidState)
		}
	}

	metadata, err := json.Marshal(txn.Metadata)
	if err != nil {
		return Transaction{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO transactions
        (id, account_id, counterparty_id, transaction_type, amount, currency, status, description, reference_number, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.ID, txn.AccountID, nullable(txn.CounterpartyID), txn.Type, txn.Amount, txn.Currency,
		txn.Status, nullable(txn.Description), txn.ReferenceNumber, metadata, txn.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Transaction{}, ErrConflict
		}
		return Transaction{}, err
	}

	if txn.Type.Reserves() {
		_, err = tx.Exec(ctx, `UPDATE accounts SET available_balance = available_balance - $1, updated_at = now() WHERE id = $2`,
			txn.Amount, txn.AccountID)
		if err != nil {
			return Transaction{}, err
		}
	}

	entry := audit.Entry{
		ActorID:      actorID,
		Action:       audit.ActionTransactionCreated,
		ResourceType: "transaction",
		ResourceID:   txn.ID,
		Details:      map[string]any{"amount": txn.Amount.String(), "type": string(txn.Type)},
	}
	if err := audit.Insert(ctx, tx, entry); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// Settle drives a pending transaction to its terminal state exactly once.
func (s *PostgresStore) Settle(ctx context.Context, id, actorID string) (Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	if txn.Status != StatusPending {
		return Transaction{}, ErrAlreadyProcessed
	}

	ids := []string{txn.AccountID}
	if txn.Type == TypeTransfer {
		ids = append(ids, txn.CounterpartyID)
		sort.Strings(ids)
	}

	balances := make(map[string]*accountBalances, len(ids))
	for _, accountID := range ids {
		b := &accountBalances{}
		err = tx.QueryRow(ctx, `SELECT status, balance, available_balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).
			Scan(&b.status, &b.balance, &b.available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Transaction{}, account.ErrNotFound
			}
			return Transaction{}, err
		}
		// an account closed or suspended after creation blocks settlement;
		// the transaction stays pending
		if b.status != account.StatusActive {
			return Transaction{}, fmt.Errorf("%w: account is not active", account.ErrInvalidState)
		}
		balances[accountID] = b
	}

	source := balances[txn.AccountID]
	switch {
	case txn.Type.Credits():
		source.balance = source.balance.Add(txn.Amount)
		source.available = source.available.Add(txn.Amount)
	case txn.Type == TypeTransfer:
		if source.balance.LessThan(txn.Amount) {
			return s.settleFailed(ctx, tx, txn, actorID)
		}
		dest := balances[txn.CounterpartyID]
		source.balance = source.balance.Sub(txn.Amount)
		dest.balance = dest.balance.Add(txn.Amount)
		dest.available = dest.available.Add(txn.Amount)
	default: // withdrawal, debit
		if source.balance.LessThan(txn.Amount) {
			return s.settleFailed(ctx, tx, txn, actorID)
		}
		// available balance was already reduced by the reservation at
		// creation time, so only the settled balance moves here
		source.balance = source.balance.Sub(txn.Amount)
	}

	for accountID, b := range balances {
		_, err = tx.Exec(ctx, `UPDATE accounts SET balance = $1, available_balance = $2, updated_at = now() WHERE id = $3`,
			b.balance, b.available, accountID)
		if err != nil {
			return Transaction{}, err
		}
	}

	completedAt := time.Now().UTC()
	_, err = tx.Exec(ctx, `UPDATE transactions SET status = $1, completed_at = $2 WHERE id = $3`,
		StatusCompleted, completedAt, txn.ID)
	if err != nil {
		return Transaction{}, err
	}

	entry := audit.Entry{
		ActorID:      actorID,
		Action:       audit.ActionTransactionCompleted,
		ResourceType: "transaction",
		ResourceID:   txn.ID,
		Details:      map[string]any{"amount": txn.Amount.String(), "type": string(txn.Type)},
	}
	if err := audit.Insert(ctx, tx, entry); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	txn.Status = StatusCompleted
	txn.CompletedAt = &completedAt
	return txn, nil
}

// settleFailed commits the failed terminal state. The settled balance is
// untouched; the reservation taken at creation is released so the account
// returns to balance == available once the transaction is resolved.
func (s *PostgresStore) settleFailed(ctx context.Context, tx pgx.Tx, txn Transaction, actorID string) (Transaction, error) {
	if txn.Type.Reserves() {
		_, err := tx.Exec(ctx, `UPDATE accounts SET available_balance = available_balance + $1, updated_at = now() WHERE id = $2`,
			txn.Amount, txn.AccountID)
		if err != nil {
			return Transaction{}, err
		}
	}

	completedAt := time.Now().UTC()
	_, err := tx.Exec(ctx, `UPDATE transactions SET status = $1, completed_at = $2 WHERE id = $3`,
		StatusFailed, completedAt, txn.ID)
	if err != nil {
		return Transaction{}, err
	}

	entry := audit.Entry{
		ActorID:      actorID,
		Action:       audit.ActionTransactionFailed,
		ResourceType: "transaction",
		ResourceID:   txn.ID,
		Details:      map[string]any{"amount": txn.Amount.String(), "type": string(txn.Type), "reason": "insufficient funds"},
	}
	if err := audit.Insert(ctx, tx, entry); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	txn.Status = StatusFailed
	txn.CompletedAt = &completedAt
	return txn, account.ErrInsufficientFunds
}

// Get fetches the transaction, joining through the owning account so a
// caller can only see transactions on accounts they own.
func (s *PostgresStore) Get(ctx context.Context, id, userID string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+prefixedTransactionColumns+`
        FROM transactions t
        INNER JOIN accounts a ON t.account_id = a.id
        WHERE t.id = $1 AND a.user_id = $2`, id, userID)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	return txn, nil
}

// List returns the account's transactions newest first with paging
// metadata. Status and type filters are optional equality predicates.
func (s *PostgresStore) List(ctx context.Context, accountID, userID string, f ListFilter) ([]Transaction, Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}

	where := ` FROM transactions t INNER JOIN accounts a ON t.account_id = a.id WHERE t.account_id = $1 AND a.user_id = $2`
	args := []any{accountID, userID}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where += fmt.Sprintf(" AND t.transaction_type = $%d", len(args))
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, Page{}, err
	}

	listArgs := append(args, f.Limit, (f.Page-1)*f.Limit)
	query := `SELECT ` + prefixedTransactionColumns + where +
		fmt.Sprintf(` ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d`, len(listArgs)-1, len(listArgs))

	rows, err := s.db.Query(ctx, query, listArgs...)
	if err != nil {
		return nil, Page{}, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, Page{}, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, Page{}, err
	}

	page := Page{Page: f.Page, Limit: f.Limit, Total: total, TotalPages: (total + f.Limit - 1) / f.Limit}
	return txns, page, nil
}

type accountBalances struct {
	status    string
	balance   decimal.Decimal
	available decimal.Decimal
}

const transactionColumns = `id, account_id, counterparty_id, transaction_type, amount, currency, status, description, reference_number, metadata, created_at, completed_at`

const prefixedTransactionColumns = `t.id, t.account_id, t.counterparty_id, t.transaction_type, t.amount, t.currency, t.status, t.description, t.reference_number, t.metadata, t.created_at, t.completed_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	var counterparty, description *string
	var metadata []byte
	err := row.Scan(&txn.ID, &txn.AccountID, &counterparty, &txn.Type, &txn.Amount, &txn.Currency,
		&txn.Status, &description, &txn.ReferenceNumber, &metadata, &txn.CreatedAt, &txn.CompletedAt)
	if err != nil {
		return Transaction{}, err
	}
	if counterparty != nil {
		txn.CounterpartyID = *counterparty
	}
	if description != nil {
		txn.Description = *description
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
			return Transaction{}, err
		}
	}
	return txn, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
