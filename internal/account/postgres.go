package account

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerpay/ledgerpay/internal/audit"
)

const uniqueViolation = "23505"

// PostgresStore stores accounts in PostgreSQL. All balance mutation runs
// inside a transaction holding a SELECT ... FOR UPDATE lock on the account
// row, so concurrent mutations against one account serialize.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the account record and its audit entry atomically.
func (s *PostgresStore) Create(ctx context.Context, a Account) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	_, err = tx.Exec(ctx, `INSERT INTO accounts
        (id, user_id, account_number, account_type, currency, balance, available_balance, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		a.ID, a.UserID, a.AccountNumber, a.AccountType, a.Currency, a.Balance, a.AvailableBalance, a.Status, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return err
	}

	entry := audit.Entry{
		ActorID:      a.UserID,
		Action:       audit.ActionAccountCreated,
		ResourceType: "account",
		ResourceID:   a.ID,
	}
	if err := audit.Insert(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const accountColumns = `id, user_id, account_number, account_type, currency, balance, available_balance, status, created_at, updated_at`

// Get fetches the account matching both id and owner.
func (s *PostgresStore) Get(ctx context.Context, id, userID string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2`, id, userID)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// List returns the owner's accounts ordered newest first.
func (s *PostgresStore) List(ctx context.Context, userID string) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Adjust applies the delta to both balances under a row lock.
func (s *PostgresStore) Adjust(ctx context.Context, id string, amount decimal.Decimal, dir Direction, actorID string) (decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balance, available decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT balance, available_balance FROM accounts WHERE id = $1 FOR UPDATE`, id).
		Scan(&balance, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}

	delta := amount
	switch dir {
	case DirectionCredit:
	case DirectionDebit:
		if balance.LessThan(amount) {
			return decimal.Zero, ErrInsufficientFunds
		}
		delta = amount.Neg()
	default:
		return decimal.Zero, ErrValidation
	}

	newBalance := balance.Add(delta)
	newAvailable := available.Add(delta)

	_, err = tx.Exec(ctx, `UPDATE accounts SET balance = $1, available_balance = $2, updated_at = now() WHERE id = $3`,
		newBalance, newAvailable, id)
	if err != nil {
		return decimal.Zero, err
	}

	entry := audit.Entry{
		ActorID:      actorID,
		Action:       audit.ActionBalanceAdjusted,
		ResourceType: "account",
		ResourceID:   id,
		Details:      map[string]any{"amount": amount.String(), "direction": string(dir)},
	}
	if err := audit.Insert(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Close marks the account closed once the settled balance is exactly zero.
func (s *PostgresStore) Close(ctx context.Context, id, userID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var status string
	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT status, balance FROM accounts WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID).
		Scan(&status, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if status != StatusActive {
		return ErrInvalidState
	}
	if !balance.IsZero() {
		return ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET status = $1, updated_at = now() WHERE id = $2`, StatusClosed, id); err != nil {
		return err
	}

	entry := audit.Entry{
		ActorID:      userID,
		Action:       audit.ActionAccountClosed,
		ResourceType: "account",
		ResourceID:   id,
	}
	if err := audit.Insert(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.AccountType, &a.Currency,
		&a.Balance, &a.AvailableBalance, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}
