package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Actions recorded against the audit trail. The set below is the durable
// contract consumed by compliance tooling.
const (
	ActionAccountCreated       = "ACCOUNT_CREATED"
	ActionAccountClosed        = "ACCOUNT_CLOSED"
	ActionBalanceAdjusted      = "BALANCE_ADJUSTED"
	ActionTransactionCreated   = "TRANSACTION_CREATED"
	ActionTransactionCompleted = "TRANSACTION_COMPLETED"
	ActionTransactionFailed    = "TRANSACTION_FAILED"
)

// Entry is one append-only audit record. Entries are written in the same
// unit of work as the mutation they describe and are never updated or
// deleted.
type Entry struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	CreatedAt    time.Time
}

// Executor is the subset of pgx capable of running the audit insert. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so stores can append entries inside
// an open transaction.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert appends an entry using the provided executor.
func Insert(ctx context.Context, q Executor, e Entry) error {
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return err
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := q.Exec(ctx, `INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), e.ActorID, e.Action, e.ResourceType, e.ResourceID, details, e.CreatedAt)
	return err
}

// MemoryLog collects audit entries in memory for the in-memory stores and
// for asserting audit behavior in tests.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLog constructs an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append records an entry.
func (l *MemoryLog) Append(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the recorded entries in append order.
func (l *MemoryLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
