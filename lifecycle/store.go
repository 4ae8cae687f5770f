/*
store.go - Persistence interface for deal state, ledger events, and audit records

PURPOSE:
  Defines the interface between the engine and the database. The engine
  only needs keyed reads and atomic multi-write transactions per
  aggregate; everything else (SQL dialect, encryption at rest, pooling)
  is the implementation's concern.

APPEND-ONLY CONTRACT:
  Ledger events and audit records are append-only:
  - AppendEvent() / AppendAudit() are the ONLY write operations
  - NO update or delete methods exist for either table

ATOMIC UNITS:
  WithTx() gives the all-or-nothing unit the engine relies on: a forced
  transition commits its state update, ledger event, and audit record
  together, or none of them.

IMPLEMENTATIONS:
  - lifecycle/store/memory.go: In-memory, for tests and dev
  - store/sqlite: Production SQLite (WAL), same patterns apply to
    PostgreSQL with row-level locking

SEE ALSO:
  - ledger.go: Per-aggregate serialization on top of this interface
  - engine.go: Composes state + event + audit writes inside WithTx
*/
package lifecycle

import "context"

// =============================================================================
// HISTORY QUERY - Limit/offset pagination over one aggregate's chain
// =============================================================================

// HistoryQuery selects a slice of an aggregate's event history.
// Zero value means: newest first, all event types, no limit.
type HistoryQuery struct {
	// Limit caps the number of returned events; 0 means unlimited.
	Limit int

	// Offset skips events after ordering, for restartable pagination.
	Offset int

	// Oldest orders oldest-first when true; default is most-recent-first.
	Oldest bool

	// EventType filters to a single event type when non-empty.
	EventType EventType
}

// =============================================================================
// STORE - Keyed, atomic read-modify-write persistence
// =============================================================================

// Store handles persistence for the engine. Events and audit records are
// APPEND-ONLY: no update, no delete. Ever.
type Store interface {
	// GetState returns the aggregate's state record, or (nil, nil) if the
	// aggregate has never transitioned.
	GetState(ctx context.Context, id AggregateID) (*DealState, error)

	// PutState creates or replaces the aggregate's state record.
	PutState(ctx context.Context, state DealState) error

	// AppendEvent persists one ledger event. Implementations must reject a
	// duplicate (aggregate_id, sequence_number) pair so a serialization
	// bug can never silently fork the chain.
	AppendEvent(ctx context.Context, ev LedgerEvent) error

	// LastEvent returns the highest-sequence event for the aggregate, or
	// (nil, nil) if the chain is empty.
	LastEvent(ctx context.Context, id AggregateID) (*LedgerEvent, error)

	// LoadEvents returns the aggregate's events selected by the query.
	LoadEvents(ctx context.Context, id AggregateID, q HistoryQuery) ([]LedgerEvent, error)

	// AppendAudit persists one override record.
	AppendAudit(ctx context.Context, rec AuditOverrideRecord) error

	// AuditRecords returns the aggregate's override records, oldest first.
	AuditRecords(ctx context.Context, id AggregateID) ([]AuditOverrideRecord, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic multi-write unit
// =============================================================================

// TxStore wraps Store with transaction support.
// If fn returns an error, nothing it wrote is visible afterwards.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
