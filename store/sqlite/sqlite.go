/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements lifecycle.TxStore using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences, plus
  the option of carrying the per-aggregate serialization on row-level
  locks instead of the engine's lock table.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements exist for ledger_events/audit_overrides
  - A unique index on (aggregate_id, sequence_number) rejects any attempt
    to write two events at the same chain position

KEY TABLES:
  deal_states:     One row per aggregate, replaced on each transition
  ledger_events:   Immutable hash-chained event log
  audit_overrides: Immutable compliance trail for forced bypasses

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/deals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := lifecycle.NewEngine(table, registry, store)

SEE ALSO:
  - lifecycle/store.go: Interface definitions
  - lifecycle/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/deal-engine/lifecycle"
)

// querier abstracts *sql.DB and *sql.Tx so the same query code serves
// both the plain store and transactional views.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements lifecycle.TxStore using SQLite.
type Store struct {
	db *sql.DB
	queries
}

type queries struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-side tooling and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Deal states (one row per aggregate)
	CREATE TABLE IF NOT EXISTS deal_states (
		aggregate_id TEXT PRIMARY KEY,
		current_state TEXT NOT NULL,
		entered_state_at TEXT NOT NULL,
		last_transition_by TEXT,
		last_transition_at TEXT
	);

	-- Ledger events (append-only, hash-chained)
	CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		sequence_number INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		event_data TEXT,
		actor_id TEXT NOT NULL,
		actor_name TEXT,
		actor_role TEXT,
		authority_context TEXT,
		evidence_refs TEXT,
		from_state TEXT,
		to_state TEXT,
		previous_event_hash TEXT NOT NULL,
		event_hash TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	-- CRITICAL: one event per chain position. A serialization bug can
	-- surface as a constraint violation here, never as a forked chain.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_events_aggregate_seq
		ON ledger_events(aggregate_id, sequence_number);

	CREATE INDEX IF NOT EXISTS idx_ledger_events_aggregate_type
		ON ledger_events(aggregate_id, event_type);

	-- Audit overrides (append-only compliance trail)
	CREATE TABLE IF NOT EXISTS audit_overrides (
		id TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_name TEXT,
		actor_role TEXT,
		bypassed_blockers TEXT,
		bypassed_approvals TEXT,
		reason TEXT NOT NULL,
		from_state TEXT,
		to_state TEXT,
		correlated_event_id TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_overrides_aggregate
		ON audit_overrides(aggregate_id, recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(lifecycle.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &lifecycle.StoreError{Op: "begin transaction", Err: err}
	}

	view := &queries{q: tx}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &lifecycle.StoreError{Op: "commit transaction", Err: err}
	}
	return nil
}

// =============================================================================
// DEAL STATES
// =============================================================================

func (s *queries) GetState(ctx context.Context, id lifecycle.AggregateID) (*lifecycle.DealState, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT aggregate_id, current_state, entered_state_at, last_transition_by, last_transition_at
		FROM deal_states WHERE aggregate_id = ?`, string(id))

	var state lifecycle.DealState
	var aggregateID, currentState, enteredAt string
	var transitionBy, transitionAt sql.NullString

	err := row.Scan(&aggregateID, &currentState, &enteredAt, &transitionBy, &transitionAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &lifecycle.StoreError{Op: "query state", Err: err}
	}

	state.AggregateID = lifecycle.AggregateID(aggregateID)
	state.CurrentState = lifecycle.State(currentState)
	state.EnteredStateAt = parseTime(enteredAt)
	state.LastTransitionBy = transitionBy.String
	if transitionAt.Valid {
		state.LastTransitionAt = parseTime(transitionAt.String)
	}
	return &state, nil
}

func (s *queries) PutState(ctx context.Context, state lifecycle.DealState) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO deal_states (aggregate_id, current_state, entered_state_at, last_transition_by, last_transition_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(aggregate_id) DO UPDATE SET
			current_state = excluded.current_state,
			entered_state_at = excluded.entered_state_at,
			last_transition_by = excluded.last_transition_by,
			last_transition_at = excluded.last_transition_at`,
		string(state.AggregateID),
		string(state.CurrentState),
		formatTime(state.EnteredStateAt),
		state.LastTransitionBy,
		formatTime(state.LastTransitionAt),
	)
	if err != nil {
		return &lifecycle.StoreError{Op: "put state", Err: err}
	}
	return nil
}

// =============================================================================
// LEDGER EVENTS
// =============================================================================

const eventColumns = `id, aggregate_id, sequence_number, event_type, event_data,
	actor_id, actor_name, actor_role, authority_context, evidence_refs,
	from_state, to_state, previous_event_hash, event_hash, recorded_at`

func (s *queries) AppendEvent(ctx context.Context, ev lifecycle.LedgerEvent) error {
	data, err := marshalJSON(ev.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}
	authority, err := marshalJSON(ev.AuthorityContext)
	if err != nil {
		return fmt.Errorf("encoding authority context: %w", err)
	}
	evidence, err := marshalJSON(ev.EvidenceRefs)
	if err != nil {
		return fmt.Errorf("encoding evidence refs: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO ledger_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.ID),
		string(ev.AggregateID),
		ev.SequenceNumber,
		string(ev.Type),
		data,
		ev.Actor.ID,
		ev.Actor.Name,
		string(ev.Actor.Role),
		authority,
		evidence,
		string(ev.FromState),
		string(ev.ToState),
		ev.PreviousEventHash,
		ev.EventHash,
		formatTime(ev.RecordedAt),
	)
	if err != nil {
		return &lifecycle.StoreError{Op: "append event", Err: err}
	}
	return nil
}

func (s *queries) LastEvent(ctx context.Context, id lifecycle.AggregateID) (*lifecycle.LedgerEvent, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM ledger_events
		WHERE aggregate_id = ?
		ORDER BY sequence_number DESC LIMIT 1`, string(id))

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &lifecycle.StoreError{Op: "query last event", Err: err}
	}
	return ev, nil
}

func (s *queries) LoadEvents(ctx context.Context, id lifecycle.AggregateID, q lifecycle.HistoryQuery) ([]lifecycle.LedgerEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE aggregate_id = ?`
	args := []any{string(id)}

	if q.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(q.EventType))
	}
	if q.Oldest {
		query += ` ORDER BY sequence_number ASC`
	} else {
		query += ` ORDER BY sequence_number DESC`
	}
	// SQLite requires a LIMIT clause when OFFSET is present; -1 means
	// unlimited.
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &lifecycle.StoreError{Op: "query events", Err: err}
	}
	defer rows.Close()

	var events []lifecycle.LedgerEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, &lifecycle.StoreError{Op: "scan event", Err: err}
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &lifecycle.StoreError{Op: "iterate events", Err: err}
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*lifecycle.LedgerEvent, error) {
	var ev lifecycle.LedgerEvent
	var id, aggregateID, eventType, recordedAt string
	var data, authority, evidence, actorName, actorRole, fromState, toState sql.NullString

	err := row.Scan(
		&id, &aggregateID, &ev.SequenceNumber, &eventType, &data,
		&ev.Actor.ID, &actorName, &actorRole, &authority, &evidence,
		&fromState, &toState, &ev.PreviousEventHash, &ev.EventHash, &recordedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.ID = lifecycle.EventID(id)
	ev.AggregateID = lifecycle.AggregateID(aggregateID)
	ev.Type = lifecycle.EventType(eventType)
	ev.Actor.Name = actorName.String
	ev.Actor.Role = lifecycle.Role(actorRole.String)
	ev.FromState = lifecycle.State(fromState.String)
	ev.ToState = lifecycle.State(toState.String)
	ev.RecordedAt = parseTime(recordedAt)

	if err := unmarshalJSON(data.String, &ev.Data); err != nil {
		return nil, fmt.Errorf("decoding event data: %w", err)
	}
	if err := unmarshalJSON(authority.String, &ev.AuthorityContext); err != nil {
		return nil, fmt.Errorf("decoding authority context: %w", err)
	}
	if err := unmarshalJSON(evidence.String, &ev.EvidenceRefs); err != nil {
		return nil, fmt.Errorf("decoding evidence refs: %w", err)
	}
	return &ev, nil
}

// =============================================================================
// AUDIT OVERRIDES
// =============================================================================

func (s *queries) AppendAudit(ctx context.Context, rec lifecycle.AuditOverrideRecord) error {
	blockers, err := marshalJSON(rec.BypassedBlockers)
	if err != nil {
		return fmt.Errorf("encoding bypassed blockers: %w", err)
	}
	approvals, err := marshalJSON(rec.BypassedApprovals)
	if err != nil {
		return fmt.Errorf("encoding bypassed approvals: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO audit_overrides (
			id, aggregate_id, actor_id, actor_name, actor_role,
			bypassed_blockers, bypassed_approvals, reason,
			from_state, to_state, correlated_event_id, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.AggregateID),
		rec.Actor.ID,
		rec.Actor.Name,
		string(rec.Actor.Role),
		blockers,
		approvals,
		rec.Reason,
		string(rec.FromState),
		string(rec.ToState),
		string(rec.CorrelatedEventID),
		formatTime(rec.RecordedAt),
	)
	if err != nil {
		return &lifecycle.StoreError{Op: "append audit record", Err: err}
	}
	return nil
}

func (s *queries) AuditRecords(ctx context.Context, id lifecycle.AggregateID) ([]lifecycle.AuditOverrideRecord, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, aggregate_id, actor_id, actor_name, actor_role,
		       bypassed_blockers, bypassed_approvals, reason,
		       from_state, to_state, correlated_event_id, recorded_at
		FROM audit_overrides
		WHERE aggregate_id = ?
		ORDER BY recorded_at ASC`, string(id))
	if err != nil {
		return nil, &lifecycle.StoreError{Op: "query audit records", Err: err}
	}
	defer rows.Close()

	var records []lifecycle.AuditOverrideRecord
	for rows.Next() {
		var rec lifecycle.AuditOverrideRecord
		var aggregateID, recordedAt string
		var actorName, actorRole, blockers, approvals, fromState, toState, eventID sql.NullString

		err := rows.Scan(
			&rec.ID, &aggregateID, &rec.Actor.ID, &actorName, &actorRole,
			&blockers, &approvals, &rec.Reason,
			&fromState, &toState, &eventID, &recordedAt,
		)
		if err != nil {
			return nil, &lifecycle.StoreError{Op: "scan audit record", Err: err}
		}

		rec.AggregateID = lifecycle.AggregateID(aggregateID)
		rec.Actor.Name = actorName.String
		rec.Actor.Role = lifecycle.Role(actorRole.String)
		rec.FromState = lifecycle.State(fromState.String)
		rec.ToState = lifecycle.State(toState.String)
		rec.CorrelatedEventID = lifecycle.EventID(eventID.String)
		rec.RecordedAt = parseTime(recordedAt)

		if err := unmarshalJSON(blockers.String, &rec.BypassedBlockers); err != nil {
			return nil, fmt.Errorf("decoding bypassed blockers: %w", err)
		}
		if err := unmarshalJSON(approvals.String, &rec.BypassedApprovals); err != nil {
			return nil, fmt.Errorf("decoding bypassed approvals: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &lifecycle.StoreError{Op: "iterate audit records", Err: err}
	}
	return records, nil
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON[T any](raw string, dest *T) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
