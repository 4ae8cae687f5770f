/*
Package lifecycle provides the core deal lifecycle engine.

PURPOSE:
  This package contains the domain-agnostic machinery for running a
  multi-stage approval pipeline: a data-driven transition table, a
  registry of named precondition checks ("blockers"), an append-only
  hash-chained event ledger, and an audit trail for explicit policy
  overrides. The engine orchestrates all four.

KEY CONCEPTS IN THIS FILE (types.go):
  - DealState: The current position of one aggregate in the pipeline
  - LedgerEvent: An immutable, hash-chained audit record
  - Actor: The already-authenticated identity performing an operation
  - Approval: An ephemeral role-level sign-off supplied with a transition
  - AuditOverrideRecord: The compliance record written on a forced bypass
  - BlockerResult: The outcome of one precondition check

DESIGN PRINCIPLES:
  1. Immutability: Ledger events are never updated or deleted
  2. Tamper evidence: Every event embeds the previous event's hash
  3. Type Safety: Strong typing for aggregate ids, states, and roles
  4. Data-driven: States and edges come from configuration, never code

USAGE:
  table, _ := lifecycle.NewTransitionTable(cfg)
  engine := lifecycle.NewEngine(table, registry, store)
  result, err := engine.Transition(ctx, "deal-1", "DATA_ROOM_INGESTED", actor,
      lifecycle.TransitionOptions{Reason: "data room complete"})

SEE ALSO:
  - rules.go: Transition table construction and lookup
  - blockers.go: Blocker check registry
  - ledger.go: Hash-chained event ledger
  - engine.go: Orchestration
*/
package lifecycle

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AggregateID string
type State string
type Role string
type EventID string
type EventType string

// EventTransition is the event type the engine writes for every committed
// state change. All other event types belong to the embedding domain.
const EventTransition EventType = "state_transition"

// =============================================================================
// ACTOR - Already-authenticated caller identity
// =============================================================================

// Actor identifies who performed an operation. Authentication is the
// caller's responsibility; the engine records the identity verbatim.
type Actor struct {
	ID   string
	Name string
	Role Role
}

// =============================================================================
// DEAL STATE - Aggregate root position in the pipeline
// =============================================================================

// DealState is the current position of one workflow instance.
//
// INVARIANT: CurrentState only changes as the result of a committed
// transition. There is no other write path.
type DealState struct {
	AggregateID      AggregateID
	CurrentState     State
	EnteredStateAt   time.Time
	LastTransitionBy string
	LastTransitionAt time.Time
}

// =============================================================================
// APPROVAL - Ephemeral input to a transition call
// =============================================================================

// Approval is a role-level sign-off supplied with a transition call.
// Approvals are not persisted as entities; their provenance lands in the
// ledger event's authority context.
type Approval struct {
	Role     Role
	Approved bool
}

// =============================================================================
// LEDGER EVENT - Immutable hash-chained audit record
// =============================================================================

// LedgerEvent is one entry in an aggregate's append-only event chain.
//
// INVARIANTS:
//   - SequenceNumber starts at 1 and is gapless per aggregate
//   - PreviousEventHash equals the prior event's EventHash exactly
//     (ZeroHash for the first event)
//   - EventHash covers aggregate id, sequence number, event type, event
//     data, the previous hash, and the write timestamp
type LedgerEvent struct {
	ID             EventID
	AggregateID    AggregateID
	SequenceNumber int64
	Type           EventType
	Data           map[string]any

	Actor            Actor
	AuthorityContext map[string]any
	EvidenceRefs     []string

	// Set only for state_transition events.
	FromState State
	ToState   State

	PreviousEventHash string
	EventHash         string
	RecordedAt        time.Time
}

// IsTransition reports whether this event records a state change.
func (e *LedgerEvent) IsTransition() bool {
	return e.Type == EventTransition
}

// =============================================================================
// BLOCKER RESULT - Outcome of one precondition check
// =============================================================================

// BlockerResult reports whether a named precondition currently blocks a
// transition, and why.
type BlockerResult struct {
	Name    string
	Blocked bool
	Reason  string
	Details map[string]any
}

// =============================================================================
// AUDIT OVERRIDE RECORD - Compliance trail for forced bypasses
// =============================================================================

// AuditOverrideRecord is written when a caller explicitly forces a
// transition past unmet blockers or approvals. It is append-only and lives
// outside the hash chain; CorrelatedEventID links it to the ledger event
// it accompanies.
type AuditOverrideRecord struct {
	ID                string
	AggregateID       AggregateID
	Actor             Actor
	BypassedBlockers  []BlockerResult
	BypassedApprovals []Role
	Reason            string
	FromState         State
	ToState           State
	CorrelatedEventID EventID
	RecordedAt        time.Time
}
