/*
engine.go - State machine orchestration

PURPOSE:
  The Engine ties the four parts together: it consults the transition
  table, evaluates blocker checks, validates approval quorums, and
  commits state changes jointly with ledger events (and, when forced,
  audit override records) in one atomic unit.

TRANSITION FLOW:
  1. Look up the edge (currentState -> targetState); absent edge fails
     with TransitionNotAllowed.
  2. Run ALL blocker checks required for the target state, concurrently.
     Any blocked result fails with BlockedTransition carrying the full
     list - unless the caller forces.
  3. Validate supplied approvals against the target's required roles;
     unmet quorum fails with MissingApprovals - unless forced.
  4. A forced bypass requires a non-empty force reason and queues an
     audit override record.
  5. Atomically: update the aggregate state, append the ledger event,
     write the queued audit record. All or nothing.

BLOCKER STALENESS:
  Blocker checks run BEFORE the per-aggregate critical section so the
  exclusive window stays short. A blocker can therefore change between
  evaluation and commit; this bounded staleness is an accepted trade-off.
  The edge itself IS re-validated inside the critical section, so a
  concurrent transition can never commit over a stale current state.

CONCURRENCY:
  Every operation may block on I/O (store, blocker predicates); invoke
  from whatever goroutine serves the business request. The engine holds
  no shared mutable state beyond the per-aggregate lock table it shares
  with its ledger.

SEE ALSO:
  - rules.go, blockers.go, ledger.go, audit.go: The orchestrated parts
*/
package lifecycle

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates transitions against one transition table. Multiple
// engines with different tables can share a process (and a store).
type Engine struct {
	table    *TransitionTable
	blockers *BlockerRegistry
	store    TxStore
	ledger   *DefaultLedger
	locks    *lockTable
}

// NewEngine wires an engine. The ledger shares the engine's per-aggregate
// lock table, so direct Ledger().Append calls and engine transitions
// serialize against each other.
func NewEngine(table *TransitionTable, blockers *BlockerRegistry, store TxStore) *Engine {
	locks := newLockTable()
	return &Engine{
		table:    table,
		blockers: blockers,
		store:    store,
		ledger:   newLedger(store, locks),
		locks:    locks,
	}
}

// Ledger exposes the engine's event ledger for read-side collaborators.
func (e *Engine) Ledger() Ledger {
	return e.ledger
}

// Table exposes the engine's transition table.
func (e *Engine) Table() *TransitionTable {
	return e.table
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// GetState returns the aggregate's current state, lazily initializing to
// the table's initial state when no record exists. The lazy value is not
// persisted; the first committed transition writes it. Idempotent.
func (e *Engine) GetState(ctx context.Context, id AggregateID) (*DealState, error) {
	state, err := e.store.GetState(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if state == nil {
		return &DealState{
			AggregateID:    id,
			CurrentState:   e.table.InitialState(),
			EnteredStateAt: time.Now().UTC(),
		}, nil
	}
	return state, nil
}

// TransitionOption describes one currently-reachable target state and
// what entering it requires.
type TransitionOption struct {
	TargetState       State
	RequiredApprovals []Role
	RequiredChecks    []string
	Blockers          []BlockerResult // blocked results only
	CanTransition     bool
}

// AvailableTransitions evaluates, for every state reachable from the
// current one, the blocker checks required to enter it.
func (e *Engine) AvailableTransitions(ctx context.Context, id AggregateID) ([]TransitionOption, error) {
	state, err := e.GetState(ctx, id)
	if err != nil {
		return nil, err
	}

	targets := e.table.AllowedTransitions(state.CurrentState)
	options := make([]TransitionOption, 0, len(targets))
	for _, target := range targets {
		reqs := e.table.RequirementsFor(target)
		blocked := Blocked(e.blockers.RunAll(ctx, reqs.BlockerChecks, id))
		options = append(options, TransitionOption{
			TargetState:       target,
			RequiredApprovals: reqs.ApprovalRoles,
			RequiredChecks:    reqs.BlockerChecks,
			Blockers:          blocked,
			CanTransition:     len(blocked) == 0,
		})
	}
	return options, nil
}

// CurrentBlockers returns, per reachable target state, the blocker checks
// currently reporting blocked.
func (e *Engine) CurrentBlockers(ctx context.Context, id AggregateID) (map[State][]BlockerResult, error) {
	options, err := e.AvailableTransitions(ctx, id)
	if err != nil {
		return nil, err
	}
	blockers := make(map[State][]BlockerResult)
	for _, opt := range options {
		if len(opt.Blockers) > 0 {
			blockers[opt.TargetState] = opt.Blockers
		}
	}
	return blockers, nil
}

// EventHistory returns a slice of the aggregate's event chain.
func (e *Engine) EventHistory(ctx context.Context, id AggregateID, q HistoryQuery) ([]LedgerEvent, error) {
	return e.ledger.History(ctx, id, q)
}

// VerifyEventChain walks the aggregate's full chain and reports defects.
func (e *Engine) VerifyEventChain(ctx context.Context, id AggregateID) (*VerificationResult, error) {
	return e.ledger.VerifyChain(ctx, id)
}

// AuditTrail returns the aggregate's override records, oldest first.
func (e *Engine) AuditTrail(ctx context.Context, id AggregateID) ([]AuditOverrideRecord, error) {
	return e.store.AuditRecords(ctx, id)
}

// =============================================================================
// TRANSITION
// =============================================================================

// TransitionOptions carries the caller-supplied inputs to a transition.
type TransitionOptions struct {
	// Approvals are validated against the target state's required roles.
	Approvals []Approval

	// Force proceeds past unmet blockers or approvals. Requires
	// ForceReason; produces an audit override record.
	Force       bool
	ForceReason string

	// Reason is recorded in the ledger event's data.
	Reason string

	// EvidenceRefs are opaque references recorded on the ledger event.
	EvidenceRefs []string
}

// TransitionResult is the committed outcome.
type TransitionResult struct {
	State DealState
	Event LedgerEvent
}

// Transition advances the aggregate to targetState, enforcing blockers
// and approvals per the table, and commits the state update, ledger
// event, and any audit override record atomically.
func (e *Engine) Transition(ctx context.Context, id AggregateID, targetState State, actor Actor, opts TransitionOptions) (*TransitionResult, error) {
	current, err := e.GetState(ctx, id)
	if err != nil {
		return nil, err
	}

	if !e.table.Allows(current.CurrentState, targetState) {
		return nil, &TransitionNotAllowedError{AggregateID: id, From: current.CurrentState, To: targetState}
	}

	reqs := e.table.RequirementsFor(targetState)

	// Evaluate blockers outside the critical section; see the file header
	// for the accepted staleness window.
	blocked := Blocked(e.blockers.RunAll(ctx, reqs.BlockerChecks, id))
	if len(blocked) > 0 && !opts.Force {
		return nil, &BlockedTransitionError{AggregateID: id, Target: targetState, Blockers: blocked}
	}

	missing := missingApprovals(reqs.ApprovalRoles, opts.Approvals)
	if len(missing) > 0 && !opts.Force {
		return nil, &MissingApprovalsError{AggregateID: id, Target: targetState, MissingRoles: missing}
	}

	forced := opts.Force && (len(blocked) > 0 || len(missing) > 0)
	if forced && opts.ForceReason == "" {
		return nil, fmt.Errorf("aggregate %s: %w", id, ErrOverrideReasonRequired)
	}

	unlock := e.locks.lock(id)
	defer unlock()

	var result *TransitionResult
	err = e.store.WithTx(ctx, func(s Store) error {
		now := time.Now()

		// Re-read inside the critical section: a concurrent transition may
		// have moved the aggregate since the pre-checks above.
		fresh, err := s.GetState(ctx, id)
		if err != nil {
			return fmt.Errorf("re-reading state: %w", err)
		}
		fromState := e.table.InitialState()
		if fresh != nil {
			fromState = fresh.CurrentState
		}
		if !e.table.Allows(fromState, targetState) {
			return &TransitionNotAllowedError{AggregateID: id, From: fromState, To: targetState}
		}

		data := map[string]any{}
		if opts.Reason != "" {
			data["reason"] = opts.Reason
		}
		if forced {
			data["forced"] = true
			data["force_reason"] = opts.ForceReason
			data["bypassed_blockers"] = blockerNames(blocked)
			data["bypassed_approvals"] = roleNames(missing)
		}

		ev, err := e.ledger.appendLocked(ctx, s, AppendInput{
			AggregateID:      id,
			Type:             EventTransition,
			Data:             data,
			Actor:            actor,
			AuthorityContext: approvalContext(opts.Approvals),
			EvidenceRefs:     opts.EvidenceRefs,
			FromState:        fromState,
			ToState:          targetState,
		}, now)
		if err != nil {
			return err
		}

		newState := DealState{
			AggregateID:      id,
			CurrentState:     targetState,
			EnteredStateAt:   now.UTC(),
			LastTransitionBy: actor.ID,
			LastTransitionAt: now.UTC(),
		}
		if err := s.PutState(ctx, newState); err != nil {
			return fmt.Errorf("writing state: %w", err)
		}

		if forced {
			rec, err := newOverrideRecord(OverrideInput{
				AggregateID:       id,
				Actor:             actor,
				BypassedBlockers:  blocked,
				BypassedApprovals: missing,
				Reason:            opts.ForceReason,
				FromState:         fromState,
				ToState:           targetState,
				CorrelatedEventID: ev.ID,
			}, now)
			if err != nil {
				return err
			}
			if err := s.AppendAudit(ctx, *rec); err != nil {
				return fmt.Errorf("writing audit record: %w", err)
			}
		}

		result = &TransitionResult{State: newState, Event: *ev}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// DOMAIN EVENTS
// =============================================================================

// RecordOptions carries the optional inputs to RecordEvent.
type RecordOptions struct {
	AuthorityContext map[string]any
	EvidenceRefs     []string
}

// RecordEvent appends a non-transition domain event (e.g. "document
// generated") to the aggregate's chain, with the same sequencing and
// hashing discipline as transitions. The state_transition type is
// reserved: state changes only happen through Transition.
func (e *Engine) RecordEvent(ctx context.Context, id AggregateID, eventType EventType, data map[string]any, actor Actor, opts RecordOptions) (*LedgerEvent, error) {
	if eventType == EventTransition {
		return nil, fmt.Errorf("%q: %w", eventType, ErrReservedEventType)
	}
	return e.ledger.Append(ctx, AppendInput{
		AggregateID:      id,
		Type:             eventType,
		Data:             data,
		Actor:            actor,
		AuthorityContext: opts.AuthorityContext,
		EvidenceRefs:     opts.EvidenceRefs,
	})
}

// =============================================================================
// APPROVAL VALIDATION
// =============================================================================

// missingApprovals returns the required roles with no approved entry.
// One approved entry per required role satisfies the quorum; extra
// approvals are recorded but not required.
func missingApprovals(required []Role, supplied []Approval) []Role {
	var missing []Role
	for _, role := range required {
		found := false
		for _, a := range supplied {
			if a.Role == role && a.Approved {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, role)
		}
	}
	return missing
}

func approvalContext(approvals []Approval) map[string]any {
	if len(approvals) == 0 {
		return nil
	}
	entries := make([]map[string]any, len(approvals))
	for i, a := range approvals {
		entries[i] = map[string]any{"role": string(a.Role), "approved": a.Approved}
	}
	return map[string]any{"approvals": entries}
}

func blockerNames(results []BlockerResult) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	return names
}

func roleNames(roles []Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}
