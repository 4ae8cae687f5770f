/*
errors.go - Centralized error types for the lifecycle engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages and API layers should wrap these errors with
  additional context.

ERROR CATEGORIES:
  1. Transition errors - Rejected transition attempts
  2. Configuration errors - Invalid transition tables (fatal at startup)
  3. Store errors - Persistence-level failures

USAGE:
  Callers branch on sentinels:

    if errors.Is(err, lifecycle.ErrBlockedTransition) {
        var blocked *lifecycle.BlockedTransitionError
        errors.As(err, &blocked)
        // render blocked.Blockers
    }

SEE ALSO:
  - engine.go: Produces transition errors
  - rules.go: Produces configuration errors
  - store/: Produces store errors
*/
package lifecycle

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTransitionNotAllowed is returned when the requested edge is absent
	// from the transition table. Retrying without a configuration change
	// cannot succeed.
	ErrTransitionNotAllowed = errors.New("transition not allowed")

	// ErrBlockedTransition is returned when one or more blocker checks
	// report blocked and the caller did not force.
	ErrBlockedTransition = errors.New("transition blocked")

	// ErrMissingApprovals is returned when the approval quorum for the
	// target state is not met and the caller did not force.
	ErrMissingApprovals = errors.New("missing approvals")

	// ErrBlockerCheckFailed is returned when a blocker predicate itself
	// errored. The engine treats the check as blocked; this sentinel is
	// carried in the result's details for diagnosis.
	ErrBlockerCheckFailed = errors.New("blocker check failed")

	// ErrHashChainViolation marks a broken event chain. It is only produced
	// on the read side (chain verification), never by write paths.
	ErrHashChainViolation = errors.New("hash chain violation")

	// ErrStoreUnavailable is returned for transient persistence failures.
	// Safe to retry the whole operation: no partial state is ever committed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrOverrideReasonRequired is returned when a forced transition is
	// attempted without a non-empty force reason.
	ErrOverrideReasonRequired = errors.New("override reason required")

	// ErrUnknownState is returned when a transition table references a
	// state that is not configured. Fatal at startup, never at request time.
	ErrUnknownState = errors.New("unknown state")

	// ErrCheckAlreadyRegistered is returned when registering a blocker
	// check under a name that is already taken.
	ErrCheckAlreadyRegistered = errors.New("blocker check already registered")

	// ErrReservedEventType is returned when RecordEvent is called with the
	// engine-reserved state_transition event type.
	ErrReservedEventType = errors.New("event type reserved for transitions")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionNotAllowedError reports a request for an edge the table does
// not contain.
type TransitionNotAllowedError struct {
	AggregateID AggregateID
	From        State
	To          State
}

func (e *TransitionNotAllowedError) Error() string {
	return fmt.Sprintf("transition not allowed: %s -> %s (aggregate %s)", e.From, e.To, e.AggregateID)
}

func (e *TransitionNotAllowedError) Unwrap() error {
	return ErrTransitionNotAllowed
}

// BlockedTransitionError carries the complete list of blocked checks so the
// caller can render every unmet precondition without re-querying.
type BlockedTransitionError struct {
	AggregateID AggregateID
	Target      State
	Blockers    []BlockerResult
}

func (e *BlockedTransitionError) Error() string {
	names := make([]string, len(e.Blockers))
	for i, b := range e.Blockers {
		names[i] = b.Name
	}
	return fmt.Sprintf("transition to %s blocked by %v (aggregate %s)", e.Target, names, e.AggregateID)
}

func (e *BlockedTransitionError) Unwrap() error {
	return ErrBlockedTransition
}

// MissingApprovalsError reports which required roles have no approving entry.
type MissingApprovalsError struct {
	AggregateID  AggregateID
	Target       State
	MissingRoles []Role
}

func (e *MissingApprovalsError) Error() string {
	return fmt.Sprintf("transition to %s missing approvals from %v (aggregate %s)", e.Target, e.MissingRoles, e.AggregateID)
}

func (e *MissingApprovalsError) Unwrap() error {
	return ErrMissingApprovals
}

// StoreError wraps a persistence failure so callers can classify it with
// errors.Is(err, ErrStoreUnavailable) while keeping the underlying cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return ErrStoreUnavailable
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsRecoverable returns true if the caller can succeed by resolving the
// reported condition or explicitly forcing.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrBlockedTransition) ||
		errors.Is(err, ErrMissingApprovals)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrTransitionNotAllowed) ||
		errors.Is(err, ErrBlockedTransition) ||
		errors.Is(err, ErrMissingApprovals) ||
		errors.Is(err, ErrOverrideReasonRequired) ||
		errors.Is(err, ErrReservedEventType)
}
