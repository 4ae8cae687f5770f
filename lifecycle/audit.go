/*
audit.go - Override audit trail

PURPOSE:
  Records explicit policy bypasses ("forced" transitions) as a separate
  compliance trail. Override records are append-only but deliberately NOT
  part of the hash chain: they annotate the ledger event they accompany
  (via CorrelatedEventID) rather than extending it.

REASON IS MANDATORY:
  An override with no human-supplied reason is rejected, never defaulted.
  Compliance reviews read these records; an empty reason is worthless.

ATOMICITY:
  When the engine forces a transition, the override record commits in the
  same store transaction as the state update and the ledger event. A
  standalone RecordOverride is provided for collaborators that manage
  their own atomic scope.

SEE ALSO:
  - engine.go: Queues override records during forced transitions
  - store.go: AppendAudit / AuditRecords
*/
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OverrideInput describes one policy bypass to record.
type OverrideInput struct {
	AggregateID       AggregateID
	Actor             Actor
	BypassedBlockers  []BlockerResult
	BypassedApprovals []Role
	Reason            string
	FromState         State
	ToState           State
	CorrelatedEventID EventID
}

// AuditLog stores override records. Append-only.
type AuditLog interface {
	RecordOverride(ctx context.Context, in OverrideInput) (*AuditOverrideRecord, error)
	Records(ctx context.Context, id AggregateID) ([]AuditOverrideRecord, error)
}

// DefaultAuditLog implements AuditLog over a Store.
type DefaultAuditLog struct {
	store Store
}

func NewAuditLog(store Store) *DefaultAuditLog {
	return &DefaultAuditLog{store: store}
}

func (a *DefaultAuditLog) RecordOverride(ctx context.Context, in OverrideInput) (*AuditOverrideRecord, error) {
	rec, err := newOverrideRecord(in, time.Now())
	if err != nil {
		return nil, err
	}
	if err := a.store.AppendAudit(ctx, *rec); err != nil {
		return nil, fmt.Errorf("appending audit record: %w", err)
	}
	return rec, nil
}

func (a *DefaultAuditLog) Records(ctx context.Context, id AggregateID) ([]AuditOverrideRecord, error) {
	return a.store.AuditRecords(ctx, id)
}

// newOverrideRecord validates and builds an override record. Shared with
// the engine, which appends the record inside its own transaction.
func newOverrideRecord(in OverrideInput, now time.Time) (*AuditOverrideRecord, error) {
	if in.Reason == "" {
		return nil, fmt.Errorf("aggregate %s: %w", in.AggregateID, ErrOverrideReasonRequired)
	}
	return &AuditOverrideRecord{
		ID:                uuid.NewString(),
		AggregateID:       in.AggregateID,
		Actor:             in.Actor,
		BypassedBlockers:  in.BypassedBlockers,
		BypassedApprovals: in.BypassedApprovals,
		Reason:            in.Reason,
		FromState:         in.FromState,
		ToState:           in.ToState,
		CorrelatedEventID: in.CorrelatedEventID,
		RecordedAt:        now.UTC(),
	}, nil
}
