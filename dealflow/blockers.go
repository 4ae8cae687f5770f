/*
blockers.go - Reference blocker checks for the acquisition pipeline

PURPOSE:
  Implements the standard precondition checks against an injected
  DealData provider. The lifecycle engine knows these only by name; the
  provider (document service, conflicts service, CRM) is whatever the
  host application wires in.

CHECKS:
  hasSourceDocuments:    At least one source document in the data room
  noUnresolvedConflicts: Zero open conflict-of-interest findings
  checklistComplete:     Every closing-checklist item done
  considerationFunded:   Escrowed funds cover the agreed consideration

MONEY:
  Consideration amounts use decimal.Decimal. Deal economics cannot
  tolerate float drift; a funding check that passes or fails on a
  binary-fraction artifact is worse than useless.

SEE ALSO:
  - lifecycle/blockers.go: Registry contract
  - memorydata.go: In-memory DealData for tests and the demo server
*/
package dealflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/deal-engine/lifecycle"
)

// =============================================================================
// DEAL DATA PROVIDER - Injected domain data source
// =============================================================================

// DealData supplies the external facts the standard checks inspect.
// Implementations may call out over the network; they receive the
// caller's context.
type DealData interface {
	// SourceDocumentCount returns how many source documents the deal's
	// data room holds.
	SourceDocumentCount(ctx context.Context, id lifecycle.AggregateID) (int, error)

	// UnresolvedConflictCount returns the number of open
	// conflict-of-interest findings.
	UnresolvedConflictCount(ctx context.Context, id lifecycle.AggregateID) (int, error)

	// ChecklistProgress returns completed and total closing-checklist
	// items. A deal with no checklist reports (0, 0).
	ChecklistProgress(ctx context.Context, id lifecycle.AggregateID) (done, total int, err error)

	// AgreedConsideration returns the negotiated deal consideration.
	AgreedConsideration(ctx context.Context, id lifecycle.AggregateID) (decimal.Decimal, error)

	// FundedAmount returns the consideration received in escrow so far.
	FundedAmount(ctx context.Context, id lifecycle.AggregateID) (decimal.Decimal, error)
}

// =============================================================================
// STANDARD CHECKS
// =============================================================================

// RegisterStandardChecks wires the four standard pipeline checks into a
// registry, all backed by the given provider.
func RegisterStandardChecks(reg *lifecycle.BlockerRegistry, data DealData) error {
	checks := map[string]lifecycle.BlockerCheck{
		CheckSourceDocuments:     HasSourceDocuments(data),
		CheckUnresolvedConflicts: NoUnresolvedConflicts(data),
		CheckChecklistComplete:   ChecklistComplete(data),
		CheckConsiderationFunded: ConsiderationFunded(data),
	}
	for name, check := range checks {
		if err := reg.Register(name, check); err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
	}
	return nil
}

// HasSourceDocuments blocks while the data room is empty.
func HasSourceDocuments(data DealData) lifecycle.BlockerFunc {
	return func(ctx context.Context, id lifecycle.AggregateID) (lifecycle.BlockerResult, error) {
		count, err := data.SourceDocumentCount(ctx, id)
		if err != nil {
			return lifecycle.BlockerResult{}, err
		}
		if count == 0 {
			return lifecycle.BlockerResult{
				Blocked: true,
				Reason:  "no source documents registered",
				Details: map[string]any{"document_count": 0},
			}, nil
		}
		return lifecycle.BlockerResult{Details: map[string]any{"document_count": count}}, nil
	}
}

// NoUnresolvedConflicts blocks while conflict findings remain open.
func NoUnresolvedConflicts(data DealData) lifecycle.BlockerFunc {
	return func(ctx context.Context, id lifecycle.AggregateID) (lifecycle.BlockerResult, error) {
		count, err := data.UnresolvedConflictCount(ctx, id)
		if err != nil {
			return lifecycle.BlockerResult{}, err
		}
		if count > 0 {
			return lifecycle.BlockerResult{
				Blocked: true,
				Reason:  fmt.Sprintf("%d unresolved conflict(s)", count),
				Details: map[string]any{"unresolved_conflicts": count},
			}, nil
		}
		return lifecycle.BlockerResult{}, nil
	}
}

// ChecklistComplete blocks until every checklist item is done. A deal
// with no checklist at all is also blocked: an empty closing checklist
// means nobody has prepared one yet.
func ChecklistComplete(data DealData) lifecycle.BlockerFunc {
	return func(ctx context.Context, id lifecycle.AggregateID) (lifecycle.BlockerResult, error) {
		done, total, err := data.ChecklistProgress(ctx, id)
		if err != nil {
			return lifecycle.BlockerResult{}, err
		}
		details := map[string]any{"completed": done, "total": total}
		if total == 0 {
			return lifecycle.BlockerResult{
				Blocked: true,
				Reason:  "closing checklist has not been prepared",
				Details: details,
			}, nil
		}
		if done < total {
			return lifecycle.BlockerResult{
				Blocked: true,
				Reason:  fmt.Sprintf("checklist incomplete: %d of %d items done", done, total),
				Details: details,
			}, nil
		}
		return lifecycle.BlockerResult{Details: details}, nil
	}
}

// ConsiderationFunded blocks until escrowed funds cover the agreed
// consideration.
func ConsiderationFunded(data DealData) lifecycle.BlockerFunc {
	return func(ctx context.Context, id lifecycle.AggregateID) (lifecycle.BlockerResult, error) {
		agreed, err := data.AgreedConsideration(ctx, id)
		if err != nil {
			return lifecycle.BlockerResult{}, err
		}
		funded, err := data.FundedAmount(ctx, id)
		if err != nil {
			return lifecycle.BlockerResult{}, err
		}

		details := map[string]any{
			"agreed": agreed.String(),
			"funded": funded.String(),
		}
		if agreed.IsZero() {
			return lifecycle.BlockerResult{
				Blocked: true,
				Reason:  "no consideration has been agreed",
				Details: details,
			}, nil
		}
		if funded.LessThan(agreed) {
			shortfall := agreed.Sub(funded)
			details["shortfall"] = shortfall.String()
			return lifecycle.BlockerResult{
				Blocked: true,
				Reason:  fmt.Sprintf("funding short by %s", shortfall.String()),
				Details: details,
			}, nil
		}
		return lifecycle.BlockerResult{Details: details}, nil
	}
}
