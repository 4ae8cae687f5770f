package dealflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/deal-engine/dealflow"
	"github.com/warp/deal-engine/lifecycle"
	"github.com/warp/deal-engine/lifecycle/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newPipeline(t *testing.T) (*lifecycle.Engine, *dealflow.MemoryDealData) {
	t.Helper()

	data := dealflow.NewMemoryDealData()
	reg := lifecycle.NewBlockerRegistry()
	require.NoError(t, dealflow.RegisterStandardChecks(reg, data))

	table := lifecycle.MustTransitionTable(dealflow.StandardTable())
	engine := lifecycle.NewEngine(table, reg, store.NewTxMemory())
	return engine, data
}

func lead() lifecycle.Actor {
	return lifecycle.Actor{ID: "user-1", Name: "Alex", Role: dealflow.RoleDealLead}
}

func approvals(roles ...lifecycle.Role) []lifecycle.Approval {
	out := make([]lifecycle.Approval, len(roles))
	for i, r := range roles {
		out[i] = lifecycle.Approval{Role: r, Approved: true}
	}
	return out
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// TABLE SHAPE
// =============================================================================

func TestStandardTable_Builds(t *testing.T) {
	table := lifecycle.MustTransitionTable(dealflow.StandardTable())

	assert.Equal(t, dealflow.StateIntakeReceived, table.InitialState())
	assert.True(t, table.IsTerminal(dealflow.StateClosed))
	assert.True(t, table.IsTerminal(dealflow.StateWithdrawn))
	assert.False(t, table.IsTerminal(dealflow.StateOnHold))

	// Every active stage can be withdrawn or parked; EXECUTED can only close.
	assert.True(t, table.Allows(dealflow.StateIntakeReceived, dealflow.StateWithdrawn))
	assert.True(t, table.Allows(dealflow.StateTermsAgreed, dealflow.StateOnHold))
	assert.False(t, table.Allows(dealflow.StateExecuted, dealflow.StateWithdrawn))
	assert.True(t, table.Allows(dealflow.StateExecuted, dealflow.StateClosed))
}

// =============================================================================
// DOCUMENT GATE - INTAKE_RECEIVED -> DATA_ROOM_INGESTED
// =============================================================================

func TestDocumentGate_EmptyDataRoom_Blocks(t *testing.T) {
	// GIVEN: deal-1 at INTAKE_RECEIVED with no documents registered
	// WHEN: Advancing to DATA_ROOM_INGESTED
	// THEN: hasSourceDocuments blocks

	engine, _ := newPipeline(t)
	ctx := context.Background()

	_, err := engine.Transition(ctx, "deal-1", dealflow.StateDataRoomIngested, lead(), lifecycle.TransitionOptions{})

	var blocked *lifecycle.BlockedTransitionError
	require.ErrorAs(t, err, &blocked)
	require.Len(t, blocked.Blockers, 1)
	assert.Equal(t, dealflow.CheckSourceDocuments, blocked.Blockers[0].Name)
}

func TestDocumentGate_AfterRegisteringDocument_Passes(t *testing.T) {
	engine, data := newPipeline(t)
	ctx := context.Background()

	data.RegisterDocument("deal-1", "teaser.pdf")

	result, err := engine.Transition(ctx, "deal-1", dealflow.StateDataRoomIngested, lead(), lifecycle.TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, dealflow.StateDataRoomIngested, result.State.CurrentState)

	history, err := engine.EventHistory(ctx, "deal-1", lifecycle.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].SequenceNumber)
	assert.Equal(t, dealflow.StateIntakeReceived, history[0].FromState)
	assert.Equal(t, dealflow.StateDataRoomIngested, history[0].ToState)
}

// =============================================================================
// CONFLICT GATE - entry to TERMS_AGREED
// =============================================================================

func TestConflictGate_OpenConflict_BlocksUntilResolved(t *testing.T) {
	engine, data := newPipeline(t)
	ctx := context.Background()

	data.RegisterDocument("deal-1", "teaser.pdf")
	data.OpenConflict("deal-1")

	_, err := engine.Transition(ctx, "deal-1", dealflow.StateDataRoomIngested, lead(), lifecycle.TransitionOptions{})
	require.NoError(t, err)
	_, err = engine.Transition(ctx, "deal-1", dealflow.StateDiligenceInProgress, lead(), lifecycle.TransitionOptions{})
	require.NoError(t, err)

	// Blocked while the conflict stays open
	_, err = engine.Transition(ctx, "deal-1", dealflow.StateTermsAgreed, lead(), lifecycle.TransitionOptions{
		Approvals: approvals(dealflow.RoleDealLead),
	})
	require.ErrorIs(t, err, lifecycle.ErrBlockedTransition)

	// Resolving the conflict clears the gate
	data.ResolveConflict("deal-1")
	result, err := engine.Transition(ctx, "deal-1", dealflow.StateTermsAgreed, lead(), lifecycle.TransitionOptions{
		Approvals: approvals(dealflow.RoleDealLead),
	})
	require.NoError(t, err)
	assert.Equal(t, dealflow.StateTermsAgreed, result.State.CurrentState)
}

// =============================================================================
// BLOCKER CHECKS - Unit level
// =============================================================================

func TestChecklistComplete_NoChecklist_Blocked(t *testing.T) {
	// A deal nobody prepared a checklist for must not sail through.
	data := dealflow.NewMemoryDealData()
	check := dealflow.ChecklistComplete(data)

	result, err := check.Evaluate(context.Background(), "deal-1")
	require.NoError(t, err)
	assert.True(t, result.Blocked)
}

func TestChecklistComplete_PartialThenDone(t *testing.T) {
	data := dealflow.NewMemoryDealData()
	check := dealflow.ChecklistComplete(data)
	ctx := context.Background()

	data.SetChecklist("deal-1", 3, 5)
	result, err := check.Evaluate(ctx, "deal-1")
	require.NoError(t, err)
	assert.True(t, result.Blocked)
	assert.Contains(t, result.Reason, "3 of 5")

	data.SetChecklist("deal-1", 5, 5)
	result, err = check.Evaluate(ctx, "deal-1")
	require.NoError(t, err)
	assert.False(t, result.Blocked)
}

func TestConsiderationFunded_ExactDecimalComparison(t *testing.T) {
	// GIVEN: Agreed consideration of 1,000,000.10
	// WHEN: Funding arrives in two wires that sum exactly
	// THEN: The check passes on exact decimal arithmetic; a one-cent
	// shortfall still blocks

	data := dealflow.NewMemoryDealData()
	check := dealflow.ConsiderationFunded(data)
	ctx := context.Background()

	data.SetConsideration("deal-1", money("1000000.10"))
	data.ReceiveFunds("deal-1", money("999999.99"))

	result, err := check.Evaluate(ctx, "deal-1")
	require.NoError(t, err)
	assert.True(t, result.Blocked)
	assert.Equal(t, "0.11", result.Details["shortfall"])

	data.ReceiveFunds("deal-1", money("0.11"))
	result, err = check.Evaluate(ctx, "deal-1")
	require.NoError(t, err)
	assert.False(t, result.Blocked)
}

func TestConsiderationFunded_NoAgreedAmount_Blocked(t *testing.T) {
	data := dealflow.NewMemoryDealData()
	check := dealflow.ConsiderationFunded(data)

	result, err := check.Evaluate(context.Background(), "deal-1")
	require.NoError(t, err)
	assert.True(t, result.Blocked)
}

// =============================================================================
// FULL PIPELINE - Intake to close
// =============================================================================

func TestFullPipeline_IntakeToClose(t *testing.T) {
	engine, data := newPipeline(t)
	ctx := context.Background()
	id := lifecycle.AggregateID("deal-42")

	// Seed the domain facts as the deal progresses
	data.RegisterDocument(id, "teaser.pdf")
	data.RegisterDocument(id, "financials.xlsx")

	step := func(target lifecycle.State, roles ...lifecycle.Role) {
		t.Helper()
		_, err := engine.Transition(ctx, id, target, lead(), lifecycle.TransitionOptions{
			Approvals: approvals(roles...),
		})
		require.NoError(t, err, "transition to %s", target)
	}

	step(dealflow.StateDataRoomIngested)
	step(dealflow.StateDiligenceInProgress)
	step(dealflow.StateTermsAgreed, dealflow.RoleDealLead)

	data.SetChecklist(id, 12, 12)
	step(dealflow.StateSigningReady, dealflow.RoleLegal, dealflow.RoleDealLead)

	data.SetConsideration(id, money("25000000"))
	data.ReceiveFunds(id, money("25000000"))
	step(dealflow.StateExecuted, dealflow.RolePartner, dealflow.RoleFinance)
	step(dealflow.StateClosed)

	// Terminal: nothing leaves CLOSED
	_, err := engine.Transition(ctx, id, dealflow.StateIntakeReceived, lead(), lifecycle.TransitionOptions{})
	assert.True(t, errors.Is(err, lifecycle.ErrTransitionNotAllowed))

	// The whole journey is one verifiable chain of transition events
	verify, err := engine.VerifyEventChain(ctx, id)
	require.NoError(t, err)
	assert.True(t, verify.Valid)
	assert.Equal(t, 6, verify.EventCount)
}
