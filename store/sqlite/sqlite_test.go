package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/deal-engine/lifecycle"
	"github.com/warp/deal-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testTable() *lifecycle.TransitionTable {
	return lifecycle.MustTransitionTable(lifecycle.TableConfig{
		InitialState: "OPEN",
		States: map[lifecycle.State]lifecycle.StateConfig{
			"OPEN":   {Transitions: []lifecycle.State{"SETTLED"}},
			"SETTLED": {},
		},
	})
}

func newTestEngine(t *testing.T) (*lifecycle.Engine, *sqlite.Store) {
	t.Helper()
	store := newTestStore(t)
	engine := lifecycle.NewEngine(testTable(), lifecycle.NewBlockerRegistry(), store)
	return engine, store
}

func actor() lifecycle.Actor {
	return lifecycle.Actor{ID: "user-1", Name: "Alex", Role: "deal_lead"}
}

// =============================================================================
// STATE PERSISTENCE
// =============================================================================

func TestState_RoundTrip(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Transition(ctx, "deal-1", "SETTLED", actor(), lifecycle.TransitionOptions{
		Reason: "negotiation concluded",
	})
	require.NoError(t, err)

	state, err := store.GetState(ctx, "deal-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, lifecycle.State("SETTLED"), state.CurrentState)
	assert.Equal(t, "user-1", state.LastTransitionBy)
	assert.True(t, result.State.EnteredStateAt.Equal(state.EnteredStateAt))
}

func TestState_UnknownAggregate_NilNoError(t *testing.T) {
	store := newTestStore(t)

	state, err := store.GetState(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, state)
}

// =============================================================================
// LEDGER PERSISTENCE
// =============================================================================

func TestLedger_EventRoundTrip_PreservesHash(t *testing.T) {
	// GIVEN: An event with structured data, approvals, and evidence refs
	// WHEN: Reading it back from disk and recomputing its hash
	// THEN: The stored and recomputed hashes agree

	_, store := newTestEngine(t)
	ledger := lifecycle.NewLedger(store)
	ctx := context.Background()

	appended, err := ledger.Append(ctx, lifecycle.AppendInput{
		AggregateID:      "deal-1",
		Type:             "claim_verified",
		Data:             map[string]any{"claim": "revenue", "verified_count": 3},
		Actor:            actor(),
		AuthorityContext: map[string]any{"ticket": "DD-118"},
		EvidenceRefs:     []string{"s3://evidence/dd-118.pdf"},
	})
	require.NoError(t, err)

	events, err := store.LoadEvents(ctx, "deal-1", lifecycle.HistoryQuery{Oldest: true})
	require.NoError(t, err)
	require.Len(t, events, 1)

	loaded := events[0]
	assert.Equal(t, appended.ID, loaded.ID)
	assert.Equal(t, appended.EventHash, loaded.EventHash)
	assert.Equal(t, []string{"s3://evidence/dd-118.pdf"}, loaded.EvidenceRefs)
	assert.Equal(t, actor(), loaded.Actor)

	recomputed, err := lifecycle.ComputeEventHash(loaded)
	require.NoError(t, err)
	assert.Equal(t, loaded.EventHash, recomputed)
}

func TestLedger_DuplicateSequence_RejectedByUniqueIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := lifecycle.LedgerEvent{
		ID:                "ev-1",
		AggregateID:       "deal-1",
		SequenceNumber:    1,
		Type:              "note_added",
		Actor:             actor(),
		PreviousEventHash: lifecycle.ZeroHash,
		EventHash:         "irrelevant",
	}
	require.NoError(t, store.AppendEvent(ctx, ev))

	ev.ID = "ev-2"
	err := store.AppendEvent(ctx, ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrStoreUnavailable)
}

func TestLedger_HistoryFilters(t *testing.T) {
	_, store := newTestEngine(t)
	ledger := lifecycle.NewLedger(store)
	ctx := context.Background()

	for _, typ := range []lifecycle.EventType{"note_added", "claim_verified", "note_added"} {
		_, err := ledger.Append(ctx, lifecycle.AppendInput{
			AggregateID: "deal-1", Type: typ, Actor: actor(),
		})
		require.NoError(t, err)
	}

	// Newest first by default
	events, err := store.LoadEvents(ctx, "deal-1", lifecycle.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(3), events[0].SequenceNumber)

	// Type filter
	notes, err := store.LoadEvents(ctx, "deal-1", lifecycle.HistoryQuery{EventType: "note_added"})
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	// Offset needs a limit clause under the hood; -1 fallback covers it
	page, err := store.LoadEvents(ctx, "deal-1", lifecycle.HistoryQuery{Oldest: true, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].SequenceNumber)
}

// =============================================================================
// TAMPER EVIDENCE - The reason the chain exists
// =============================================================================

func TestVerifyChain_DirectDatabaseEdit_Detected(t *testing.T) {
	// GIVEN: A valid chain of three transitions' worth of events
	// WHEN: Someone edits event data with raw SQL, bypassing the ledger
	// THEN: Verification fails, pinpointing the edited event

	_, store := newTestEngine(t)
	ledger := lifecycle.NewLedger(store)
	ctx := context.Background()

	var second lifecycle.EventID
	for i := 0; i < 3; i++ {
		ev, err := ledger.Append(ctx, lifecycle.AppendInput{
			AggregateID: "deal-1",
			Type:        "funds_received",
			Data:        map[string]any{"amount": "1000000.00"},
			Actor:       actor(),
		})
		require.NoError(t, err)
		if i == 1 {
			second = ev.ID
		}
	}

	_, err := store.DB().Exec(
		`UPDATE ledger_events SET event_data = ? WHERE id = ?`,
		`{"amount":"9000000.00"}`, string(second))
	require.NoError(t, err)

	result, err := ledger.VerifyChain(ctx, "deal-1")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, lifecycle.ChainErrHashMismatch, result.Errors[0].Kind)
	assert.Equal(t, second, result.Errors[0].EventID)
	assert.ErrorIs(t, result.Errors[0], lifecycle.ErrHashChainViolation)
}

// =============================================================================
// ATOMICITY - Forced transition writes all three records or none
// =============================================================================

func TestForcedTransition_StateEventAndAuditCommitTogether(t *testing.T) {
	store := newTestStore(t)
	table := lifecycle.MustTransitionTable(lifecycle.TableConfig{
		InitialState: "OPEN",
		States: map[lifecycle.State]lifecycle.StateConfig{
			"OPEN": {Transitions: []lifecycle.State{"SETTLED"}},
			"SETTLED": {Entry: lifecycle.Requirements{
				ApprovalRoles: []lifecycle.Role{"partner"},
			}},
		},
	})
	engine := lifecycle.NewEngine(table, lifecycle.NewBlockerRegistry(), store)
	ctx := context.Background()

	result, err := engine.Transition(ctx, "deal-1", "SETTLED", actor(), lifecycle.TransitionOptions{
		Force:       true,
		ForceReason: "partner unreachable, board pre-approved",
	})
	require.NoError(t, err)

	state, err := store.GetState(ctx, "deal-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, lifecycle.State("SETTLED"), state.CurrentState)

	records, err := store.AuditRecords(ctx, "deal-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, result.Event.ID, records[0].CorrelatedEventID)
	assert.Equal(t, []lifecycle.Role{"partner"}, records[0].BypassedApprovals)
	assert.Equal(t, "partner unreachable, board pre-approved", records[0].Reason)
}
