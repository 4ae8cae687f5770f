/*
handlers_test.go - Unit tests for API handlers

Tests exercise the full router with the standard dealflow pipeline over
the in-memory store: state reads, transitions (accepted, blocked,
forced), event recording, history, and chain verification.
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/warp/deal-engine/dealflow"
	"github.com/warp/deal-engine/lifecycle"
	"github.com/warp/deal-engine/lifecycle/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (http.Handler, *dealflow.MemoryDealData) {
	t.Helper()

	data := dealflow.NewMemoryDealData()
	reg := lifecycle.NewBlockerRegistry()
	if err := dealflow.RegisterStandardChecks(reg, data); err != nil {
		t.Fatalf("register checks: %v", err)
	}

	table := lifecycle.MustTransitionTable(dealflow.StandardTable())
	engine := lifecycle.NewEngine(table, reg, store.NewTxMemory())

	handler := NewHandler(engine)
	handler.DemoData = data
	return NewRouter(handler), data
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func transitionBody(target string) TransitionRequest {
	return TransitionRequest{
		TargetState: target,
		Actor:       ActorDTO{ID: "user-1", Name: "Alex", Role: "deal_lead"},
	}
}

// =============================================================================
// STATE
// =============================================================================

func TestGetState_NewDeal_InitialState(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/deals/deal-1/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	state := decode[DealStateDTO](t, rec)
	if state.CurrentState != string(dealflow.StateIntakeReceived) {
		t.Errorf("expected INTAKE_RECEIVED, got %s", state.CurrentState)
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestTransition_Blocked_Conflict409WithBlockers(t *testing.T) {
	// GIVEN: deal-1 with an empty data room
	// WHEN: Advancing to DATA_ROOM_INGESTED
	// THEN: 409 with the hasSourceDocuments blocker in the body

	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/transition",
		transitionBody(string(dealflow.StateDataRoomIngested)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Code    string       `json:"code"`
		Context []BlockerDTO `json:"context"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "blocked_transition" {
		t.Errorf("expected blocked_transition, got %s", body.Code)
	}
	if len(body.Context) != 1 || body.Context[0].Name != dealflow.CheckSourceDocuments {
		t.Errorf("expected the document blocker, got %+v", body.Context)
	}
}

func TestTransition_AfterSeedingDocuments_Succeeds(t *testing.T) {
	router, data := newTestServer(t)
	data.RegisterDocument("deal-1", "teaser.pdf")

	rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/transition",
		transitionBody(string(dealflow.StateDataRoomIngested)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decode[TransitionResponse](t, rec)
	if resp.State.CurrentState != string(dealflow.StateDataRoomIngested) {
		t.Errorf("state: %s", resp.State.CurrentState)
	}
	if resp.Event.SequenceNumber != 1 || resp.Event.EventType != string(lifecycle.EventTransition) {
		t.Errorf("event: %+v", resp.Event)
	}
}

func TestTransition_UnconfiguredEdge_Conflict409(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/transition",
		transitionBody(string(dealflow.StateClosed)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTransition_MissingTargetState_BadRequest(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/transition", transitionBody(""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTransition_ForceWithoutReason_BadRequest(t *testing.T) {
	router, _ := newTestServer(t)

	body := transitionBody(string(dealflow.StateDataRoomIngested))
	body.Force = true
	rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/transition", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTransition_Forced_AppearsInAuditTrail(t *testing.T) {
	router, _ := newTestServer(t)

	body := transitionBody(string(dealflow.StateDataRoomIngested))
	body.Force = true
	body.ForceReason = "intake docs held by counterparty counsel"
	rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/transition", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	audit := doJSON(t, router, http.MethodGet, "/api/deals/deal-1/audit", nil)
	records := decode[[]AuditRecordDTO](t, audit)
	if len(records) != 1 {
		t.Fatalf("expected one override record, got %d", len(records))
	}
	if records[0].Reason != body.ForceReason {
		t.Errorf("reason: %q", records[0].Reason)
	}
}

// =============================================================================
// EVENTS
// =============================================================================

func TestRecordEvent_ReservedType_BadRequest(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/events", RecordEventRequest{
		EventType: string(lifecycle.EventTransition),
		Actor:     ActorDTO{ID: "user-1"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEventHistory_QueryParams(t *testing.T) {
	router, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/events", RecordEventRequest{
			EventType: string(dealflow.EventNoteAdded),
			EventData: map[string]any{"note": fmt.Sprintf("note %d", i)},
			Actor:     ActorDTO{ID: "user-1"},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("record event: %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/api/deals/deal-1/events?order=asc&limit=2", nil)
	events := decode[[]EventDTO](t, rec)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].SequenceNumber != 1 || events[1].SequenceNumber != 2 {
		t.Errorf("expected oldest first, got %d,%d", events[0].SequenceNumber, events[1].SequenceNumber)
	}

	bad := doJSON(t, router, http.MethodGet, "/api/deals/deal-1/events?limit=many", nil)
	if bad.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad limit, got %d", bad.Code)
	}
}

func TestVerify_CleanChain_Valid(t *testing.T) {
	router, data := newTestServer(t)
	data.RegisterDocument("deal-1", "teaser.pdf")

	if rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/transition",
		transitionBody(string(dealflow.StateDataRoomIngested))); rec.Code != http.StatusOK {
		t.Fatalf("transition: %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/deals/deal-1/verify", nil)
	result := decode[VerifyResponse](t, rec)
	if !result.Valid || result.EventCount != 1 {
		t.Errorf("expected a valid 1-event chain, got %+v", result)
	}
}

// =============================================================================
// DEMO DATA
// =============================================================================

func TestRegisterDocument_SeedsDataAndRecordsEvent(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/documents", RegisterDocumentRequest{
		Name:  "teaser.pdf",
		Actor: ActorDTO{ID: "user-1"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	ev := decode[EventDTO](t, rec)
	if ev.EventType != string(dealflow.EventDocumentRegistered) {
		t.Errorf("event type: %s", ev.EventType)
	}

	// The registered document satisfies the data room gate
	next := doJSON(t, router, http.MethodPost, "/api/deals/deal-1/transition",
		transitionBody(string(dealflow.StateDataRoomIngested)))
	if next.Code != http.StatusOK {
		t.Errorf("expected 200 after registering a document, got %d", next.Code)
	}
}
