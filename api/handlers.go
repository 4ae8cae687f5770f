/*
handlers.go - HTTP API handlers for the deal lifecycle engine

PURPOSE:
  Exposes the lifecycle engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.

ENDPOINTS:
  Deals:
    GET    /api/deals/{id}/state        Current state (lazy-initialized)
    GET    /api/deals/{id}/transitions  Reachable states + blockers
    POST   /api/deals/{id}/transition   Advance the deal
    GET    /api/deals/{id}/blockers     Blocked checks per target state

  Ledger:
    POST   /api/deals/{id}/events       Record a domain event
    GET    /api/deals/{id}/events       Event history (limit/offset/order/type)
    GET    /api/deals/{id}/verify       Walk and verify the hash chain
    GET    /api/deals/{id}/audit        Override compliance trail

  Demo data (in-memory DealData provider only):
    POST   /api/deals/{id}/documents    Register a source document

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, missing force reason
  - 409: Rejected transitions (not allowed, blocked, missing approvals),
         with the engine's structured detail in the body
  - 500: Internal errors

SECURITY NOTE:
  Authentication is out of scope here; the actor in the request body is
  trusted as already authenticated by the fronting layer.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/deal-engine/dealflow"
	"github.com/warp/deal-engine/lifecycle"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *lifecycle.Engine

	// DemoData enables the demo endpoints that mutate the in-memory
	// deal-data provider. Nil in production wiring.
	DemoData *dealflow.MemoryDealData
}

// NewHandler creates a new handler around an engine.
func NewHandler(engine *lifecycle.Engine) *Handler {
	return &Handler{Engine: engine}
}

// =============================================================================
// DEAL HANDLERS
// =============================================================================

// GetState returns the deal's current state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	state, err := h.Engine.GetState(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load deal state", err)
		return
	}

	writeJSON(w, http.StatusOK, toDealStateDTO(*state))
}

// GetAvailableTransitions returns every reachable target state with its
// requirements and current blockers.
func (h *Handler) GetAvailableTransitions(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	options, err := h.Engine.AvailableTransitions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to evaluate transitions", err)
		return
	}

	dtos := make([]TransitionOptionDTO, len(options))
	for i, opt := range options {
		approvals := make([]string, len(opt.RequiredApprovals))
		for j, role := range opt.RequiredApprovals {
			approvals[j] = string(role)
		}
		dtos[i] = TransitionOptionDTO{
			TargetState:       string(opt.TargetState),
			RequiredApprovals: approvals,
			RequiredChecks:    opt.RequiredChecks,
			Blockers:          toBlockerDTOs(opt.Blockers),
			CanTransition:     opt.CanTransition,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Transition advances the deal to the requested target state.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TargetState == "" {
		writeError(w, http.StatusBadRequest, "target_state is required", nil)
		return
	}
	if req.Actor.ID == "" {
		writeError(w, http.StatusBadRequest, "actor.id is required", nil)
		return
	}

	approvals := make([]lifecycle.Approval, len(req.Approvals))
	for i, a := range req.Approvals {
		approvals[i] = lifecycle.Approval{Role: lifecycle.Role(a.Role), Approved: a.Approved}
	}

	result, err := h.Engine.Transition(r.Context(), id, lifecycle.State(req.TargetState), fromActorDTO(req.Actor), lifecycle.TransitionOptions{
		Approvals:    approvals,
		Force:        req.Force,
		ForceReason:  req.ForceReason,
		Reason:       req.Reason,
		EvidenceRefs: req.EvidenceRefs,
	})
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TransitionResponse{
		State: toDealStateDTO(result.State),
		Event: toEventDTO(result.Event),
	})
}

// GetCurrentBlockers returns blocked checks grouped by target state.
func (h *Handler) GetCurrentBlockers(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	blockers, err := h.Engine.CurrentBlockers(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to evaluate blockers", err)
		return
	}

	response := make(map[string][]BlockerDTO, len(blockers))
	for state, results := range blockers {
		response[string(state)] = toBlockerDTOs(results)
	}
	writeJSON(w, http.StatusOK, response)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// RecordEvent appends a domain event to the deal's chain.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required", nil)
		return
	}
	if req.Actor.ID == "" {
		writeError(w, http.StatusBadRequest, "actor.id is required", nil)
		return
	}

	ev, err := h.Engine.RecordEvent(r.Context(), id, lifecycle.EventType(req.EventType), req.EventData, fromActorDTO(req.Actor), lifecycle.RecordOptions{
		AuthorityContext: req.AuthorityContext,
		EvidenceRefs:     req.EvidenceRefs,
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrReservedEventType) {
			writeError(w, http.StatusBadRequest, "Event type is reserved", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to record event", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventDTO(*ev))
}

// GetEventHistory returns a slice of the deal's event chain.
// Query params: limit, offset, order (asc|desc), type.
func (h *Handler) GetEventHistory(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	q := lifecycle.HistoryQuery{
		Oldest:    r.URL.Query().Get("order") == "asc",
		EventType: lifecycle.EventType(r.URL.Query().Get("type")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		q.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset", err)
			return
		}
		q.Offset = n
	}

	events, err := h.Engine.EventHistory(r.Context(), id, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// VerifyChain walks the deal's full chain and reports defects.
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	result, err := h.Engine.VerifyEventChain(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to verify chain", err)
		return
	}

	response := VerifyResponse{Valid: result.Valid, EventCount: result.EventCount}
	for _, ce := range result.Errors {
		response.Errors = append(response.Errors, ChainErrorDTO{
			EventID:        string(ce.EventID),
			SequenceNumber: ce.SequenceNumber,
			Kind:           string(ce.Kind),
			Message:        ce.Message,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// GetAuditTrail returns the deal's override records.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	records, err := h.Engine.AuditTrail(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load audit trail", err)
		return
	}

	dtos := make([]AuditRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toAuditRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DEMO DATA HANDLERS
// =============================================================================

// RegisterDocument seeds the in-memory deal-data provider and records the
// registration as a domain event on the deal's chain.
func (h *Handler) RegisterDocument(w http.ResponseWriter, r *http.Request) {
	if h.DemoData == nil {
		writeError(w, http.StatusNotFound, "Demo data endpoints are disabled", nil)
		return
	}
	id := lifecycle.AggregateID(chi.URLParam(r, "id"))

	var req RegisterDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	h.DemoData.RegisterDocument(id, req.Name)

	ev, err := h.Engine.RecordEvent(r.Context(), id, dealflow.EventDocumentRegistered,
		map[string]any{"name": req.Name}, fromActorDTO(req.Actor), lifecycle.RecordOptions{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record event", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventDTO(*ev))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

type errorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Code    string `json:"code,omitempty"`
	Context any    `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeTransitionError maps the engine's error taxonomy onto HTTP
// statuses, carrying the structured detail so clients can render the
// exact blockers and roles without re-querying.
func writeTransitionError(w http.ResponseWriter, err error) {
	var notAllowed *lifecycle.TransitionNotAllowedError
	if errors.As(err, &notAllowed) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:  "Transition not allowed",
			Detail: err.Error(),
			Code:   "transition_not_allowed",
			Context: map[string]string{
				"from": string(notAllowed.From),
				"to":   string(notAllowed.To),
			},
		})
		return
	}

	var blocked *lifecycle.BlockedTransitionError
	if errors.As(err, &blocked) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "Transition blocked",
			Detail:  err.Error(),
			Code:    "blocked_transition",
			Context: toBlockerDTOs(blocked.Blockers),
		})
		return
	}

	var missing *lifecycle.MissingApprovalsError
	if errors.As(err, &missing) {
		roles := make([]string, len(missing.MissingRoles))
		for i, role := range missing.MissingRoles {
			roles[i] = string(role)
		}
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   "Missing approvals",
			Detail:  err.Error(),
			Code:    "missing_approvals",
			Context: roles,
		})
		return
	}

	if errors.Is(err, lifecycle.ErrOverrideReasonRequired) {
		writeError(w, http.StatusBadRequest, "Forced transitions require a force_reason", err)
		return
	}

	writeError(w, http.StatusInternalServerError, "Transition failed", err)
}
