/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/deal-engine/lifecycle"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// DealStateDTO represents an aggregate's current position.
type DealStateDTO struct {
	DealID           string `json:"deal_id"`
	CurrentState     string `json:"current_state"`
	EnteredStateAt   string `json:"entered_state_at"`
	LastTransitionBy string `json:"last_transition_by,omitempty"`
	LastTransitionAt string `json:"last_transition_at,omitempty"`
}

// ActorDTO identifies the caller, already authenticated upstream.
type ActorDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ApprovalDTO is one role-level sign-off supplied with a transition.
type ApprovalDTO struct {
	Role     string `json:"role"`
	Approved bool   `json:"approved"`
}

// TransitionRequest is the request to advance a deal.
type TransitionRequest struct {
	TargetState  string        `json:"target_state"`
	Actor        ActorDTO      `json:"actor"`
	Approvals    []ApprovalDTO `json:"approvals,omitempty"`
	Force        bool          `json:"force,omitempty"`
	ForceReason  string        `json:"force_reason,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	EvidenceRefs []string      `json:"evidence_refs,omitempty"`
}

// RecordEventRequest appends a domain event to the deal's chain.
type RecordEventRequest struct {
	EventType        string         `json:"event_type"`
	EventData        map[string]any `json:"event_data,omitempty"`
	Actor            ActorDTO       `json:"actor"`
	AuthorityContext map[string]any `json:"authority_context,omitempty"`
	EvidenceRefs     []string       `json:"evidence_refs,omitempty"`
}

// EventDTO represents one ledger event.
type EventDTO struct {
	ID                string         `json:"id"`
	DealID            string         `json:"deal_id"`
	SequenceNumber    int64          `json:"sequence_number"`
	EventType         string         `json:"event_type"`
	EventData         map[string]any `json:"event_data,omitempty"`
	Actor             ActorDTO       `json:"actor"`
	AuthorityContext  map[string]any `json:"authority_context,omitempty"`
	EvidenceRefs      []string       `json:"evidence_refs,omitempty"`
	FromState         string         `json:"from_state,omitempty"`
	ToState           string         `json:"to_state,omitempty"`
	PreviousEventHash string         `json:"previous_event_hash"`
	EventHash         string         `json:"event_hash"`
	RecordedAt        string         `json:"recorded_at"`
}

// TransitionResponse is the committed outcome of a transition.
type TransitionResponse struct {
	State DealStateDTO `json:"state"`
	Event EventDTO     `json:"event"`
}

// BlockerDTO is one blocked precondition check.
type BlockerDTO struct {
	Name    string         `json:"name"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// TransitionOptionDTO describes one reachable target state.
type TransitionOptionDTO struct {
	TargetState       string       `json:"target_state"`
	RequiredApprovals []string     `json:"required_approvals"`
	RequiredChecks    []string     `json:"required_checks"`
	Blockers          []BlockerDTO `json:"blockers"`
	CanTransition     bool         `json:"can_transition"`
}

// VerifyResponse reports the outcome of a chain walk.
type VerifyResponse struct {
	Valid      bool            `json:"valid"`
	EventCount int             `json:"event_count"`
	Errors     []ChainErrorDTO `json:"errors,omitempty"`
}

type ChainErrorDTO struct {
	EventID        string `json:"event_id"`
	SequenceNumber int64  `json:"sequence_number"`
	Kind           string `json:"kind"`
	Message        string `json:"message"`
}

// AuditRecordDTO is one override record from the compliance trail.
type AuditRecordDTO struct {
	ID                string       `json:"id"`
	DealID            string       `json:"deal_id"`
	Actor             ActorDTO     `json:"actor"`
	BypassedBlockers  []BlockerDTO `json:"bypassed_blockers,omitempty"`
	BypassedApprovals []string     `json:"bypassed_approvals,omitempty"`
	Reason            string       `json:"reason"`
	FromState         string       `json:"from_state,omitempty"`
	ToState           string       `json:"to_state,omitempty"`
	CorrelatedEventID string       `json:"correlated_event_id,omitempty"`
	RecordedAt        string       `json:"recorded_at"`
}

// RegisterDocumentRequest seeds the demo deal-data provider.
type RegisterDocumentRequest struct {
	Name  string   `json:"name"`
	Actor ActorDTO `json:"actor"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toDealStateDTO(s lifecycle.DealState) DealStateDTO {
	dto := DealStateDTO{
		DealID:           string(s.AggregateID),
		CurrentState:     string(s.CurrentState),
		EnteredStateAt:   s.EnteredStateAt.Format(time.RFC3339),
		LastTransitionBy: s.LastTransitionBy,
	}
	if !s.LastTransitionAt.IsZero() {
		dto.LastTransitionAt = s.LastTransitionAt.Format(time.RFC3339)
	}
	return dto
}

func toActorDTO(a lifecycle.Actor) ActorDTO {
	return ActorDTO{ID: a.ID, Name: a.Name, Role: string(a.Role)}
}

func fromActorDTO(a ActorDTO) lifecycle.Actor {
	return lifecycle.Actor{ID: a.ID, Name: a.Name, Role: lifecycle.Role(a.Role)}
}

func toEventDTO(ev lifecycle.LedgerEvent) EventDTO {
	return EventDTO{
		ID:                string(ev.ID),
		DealID:            string(ev.AggregateID),
		SequenceNumber:    ev.SequenceNumber,
		EventType:         string(ev.Type),
		EventData:         ev.Data,
		Actor:             toActorDTO(ev.Actor),
		AuthorityContext:  ev.AuthorityContext,
		EvidenceRefs:      ev.EvidenceRefs,
		FromState:         string(ev.FromState),
		ToState:           string(ev.ToState),
		PreviousEventHash: ev.PreviousEventHash,
		EventHash:         ev.EventHash,
		RecordedAt:        ev.RecordedAt.Format(time.RFC3339Nano),
	}
}

func toBlockerDTOs(results []lifecycle.BlockerResult) []BlockerDTO {
	dtos := make([]BlockerDTO, len(results))
	for i, r := range results {
		dtos[i] = BlockerDTO{Name: r.Name, Reason: r.Reason, Details: r.Details}
	}
	return dtos
}

func toAuditRecordDTO(rec lifecycle.AuditOverrideRecord) AuditRecordDTO {
	approvals := make([]string, len(rec.BypassedApprovals))
	for i, r := range rec.BypassedApprovals {
		approvals[i] = string(r)
	}
	return AuditRecordDTO{
		ID:                rec.ID,
		DealID:            string(rec.AggregateID),
		Actor:             toActorDTO(rec.Actor),
		BypassedBlockers:  toBlockerDTOs(rec.BypassedBlockers),
		BypassedApprovals: approvals,
		Reason:            rec.Reason,
		FromState:         string(rec.FromState),
		ToState:           string(rec.ToState),
		CorrelatedEventID: string(rec.CorrelatedEventID),
		RecordedAt:        rec.RecordedAt.Format(time.RFC3339),
	}
}
