// Package dealflow implements the M&A acquisition pipeline on top of the
// generic lifecycle engine: the standard state table, the roles that
// approve each stage, and the reference blocker checks.
package dealflow

import "github.com/warp/deal-engine/lifecycle"

// =============================================================================
// PIPELINE STATES
// =============================================================================

const (
	StateIntakeReceived      lifecycle.State = "INTAKE_RECEIVED"
	StateDataRoomIngested    lifecycle.State = "DATA_ROOM_INGESTED"
	StateDiligenceInProgress lifecycle.State = "DILIGENCE_IN_PROGRESS"
	StateTermsAgreed         lifecycle.State = "TERMS_AGREED"
	StateSigningReady        lifecycle.State = "SIGNING_READY"
	StateExecuted            lifecycle.State = "EXECUTED"
	StateClosed              lifecycle.State = "CLOSED"
	StateOnHold              lifecycle.State = "ON_HOLD"
	StateWithdrawn           lifecycle.State = "WITHDRAWN"
)

// =============================================================================
// APPROVAL ROLES
// =============================================================================

const (
	RoleDealLead   lifecycle.Role = "deal_lead"
	RoleLegal      lifecycle.Role = "legal"
	RoleFinance    lifecycle.Role = "finance"
	RoleCompliance lifecycle.Role = "compliance"
	RolePartner    lifecycle.Role = "partner"
)

// =============================================================================
// BLOCKER CHECK NAMES
// =============================================================================

const (
	CheckSourceDocuments     = "hasSourceDocuments"
	CheckUnresolvedConflicts = "noUnresolvedConflicts"
	CheckChecklistComplete   = "checklistComplete"
	CheckConsiderationFunded = "considerationFunded"
)

// =============================================================================
// DOMAIN EVENT TYPES
// =============================================================================

const (
	EventDocumentRegistered lifecycle.EventType = "document_registered"
	EventClaimVerified      lifecycle.EventType = "claim_verified"
	EventConflictOpened     lifecycle.EventType = "conflict_opened"
	EventConflictResolved   lifecycle.EventType = "conflict_resolved"
	EventChecklistItemDone  lifecycle.EventType = "checklist_item_completed"
	EventFundsReceived      lifecycle.EventType = "funds_received"
	EventNoteAdded          lifecycle.EventType = "note_added"
)

// =============================================================================
// STANDARD TABLE
// =============================================================================

// StandardTable returns the standard acquisition pipeline. Deals flow
// intake -> data room -> diligence -> terms -> signing -> executed ->
// closed, with ON_HOLD as a parking state and WITHDRAWN/CLOSED terminal.
func StandardTable() lifecycle.TableConfig {
	return lifecycle.TableConfig{
		InitialState: StateIntakeReceived,
		States: map[lifecycle.State]lifecycle.StateConfig{
			StateIntakeReceived: {
				Transitions: []lifecycle.State{StateDataRoomIngested, StateOnHold, StateWithdrawn},
			},
			StateDataRoomIngested: {
				Transitions: []lifecycle.State{StateDiligenceInProgress, StateOnHold, StateWithdrawn},
				Entry: lifecycle.Requirements{
					BlockerChecks: []string{CheckSourceDocuments},
				},
			},
			StateDiligenceInProgress: {
				Transitions: []lifecycle.State{StateTermsAgreed, StateOnHold, StateWithdrawn},
			},
			StateTermsAgreed: {
				Transitions: []lifecycle.State{StateSigningReady, StateOnHold, StateWithdrawn},
				Entry: lifecycle.Requirements{
					ApprovalRoles: []lifecycle.Role{RoleDealLead},
					BlockerChecks: []string{CheckUnresolvedConflicts},
				},
			},
			StateSigningReady: {
				Transitions: []lifecycle.State{StateExecuted, StateOnHold, StateWithdrawn},
				Entry: lifecycle.Requirements{
					ApprovalRoles: []lifecycle.Role{RoleLegal, RoleDealLead},
					BlockerChecks: []string{CheckChecklistComplete},
				},
			},
			StateExecuted: {
				Transitions: []lifecycle.State{StateClosed},
				Entry: lifecycle.Requirements{
					ApprovalRoles: []lifecycle.Role{RolePartner, RoleFinance},
					BlockerChecks: []string{CheckConsiderationFunded},
				},
			},
			StateClosed: {},
			StateOnHold: {
				Transitions: []lifecycle.State{StateIntakeReceived, StateDataRoomIngested, StateDiligenceInProgress, StateWithdrawn},
			},
			StateWithdrawn: {},
		},
	}
}
