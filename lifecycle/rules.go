/*
rules.go - Transition table construction and lookup

PURPOSE:
  Defines the declarative rule table that governs the pipeline shape:
  which states exist, which edges are legal, and what each target state
  demands before entry (approval roles and blocker checks).

KEY CONCEPTS:
  - TableConfig: The raw, data-driven definition (usually loaded from
    configuration; see the factory package)
  - TransitionTable: The validated, immutable lookup structure
  - Requirements: Entry requirements keyed by TARGET state

VALIDATION:
  Configuration errors (an edge pointing at an unconfigured state, a
  missing initial state) are caught at construction and are fatal at
  startup. At request time the table never errors; unknown edges simply
  are not allowed.

CONCURRENCY:
  A TransitionTable is immutable after construction and safe for
  unsynchronized concurrent reads. Multiple tables (per tenant, per
  workflow type) can coexist; nothing here is a singleton.

SEE ALSO:
  - engine.go: Consults the table on every transition
  - factory/: Loads TableConfig from YAML
*/
package lifecycle

import "fmt"

// =============================================================================
// CONFIGURATION
// =============================================================================

// Requirements is what must hold before an aggregate may ENTER a state:
// at least one approved sign-off per role, and every named blocker check
// reporting not-blocked.
type Requirements struct {
	ApprovalRoles []Role
	BlockerChecks []string
}

// StateConfig describes one state: its outgoing edges and its entry
// requirements. A state with no transitions is terminal.
type StateConfig struct {
	Transitions []State
	Entry       Requirements
}

// TableConfig is the raw definition of a pipeline.
type TableConfig struct {
	InitialState State
	States       map[State]StateConfig
}

// =============================================================================
// TRANSITION TABLE - Validated, immutable lookup structure
// =============================================================================

// TransitionTable answers "what edges leave this state" and "what does
// entering this state require". Pure lookups, no side effects.
type TransitionTable struct {
	initial State
	states  map[State]StateConfig
}

// NewTransitionTable validates a TableConfig and builds the lookup
// structure. Every edge target and the initial state must be configured
// states; violations are configuration errors and fail here, at startup.
func NewTransitionTable(cfg TableConfig) (*TransitionTable, error) {
	if len(cfg.States) == 0 {
		return nil, fmt.Errorf("transition table has no states: %w", ErrUnknownState)
	}
	if _, ok := cfg.States[cfg.InitialState]; !ok {
		return nil, fmt.Errorf("initial state %q: %w", cfg.InitialState, ErrUnknownState)
	}

	states := make(map[State]StateConfig, len(cfg.States))
	for state, sc := range cfg.States {
		for _, target := range sc.Transitions {
			if _, ok := cfg.States[target]; !ok {
				return nil, fmt.Errorf("state %q has edge to %q: %w", state, target, ErrUnknownState)
			}
		}
		// Deep-copy so later mutation of cfg cannot leak into the table.
		copied := StateConfig{
			Transitions: append([]State(nil), sc.Transitions...),
			Entry: Requirements{
				ApprovalRoles: append([]Role(nil), sc.Entry.ApprovalRoles...),
				BlockerChecks: append([]string(nil), sc.Entry.BlockerChecks...),
			},
		}
		states[state] = copied
	}

	return &TransitionTable{initial: cfg.InitialState, states: states}, nil
}

// MustTransitionTable is NewTransitionTable that panics on configuration
// errors. For static tables defined in code.
func MustTransitionTable(cfg TableConfig) *TransitionTable {
	t, err := NewTransitionTable(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

// InitialState returns the state used for lazy aggregate creation.
func (t *TransitionTable) InitialState() State {
	return t.initial
}

// Knows reports whether the state is configured.
func (t *TransitionTable) Knows(state State) bool {
	_, ok := t.states[state]
	return ok
}

// AllowedTransitions returns the states directly reachable from the given
// state. Empty for terminal and unknown states. The returned slice is a
// copy.
func (t *TransitionTable) AllowedTransitions(state State) []State {
	sc, ok := t.states[state]
	if !ok {
		return nil
	}
	return append([]State(nil), sc.Transitions...)
}

// Allows reports whether the edge from -> to is configured. Self-loops are
// ordinary edges; nothing is special-cased.
func (t *TransitionTable) Allows(from, to State) bool {
	sc, ok := t.states[from]
	if !ok {
		return false
	}
	for _, target := range sc.Transitions {
		if target == to {
			return true
		}
	}
	return false
}

// RequirementsFor returns the entry requirements for the given target
// state. Zero-value for unknown states.
func (t *TransitionTable) RequirementsFor(target State) Requirements {
	sc, ok := t.states[target]
	if !ok {
		return Requirements{}
	}
	return Requirements{
		ApprovalRoles: append([]Role(nil), sc.Entry.ApprovalRoles...),
		BlockerChecks: append([]string(nil), sc.Entry.BlockerChecks...),
	}
}

// IsTerminal reports whether the state has no outgoing edges.
func (t *TransitionTable) IsTerminal(state State) bool {
	sc, ok := t.states[state]
	return ok && len(sc.Transitions) == 0
}

// States returns all configured states. Order is unspecified.
func (t *TransitionTable) States() []State {
	out := make([]State, 0, len(t.states))
	for s := range t.states {
		out = append(out, s)
	}
	return out
}
