package lifecycle_test

import (
	"errors"
	"testing"

	"github.com/warp/deal-engine/lifecycle"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// threeStageTable is a minimal DRAFT -> REVIEW -> DONE pipeline with one
// parking state.
func threeStageTable() lifecycle.TableConfig {
	return lifecycle.TableConfig{
		InitialState: "DRAFT",
		States: map[lifecycle.State]lifecycle.StateConfig{
			"DRAFT": {
				Transitions: []lifecycle.State{"REVIEW", "PARKED"},
			},
			"REVIEW": {
				Transitions: []lifecycle.State{"DONE", "DRAFT", "PARKED"},
				Entry: lifecycle.Requirements{
					ApprovalRoles: []lifecycle.Role{"reviewer"},
					BlockerChecks: []string{"draftComplete"},
				},
			},
			"PARKED": {
				Transitions: []lifecycle.State{"DRAFT"},
			},
			"DONE": {},
		},
	}
}

// =============================================================================
// CONSTRUCTION VALIDATION
// =============================================================================

func TestNewTransitionTable_ValidConfig_Builds(t *testing.T) {
	table, err := lifecycle.NewTransitionTable(threeStageTable())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.InitialState() != "DRAFT" {
		t.Errorf("expected initial state DRAFT, got %s", table.InitialState())
	}
	if len(table.States()) != 4 {
		t.Errorf("expected 4 states, got %d", len(table.States()))
	}
}

func TestNewTransitionTable_UnknownInitialState_Fails(t *testing.T) {
	cfg := threeStageTable()
	cfg.InitialState = "NOWHERE"

	_, err := lifecycle.NewTransitionTable(cfg)
	if !errors.Is(err, lifecycle.ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestNewTransitionTable_EdgeToUnknownState_Fails(t *testing.T) {
	// GIVEN: A config where DRAFT points at a state that is not configured
	cfg := threeStageTable()
	sc := cfg.States["DRAFT"]
	sc.Transitions = append(sc.Transitions, "LIMBO")
	cfg.States["DRAFT"] = sc

	// WHEN/THEN: Construction fails at startup, not at request time
	_, err := lifecycle.NewTransitionTable(cfg)
	if !errors.Is(err, lifecycle.ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestNewTransitionTable_EmptyConfig_Fails(t *testing.T) {
	_, err := lifecycle.NewTransitionTable(lifecycle.TableConfig{})
	if !errors.Is(err, lifecycle.ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

// =============================================================================
// LOOKUPS
// =============================================================================

func TestTransitionTable_Allows(t *testing.T) {
	table := lifecycle.MustTransitionTable(threeStageTable())

	cases := []struct {
		from, to lifecycle.State
		want     bool
	}{
		{"DRAFT", "REVIEW", true},
		{"DRAFT", "DONE", false},   // must pass through REVIEW
		{"REVIEW", "DRAFT", true},  // backward edge is configured
		{"DONE", "DRAFT", false},   // terminal
		{"NOWHERE", "DRAFT", false},
		{"DRAFT", "DRAFT", false}, // self-loop only when configured
	}
	for _, c := range cases {
		if got := table.Allows(c.from, c.to); got != c.want {
			t.Errorf("Allows(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransitionTable_IsTerminal(t *testing.T) {
	table := lifecycle.MustTransitionTable(threeStageTable())

	if !table.IsTerminal("DONE") {
		t.Error("DONE should be terminal")
	}
	if table.IsTerminal("DRAFT") {
		t.Error("DRAFT should not be terminal")
	}
	if table.IsTerminal("NOWHERE") {
		t.Error("unknown states are not terminal")
	}
}

func TestTransitionTable_RequirementsFor_UnknownState_ZeroValue(t *testing.T) {
	table := lifecycle.MustTransitionTable(threeStageTable())

	reqs := table.RequirementsFor("NOWHERE")
	if len(reqs.ApprovalRoles) != 0 || len(reqs.BlockerChecks) != 0 {
		t.Errorf("expected empty requirements, got %+v", reqs)
	}
}

func TestTransitionTable_Immutable_AfterConstruction(t *testing.T) {
	// GIVEN: A built table
	cfg := threeStageTable()
	table := lifecycle.MustTransitionTable(cfg)

	// WHEN: The caller mutates the config and the returned lookups
	sc := cfg.States["REVIEW"]
	sc.Entry.BlockerChecks[0] = "mutated"
	cfg.States["REVIEW"] = sc

	reqs := table.RequirementsFor("REVIEW")
	reqs.BlockerChecks[0] = "also-mutated"

	targets := table.AllowedTransitions("DRAFT")
	targets[0] = "ALSO-MUTATED"

	// THEN: The table is unaffected
	if got := table.RequirementsFor("REVIEW").BlockerChecks[0]; got != "draftComplete" {
		t.Errorf("table leaked mutation, check = %s", got)
	}
	if got := table.AllowedTransitions("DRAFT")[0]; got != "REVIEW" {
		t.Errorf("table leaked mutation, target = %s", got)
	}
}
