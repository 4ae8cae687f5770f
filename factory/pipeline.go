/*
Package factory provides YAML to Go pipeline conversion.

PURPOSE:
  Converts YAML pipeline definitions into lifecycle.TableConfig and
  validated TransitionTable objects. This enables workflow configuration
  without code changes - a new tenant's pipeline shape, approval roles,
  and blocker requirements are data, not a deploy.

YAML SCHEMA:
  initial_state: INTAKE_RECEIVED
  states:
    INTAKE_RECEIVED:
      transitions: [DATA_ROOM_INGESTED, WITHDRAWN]
    DATA_ROOM_INGESTED:
      transitions: [DILIGENCE_IN_PROGRESS, WITHDRAWN]
      entry:
        approval_roles: [legal]
        blocker_checks: [hasSourceDocuments]
    WITHDRAWN:
      transitions: []

KEY FEATURES:
  - Validates the table shape at load time (unknown edge targets and a
    missing initial state are fatal, never request-time surprises)
  - Terminal states are simply states with no transitions
  - Multiple pipelines can be loaded side by side for different workflow
    types or tenants

USAGE:
  table, err := factory.LoadPipeline("./config/acquisition.yaml")
  if err != nil {
      log.Fatal(err)
  }
  engine := lifecycle.NewEngine(table, registry, store)

SEE ALSO:
  - lifecycle/rules.go: TableConfig and validation
  - dealflow/types.go: The standard pipeline defined in code
*/
package factory

import (
	"fmt"
	"os"

	"github.com/warp/deal-engine/lifecycle"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// PipelineYAML is the YAML representation of a transition table.
type PipelineYAML struct {
	InitialState string               `yaml:"initial_state"`
	States       map[string]StateYAML `yaml:"states"`
}

type StateYAML struct {
	Transitions []string  `yaml:"transitions"`
	Entry       EntryYAML `yaml:"entry"`
}

type EntryYAML struct {
	ApprovalRoles []string `yaml:"approval_roles"`
	BlockerChecks []string `yaml:"blocker_checks"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePipeline converts YAML bytes into a TableConfig. Structural
// validation (edge targets, initial state) happens in
// lifecycle.NewTransitionTable, not here.
func ParsePipeline(data []byte) (lifecycle.TableConfig, error) {
	var raw PipelineYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return lifecycle.TableConfig{}, fmt.Errorf("parsing pipeline: %w", err)
	}
	if len(raw.States) == 0 {
		return lifecycle.TableConfig{}, fmt.Errorf("pipeline defines no states")
	}

	cfg := lifecycle.TableConfig{
		InitialState: lifecycle.State(raw.InitialState),
		States:       make(map[lifecycle.State]lifecycle.StateConfig, len(raw.States)),
	}
	for name, sc := range raw.States {
		transitions := make([]lifecycle.State, len(sc.Transitions))
		for i, t := range sc.Transitions {
			transitions[i] = lifecycle.State(t)
		}
		roles := make([]lifecycle.Role, len(sc.Entry.ApprovalRoles))
		for i, r := range sc.Entry.ApprovalRoles {
			roles[i] = lifecycle.Role(r)
		}
		cfg.States[lifecycle.State(name)] = lifecycle.StateConfig{
			Transitions: transitions,
			Entry: lifecycle.Requirements{
				ApprovalRoles: roles,
				BlockerChecks: append([]string(nil), sc.Entry.BlockerChecks...),
			},
		}
	}
	return cfg, nil
}

// LoadPipeline reads a YAML file and returns a validated table.
func LoadPipeline(path string) (*lifecycle.TransitionTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	cfg, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	table, err := lifecycle.NewTransitionTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
