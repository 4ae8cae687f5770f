package factory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/deal-engine/factory"
	"github.com/warp/deal-engine/lifecycle"
)

const reviewPipeline = `
initial_state: DRAFT
states:
  DRAFT:
    transitions: [REVIEW, WITHDRAWN]
  REVIEW:
    transitions: [APPROVED, DRAFT]
    entry:
      approval_roles: [legal, deal_lead]
      blocker_checks: [draftComplete]
  APPROVED:
    transitions: []
  WITHDRAWN:
    transitions: []
`

func TestParsePipeline_FullSchema(t *testing.T) {
	cfg, err := factory.ParsePipeline([]byte(reviewPipeline))
	require.NoError(t, err)

	assert.Equal(t, lifecycle.State("DRAFT"), cfg.InitialState)
	require.Len(t, cfg.States, 4)

	review := cfg.States["REVIEW"]
	assert.Equal(t, []lifecycle.State{"APPROVED", "DRAFT"}, review.Transitions)
	assert.Equal(t, []lifecycle.Role{"legal", "deal_lead"}, review.Entry.ApprovalRoles)
	assert.Equal(t, []string{"draftComplete"}, review.Entry.BlockerChecks)

	// States with empty transition lists are terminal once built.
	table, err := lifecycle.NewTransitionTable(cfg)
	require.NoError(t, err)
	assert.True(t, table.IsTerminal("APPROVED"))
	assert.True(t, table.IsTerminal("WITHDRAWN"))
}

func TestParsePipeline_InvalidYAML_Fails(t *testing.T) {
	_, err := factory.ParsePipeline([]byte("states: [not, a, map]"))
	require.Error(t, err)
}

func TestParsePipeline_NoStates_Fails(t *testing.T) {
	_, err := factory.ParsePipeline([]byte("initial_state: DRAFT"))
	require.Error(t, err)
}

func TestLoadPipeline_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(reviewPipeline), 0o644))

	table, err := factory.LoadPipeline(path)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.State("DRAFT"), table.InitialState())
	assert.True(t, table.Allows("DRAFT", "REVIEW"))
}

func TestLoadPipeline_EdgeToUnknownState_FailsAtLoad(t *testing.T) {
	// GIVEN: A pipeline whose DRAFT state points at an unconfigured state
	// WHEN: Loading
	// THEN: The error surfaces at load time, naming the file

	bad := `
initial_state: DRAFT
states:
  DRAFT:
    transitions: [NOWHERE]
`
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := factory.LoadPipeline(path)
	require.ErrorIs(t, err, lifecycle.ErrUnknownState)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestLoadPipeline_MissingFile_Fails(t *testing.T) {
	_, err := factory.LoadPipeline(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
