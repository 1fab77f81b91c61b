package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattonant/autopen2.0/internal/types"
)

func TestRun_Lifecycle(t *testing.T) {
	run := NewRun(types.PhaseRecon)
	assert.Equal(t, types.PhaseStatusPending, run.Status)
	assert.True(t, run.StartedAt.IsZero())

	require.NoError(t, run.Transition(types.PhaseStatusRunning))
	assert.False(t, run.StartedAt.IsZero())
	assert.Nil(t, run.EndedAt)

	require.NoError(t, run.Transition(types.PhaseStatusSucceeded))
	require.NotNil(t, run.EndedAt)
}

func TestRun_TerminalIsFinal(t *testing.T) {
	run := NewRun(types.PhaseExploit)
	require.NoError(t, run.Transition(types.PhaseStatusRunning))
	require.NoError(t, run.Transition(types.PhaseStatusFailed))

	err := run.Transition(types.PhaseStatusRunning)
	require.Error(t, err)
	assert.Equal(t, types.PHASE_INVALID_TRANSITION, types.CodeOf(err))
	assert.Equal(t, types.PhaseStatusFailed, run.Status)
}

func TestRun_PendingCanSkip(t *testing.T) {
	run := NewRun(types.PhaseExploit)
	require.NoError(t, run.Transition(types.PhaseStatusSkipped))
	assert.True(t, run.StartedAt.IsZero())
	require.NotNil(t, run.EndedAt)
}

func TestRun_PendingCannotSucceed(t *testing.T) {
	run := NewRun(types.PhaseRecon)
	err := run.Transition(types.PhaseStatusSucceeded)
	assert.Equal(t, types.PHASE_INVALID_TRANSITION, types.CodeOf(err))
}

func TestResolve_FullPipeline(t *testing.T) {
	ordered, err := Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, types.AllPhases, ordered)
}

func TestResolve_DependencyClosure(t *testing.T) {
	// Requesting exploit alone pulls in its transitive dependencies, in
	// canonical order.
	ordered, err := Resolve([]types.Phase{types.PhaseExploit})
	require.NoError(t, err)
	assert.Equal(t, []types.Phase{
		types.PhasePreEngagement,
		types.PhaseRecon,
		types.PhaseVulnScan,
		types.PhaseExploit,
	}, ordered)
}

func TestResolve_ReportStandsAlone(t *testing.T) {
	ordered, err := Resolve([]types.Phase{types.PhaseReport})
	require.NoError(t, err)
	assert.Equal(t, []types.Phase{types.PhaseReport}, ordered)
}

func TestResolve_UnknownPhase(t *testing.T) {
	_, err := Resolve([]types.Phase{"lateral_movement"})
	require.Error(t, err)
	assert.Equal(t, types.PHASE_UNKNOWN, types.CodeOf(err))
}

func TestRerunnable(t *testing.T) {
	assert.True(t, Rerunnable(types.PhaseRecon))
	assert.True(t, Rerunnable(types.PhaseReport))
	assert.False(t, Rerunnable(types.PhaseExploit))
	assert.False(t, Rerunnable(types.PhasePostExploit))
}
