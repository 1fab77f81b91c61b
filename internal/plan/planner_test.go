package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/scope"
	"github.com/pattonant/autopen2.0/internal/types"
)

func allowAll(t *testing.T) *scope.Policy {
	t.Helper()
	policy, err := scope.NewPolicy([]scope.Rule{{Pattern: "*", Action: scope.ActionAllow}})
	require.NoError(t, err)
	return policy
}

// scored builds a finding carrying a rule annotation with the given score.
func scored(host string, score float64, discoveredAt time.Time) finding.Finding {
	return finding.Finding{
		ID:           types.NewID(),
		PhaseOrigin:  types.PhaseVulnScan,
		Target:       types.Target{Host: host, Port: 445},
		Category:     finding.CategoryCVE,
		RawEvidence:  "evidence for " + host,
		SeverityRaw:  types.SeverityHigh,
		Confidence:   0.8,
		DiscoveredAt: discoveredAt,
		Status:       finding.StatusOpen,
		Annotations:  []finding.Annotation{{Source: finding.SourceRule, Score: score, ProducedAt: discoveredAt}},
	}
}

func TestPlanner_ScoreThreshold(t *testing.T) {
	now := time.Now()
	planner := NewPlanner(WithScoreThreshold(50))

	high := scored("10.0.0.5", 80, now)
	low := scored("10.0.0.6", 30, now)

	pl, err := planner.Plan([]finding.Finding{high, low}, allowAll(t))
	require.NoError(t, err)

	require.Len(t, pl.Steps, 1)
	assert.Equal(t, high.ID, pl.Steps[0].FindingID)

	require.Len(t, pl.Excluded, 1)
	assert.Equal(t, low.ID, pl.Excluded[0].FindingID)
	assert.Contains(t, pl.Excluded[0].Reason, "below threshold")
}

func TestPlanner_ScopeGate(t *testing.T) {
	now := time.Now()
	policy, err := scope.NewPolicy([]scope.Rule{
		{Pattern: "10.0.0.5", Action: scope.ActionAllow},
	})
	require.NoError(t, err)

	inScope := scored("10.0.0.5", 80, now)
	outOfScope := scored("172.16.0.9", 95, now)

	pl, err := NewPlanner().Plan([]finding.Finding{inScope, outOfScope}, policy)
	require.NoError(t, err)

	// The out-of-scope finding never enters the plan regardless of score,
	// and the exclusion is reported.
	require.Len(t, pl.Steps, 1)
	assert.Equal(t, inScope.ID, pl.Steps[0].FindingID)
	require.Len(t, pl.Excluded, 1)
	assert.Contains(t, pl.Excluded[0].Reason, "out of scope")
}

func TestPlanner_UnscoredExcluded(t *testing.T) {
	f := scored("10.0.0.5", 80, time.Now())
	f.Annotations = nil

	pl, err := NewPlanner().Plan([]finding.Finding{f}, allowAll(t))
	require.NoError(t, err)
	assert.Empty(t, pl.Steps)
	require.Len(t, pl.Excluded, 1)
	assert.Contains(t, pl.Excluded[0].Reason, "not been scored")
}

func TestPlanner_DeterministicTieBreak(t *testing.T) {
	now := time.Now()

	// Independent findings order by score descending: 80 before 60.
	sixty := scored("10.0.0.6", 60, now)
	eighty := scored("10.0.0.5", 80, now)

	pl, err := NewPlanner().Plan([]finding.Finding{sixty, eighty}, allowAll(t))
	require.NoError(t, err)

	require.Len(t, pl.Steps, 2)
	assert.Equal(t, eighty.ID, pl.Steps[0].FindingID)
	assert.Equal(t, sixty.ID, pl.Steps[1].FindingID)
	assert.Equal(t, 1, pl.Steps[0].Priority)
	assert.Equal(t, 2, pl.Steps[1].Priority)
}

func TestPlanner_EqualScoresOrderByDiscovery(t *testing.T) {
	now := time.Now()

	later := scored("10.0.0.6", 70, now.Add(time.Minute))
	earlier := scored("10.0.0.5", 70, now)

	pl, err := NewPlanner().Plan([]finding.Finding{later, earlier}, allowAll(t))
	require.NoError(t, err)

	require.Len(t, pl.Steps, 2)
	assert.Equal(t, earlier.ID, pl.Steps[0].FindingID)
}

func TestPlanner_IdenticalInputsIdenticalPlan(t *testing.T) {
	now := time.Now()
	findings := []finding.Finding{
		scored("10.0.0.5", 80, now),
		scored("10.0.0.6", 70, now),
		scored("10.0.0.7", 90, now),
	}

	first, err := NewPlanner().Plan(findings, allowAll(t))
	require.NoError(t, err)
	second, err := NewPlanner().Plan(findings, allowAll(t))
	require.NoError(t, err)

	require.Equal(t, len(first.Steps), len(second.Steps))
	for i := range first.Steps {
		assert.Equal(t, first.Steps[i].FindingID, second.Steps[i].FindingID)
	}
}

func TestPlanner_CapabilityEdges(t *testing.T) {
	now := time.Now()

	// The credential dump provides what the lateral move requires, so the
	// provider is ordered first despite its lower score.
	dump := scored("10.0.0.5", 60, now)
	dump.Provides = []string{"credential:smb"}

	lateral := scored("10.0.0.6", 90, now)
	lateral.Requires = []string{"credential:smb"}

	pl, err := NewPlanner().Plan([]finding.Finding{lateral, dump}, allowAll(t))
	require.NoError(t, err)

	require.Len(t, pl.Steps, 2)
	assert.Equal(t, dump.ID, pl.Steps[0].FindingID)
	assert.Equal(t, lateral.ID, pl.Steps[1].FindingID)
	assert.Equal(t, []types.ID{dump.ID}, pl.Steps[1].Prerequisites)
	assert.Empty(t, pl.Steps[0].Prerequisites)
}

func TestPlanner_UnsatisfiedRequirementCascades(t *testing.T) {
	now := time.Now()

	// Nothing provides "credential:domain", so the dependent is excluded;
	// its own dependent cascades out with it.
	needsDomain := scored("10.0.0.5", 90, now)
	needsDomain.Requires = []string{"credential:domain"}
	needsDomain.Provides = []string{"session:dc"}

	needsSession := scored("10.0.0.6", 85, now)
	needsSession.Requires = []string{"session:dc"}

	standalone := scored("10.0.0.7", 70, now)

	pl, err := NewPlanner().Plan([]finding.Finding{needsDomain, needsSession, standalone}, allowAll(t))
	require.NoError(t, err)

	require.Len(t, pl.Steps, 1)
	assert.Equal(t, standalone.ID, pl.Steps[0].FindingID)
	require.Len(t, pl.Excluded, 2)
	for _, ex := range pl.Excluded {
		assert.Contains(t, ex.Reason, "no in-plan provider")
	}
}

func TestPlanner_SelfProvisionDoesNotSatisfy(t *testing.T) {
	f := scored("10.0.0.5", 90, time.Now())
	f.Requires = []string{"credential:smb"}
	f.Provides = []string{"credential:smb"}

	pl, err := NewPlanner().Plan([]finding.Finding{f}, allowAll(t))
	require.NoError(t, err)
	assert.Empty(t, pl.Steps)
	require.Len(t, pl.Excluded, 1)
}

func TestPlanner_CycleDetection(t *testing.T) {
	now := time.Now()

	// A requires B, B requires C, C requires A.
	a := scored("10.0.0.5", 90, now)
	a.Requires = []string{"cap:b"}
	a.Provides = []string{"cap:a"}

	b := scored("10.0.0.6", 80, now)
	b.Requires = []string{"cap:c"}
	b.Provides = []string{"cap:b"}

	c := scored("10.0.0.7", 70, now)
	c.Requires = []string{"cap:a"}
	c.Provides = []string{"cap:c"}

	_, err := NewPlanner().Plan([]finding.Finding{a, b, c}, allowAll(t))
	require.Error(t, err)

	var cycleErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []types.ID{a.ID, b.ID, c.ID}, cycleErr.FindingIDs)
	assert.Contains(t, cycleErr.Error(), string(types.CYCLIC_DEPENDENCY))
}

func TestPlanner_EmptyInput(t *testing.T) {
	pl, err := NewPlanner().Plan(nil, allowAll(t))
	require.NoError(t, err)
	assert.Empty(t, pl.Steps)
	assert.Empty(t, pl.Excluded)
}
