package session

import (
	"encoding/json"
	"time"

	"github.com/pattonant/autopen2.0/internal/execution"
	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/phase"
	"github.com/pattonant/autopen2.0/internal/plan"
	"github.com/pattonant/autopen2.0/internal/scope"
	"github.com/pattonant/autopen2.0/internal/types"
)

// Snapshot is the serializable state of a session: phase-run history,
// findings with their full annotation history, the exploitation plan and the
// per-step outcomes. It is the audit artifact the REPORT phase exports and
// the record the database layer persists.
type Snapshot struct {
	SessionID  types.ID       `json:"session_id"`
	Name       string         `json:"name,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ExportedAt time.Time      `json:"exported_at"`
	Targets    []types.Target `json:"targets,omitempty"`
	ScopeRules []scope.Rule   `json:"scope_rules,omitempty"`

	PhaseRuns []phase.Run         `json:"phase_runs"`
	Findings  []finding.Finding   `json:"findings"`
	PlanSteps []plan.Step         `json:"plan_steps,omitempty"`
	Excluded  []plan.Exclusion    `json:"plan_excluded,omitempty"`
	Outcomes  []execution.Outcome `json:"outcomes,omitempty"`
}

// Export captures the session state as a snapshot. The snapshot is a deep
// copy: mutating the session afterwards does not change an exported
// snapshot.
func (s *Session) Export() Snapshot {
	snap := Snapshot{
		SessionID:  s.ID,
		Name:       s.Name,
		CreatedAt:  s.CreatedAt,
		ExportedAt: time.Now(),
		Targets:    append([]types.Target(nil), s.Targets...),
		ScopeRules: s.Policy.Rules(),
		Findings:   s.Store.All(),
		Outcomes:   s.Outcomes(),
	}

	for _, run := range s.Runs() {
		snap.PhaseRuns = append(snap.PhaseRuns, *run)
	}

	if pl := s.Plan(); pl != nil {
		snap.PlanSteps = append([]plan.Step(nil), pl.Steps...)
		snap.Excluded = append([]plan.Exclusion(nil), pl.Excluded...)
	}

	return snap
}

// MarshalIndent renders the snapshot as indented JSON for file export.
func (s Snapshot) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
