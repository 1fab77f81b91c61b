// Package plan derives an ordered, dependency-aware exploitation plan from
// scored findings under the engagement's scope policy.
package plan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pattonant/autopen2.0/internal/types"
)

// Step is one planned exploitation action. The planner produces steps; the
// execution coordinator mutates only their Status.
type Step struct {
	ID         types.ID `json:"id"`
	FindingID  types.ID `json:"finding_id"`
	ExploitRef string   `json:"chosen_exploit_ref,omitempty"`

	// Priority is the step's 1-based position in the deterministic plan
	// ordering.
	Priority int `json:"priority"`

	// Prerequisites lists finding IDs whose steps must reach succeeded
	// status before this step is dispatched.
	Prerequisites []types.ID `json:"prerequisites,omitempty"`

	Status types.StepStatus `json:"status"`

	// Target and Score are carried from the finding for dispatch and audit.
	Target types.Target `json:"target"`
	Score  float64      `json:"score"`
}

// Exclusion records a finding the planner left out of the plan and why.
// Exclusions are reported, never silent.
type Exclusion struct {
	FindingID types.ID `json:"finding_id"`
	Reason    string   `json:"reason"`
}

// Plan is an ordered exploitation plan plus the audit trail of what was
// excluded from it.
type Plan struct {
	Steps       []Step      `json:"steps"`
	Excluded    []Exclusion `json:"excluded,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// StepFor returns the step planned for the given finding, or nil.
func (p *Plan) StepFor(findingID types.ID) *Step {
	for i := range p.Steps {
		if p.Steps[i].FindingID == findingID {
			return &p.Steps[i]
		}
	}
	return nil
}

// CyclicDependencyError reports a capability-dependency cycle among
// findings. The plan is unusable; the offending finding IDs are surfaced so
// the operator can break the cycle rather than have it silently dropped.
type CyclicDependencyError struct {
	FindingIDs []types.ID
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	ids := make([]string, len(e.FindingIDs))
	for i, id := range e.FindingIDs {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return fmt.Sprintf("[%s] dependency cycle among findings: %s",
		types.CYCLIC_DEPENDENCY, strings.Join(ids, ", "))
}
