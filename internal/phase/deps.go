// Package phase defines the pipeline's phase dependency graph, the
// phase-run record with its monotonic status lifecycle, and the executor
// that fans adapter invocations out across a phase's workload.
package phase

import (
	"fmt"

	"github.com/pattonant/autopen2.0/internal/types"
)

// dependencies declares which phases must have produced usable results
// before a phase may run. REPORT has no hard dependency: it reports
// whatever exists.
var dependencies = map[types.Phase][]types.Phase{
	types.PhasePreEngagement: {},
	types.PhaseRecon:         {types.PhasePreEngagement},
	types.PhaseThreatModel:   {types.PhaseRecon},
	types.PhaseVulnScan:      {types.PhaseRecon},
	types.PhaseExploit:       {types.PhaseVulnScan},
	types.PhasePostExploit:   {types.PhaseExploit},
	types.PhaseReport:        {},
}

// rerunnable marks phases that are idempotent to re-run within a session.
// Exploit-capable phases are not: re-running them repeats intrusive actions.
var rerunnable = map[types.Phase]bool{
	types.PhasePreEngagement: true,
	types.PhaseRecon:         true,
	types.PhaseThreatModel:   true,
	types.PhaseVulnScan:      true,
	types.PhaseExploit:       false,
	types.PhasePostExploit:   false,
	types.PhaseReport:        true,
}

// DependenciesOf returns the declared dependencies of a phase.
func DependenciesOf(p types.Phase) []types.Phase {
	return append([]types.Phase(nil), dependencies[p]...)
}

// Rerunnable reports whether the phase may be executed again after a
// usable run in the same session.
func Rerunnable(p types.Phase) bool {
	return rerunnable[p]
}

// Resolve expands the requested phases with their unmet transitive
// dependencies and returns the full set in canonical pipeline order.
// An empty request means the whole pipeline.
func Resolve(requested []types.Phase) ([]types.Phase, error) {
	if len(requested) == 0 {
		return append([]types.Phase(nil), types.AllPhases...), nil
	}

	include := make(map[types.Phase]bool)
	var add func(p types.Phase) error
	add = func(p types.Phase) error {
		if !p.IsValid() {
			return types.NewError(types.PHASE_UNKNOWN, fmt.Sprintf("unknown phase %q", p))
		}
		if include[p] {
			return nil
		}
		include[p] = true
		for _, dep := range dependencies[p] {
			if err := add(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range requested {
		if err := add(p); err != nil {
			return nil, err
		}
	}

	var ordered []types.Phase
	for _, p := range types.AllPhases {
		if include[p] {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}
