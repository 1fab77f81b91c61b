package phase

import (
	"fmt"
	"time"

	"github.com/pattonant/autopen2.0/internal/types"
)

// Run is the execution record of one phase within a session. It is created
// by the orchestrator when a phase starts, mutated only through Transition,
// and retained for the session lifetime. Status transitions are monotonic:
// a terminal run never changes again.
type Run struct {
	ID           types.ID          `json:"id"`
	Phase        types.Phase       `json:"phase"`
	Status       types.PhaseStatus `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	EndedAt      *time.Time        `json:"ended_at,omitempty"`
	ErrorSummary string            `json:"error_summary,omitempty"`

	// AdapterCalls / AdapterFailures summarize executor activity for the
	// session snapshot.
	AdapterCalls    int `json:"adapter_calls"`
	AdapterFailures int `json:"adapter_failures"`
}

// NewRun creates a pending run for the phase.
func NewRun(p types.Phase) *Run {
	return &Run{
		ID:     types.NewID(),
		Phase:  p,
		Status: types.PhaseStatusPending,
	}
}

// Transition moves the run to the target status, enforcing the monotonic
// lifecycle. Entering running stamps StartedAt; entering a terminal status
// stamps EndedAt.
func (r *Run) Transition(target types.PhaseStatus) error {
	if !r.Status.CanTransitionTo(target) {
		return types.NewError(types.PHASE_INVALID_TRANSITION,
			fmt.Sprintf("phase %s cannot transition %s -> %s", r.Phase, r.Status, target))
	}

	r.Status = target
	switch {
	case target == types.PhaseStatusRunning:
		r.StartedAt = time.Now()
	case target.IsTerminal():
		now := time.Now()
		r.EndedAt = &now
	}
	return nil
}

// Duration returns how long the run took, or how long it has been running.
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}
