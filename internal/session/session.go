// Package session holds the explicit per-engagement state threaded through
// every pipeline call: the finding store, scope policy, phase-run history,
// the last computed plan and its outcomes. Nothing in the framework
// references ambient global state; everything hangs off a Session.
package session

import (
	"sync"
	"time"

	"github.com/pattonant/autopen2.0/internal/execution"
	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/phase"
	"github.com/pattonant/autopen2.0/internal/plan"
	"github.com/pattonant/autopen2.0/internal/scope"
	"github.com/pattonant/autopen2.0/internal/types"
)

// Session is one penetration-testing engagement run.
type Session struct {
	ID        types.ID
	Name      string
	CreatedAt time.Time

	// Targets is the initial engagement workload; later phases extend it
	// with targets discovered in the finding store.
	Targets []types.Target

	// Policy is the authorization scope for every exploit-capable action.
	Policy *scope.Policy

	// Store is the session's finding store.
	Store *finding.Store

	mu       sync.RWMutex
	runs     []*phase.Run
	plan     *plan.Plan
	outcomes []execution.Outcome
}

// New creates a session over the given initial targets and scope policy.
func New(name string, targets []types.Target, policy *scope.Policy) *Session {
	return &Session{
		ID:        types.NewID(),
		Name:      name,
		CreatedAt: time.Now(),
		Targets:   targets,
		Policy:    policy,
		Store:     finding.NewStore(),
	}
}

// AppendRun records a phase run. Runs are kept in execution order for the
// session lifetime.
func (s *Session) AppendRun(run *phase.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
}

// Runs returns the phase-run history in execution order.
func (s *Session) Runs() []*phase.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*phase.Run(nil), s.runs...)
}

// RunsFor returns the runs of one phase in execution order.
func (s *Session) RunsFor(p types.Phase) []*phase.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*phase.Run
	for _, run := range s.runs {
		if run.Phase == p {
			out = append(out, run)
		}
	}
	return out
}

// HasUsableRun reports whether the phase has at least one run whose results
// downstream phases may build on (succeeded or partial).
func (s *Session) HasUsableRun(p types.Phase) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, run := range s.runs {
		if run.Phase == p && run.Status.Usable() {
			return true
		}
	}
	return false
}

// SetPlan records the last computed exploitation plan.
func (s *Session) SetPlan(pl *plan.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = pl
}

// Plan returns the last computed exploitation plan, or nil.
func (s *Session) Plan() *plan.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

// AppendOutcomes records plan execution outcomes.
func (s *Session) AppendOutcomes(outcomes []execution.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcomes...)
}

// Outcomes returns the recorded plan execution outcomes.
func (s *Session) Outcomes() []execution.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]execution.Outcome(nil), s.outcomes...)
}

// Workload returns the current phase workload: the initial targets plus
// every distinct target discovered in the store, deduplicated in that order.
func (s *Session) Workload() []types.Target {
	seen := make(map[string]bool)
	var out []types.Target
	for _, t := range s.Targets {
		if !seen[t.Key()] {
			seen[t.Key()] = true
			out = append(out, t)
		}
	}
	for _, t := range s.Store.Targets() {
		if !seen[t.Key()] {
			seen[t.Key()] = true
			out = append(out, t)
		}
	}
	return out
}
