package plan

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/scope"
	"github.com/pattonant/autopen2.0/internal/scoring"
	"github.com/pattonant/autopen2.0/internal/types"
)

// Planner builds exploitation plans. Given identical inputs the plan is
// identical: filtering, edge derivation and ordering are all deterministic.
type Planner struct {
	threshold float64
	weights   scoring.Weights
	logger    *slog.Logger
}

// PlannerOption is a functional option for configuring the Planner.
type PlannerOption func(*Planner)

// WithScoreThreshold sets the minimum combined score a finding needs to be
// planned. Default 50.
func WithScoreThreshold(threshold float64) PlannerOption {
	return func(p *Planner) {
		p.threshold = threshold
	}
}

// WithWeights sets the rule/oracle weighting used to read combined scores.
func WithWeights(w scoring.Weights) PlannerOption {
	return func(p *Planner) {
		p.weights = w
	}
}

// WithLogger configures the planner's structured logger.
func WithLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		p.logger = logger
	}
}

// NewPlanner creates a Planner.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		threshold: 50,
		weights:   scoring.DefaultWeights,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// candidate is a finding that survived filtering, with its plan inputs.
type candidate struct {
	f     finding.Finding
	score float64
	// prereqs are the finding IDs providing this candidate's required
	// capabilities.
	prereqs []types.ID
}

// Plan filters findings through the scope gate and score threshold, derives
// capability-dependency edges, and emits a topologically ordered plan.
// Within topological ties, steps order by descending score, then earliest
// discovery, then ID. A dependency cycle yields *CyclicDependencyError
// naming the findings on the cycle.
func (p *Planner) Plan(findings []finding.Finding, policy *scope.Policy) (*Plan, error) {
	result := &Plan{GeneratedAt: time.Now()}

	// Filtering: scope gate, scoring, threshold.
	candidates := make(map[types.ID]*candidate)
	var order []types.ID // insertion order for determinism
	for _, f := range findings {
		decision := policy.Evaluate(f.Target)
		if !decision.Allowed {
			result.Excluded = append(result.Excluded, Exclusion{
				FindingID: f.ID,
				Reason:    fmt.Sprintf("target %s out of scope: %s", f.Target, decision.Reason),
			})
			continue
		}

		score, scored := scoring.Combined(f, p.weights)
		if !scored {
			result.Excluded = append(result.Excluded, Exclusion{
				FindingID: f.ID,
				Reason:    "finding has not been scored",
			})
			continue
		}
		if score < p.threshold {
			result.Excluded = append(result.Excluded, Exclusion{
				FindingID: f.ID,
				Reason:    fmt.Sprintf("combined score %.1f below threshold %.1f", score, p.threshold),
			})
			continue
		}

		candidates[f.ID] = &candidate{f: f, score: score}
		order = append(order, f.ID)
	}

	// Capability index over the surviving candidates, then prerequisite
	// edges from declared Requires tags. Candidates whose requirement has
	// no in-plan provider are excluded; exclusion cascades until stable.
	for {
		provider := make(map[string][]types.ID)
		for _, id := range order {
			c, ok := candidates[id]
			if !ok {
				continue
			}
			for _, tag := range c.f.Provides {
				provider[tag] = append(provider[tag], id)
			}
		}

		removed := false
		for _, id := range order {
			c, ok := candidates[id]
			if !ok {
				continue
			}

			var prereqs []types.ID
			seen := make(map[types.ID]bool)
			unsatisfied := ""
			for _, tag := range c.f.Requires {
				providers := provider[tag]
				// A finding never satisfies its own requirement.
				var others []types.ID
				for _, pid := range providers {
					if pid != id {
						others = append(others, pid)
					}
				}
				if len(others) == 0 {
					unsatisfied = tag
					break
				}
				for _, pid := range others {
					if !seen[pid] {
						seen[pid] = true
						prereqs = append(prereqs, pid)
					}
				}
			}

			if unsatisfied != "" {
				result.Excluded = append(result.Excluded, Exclusion{
					FindingID: id,
					Reason:    fmt.Sprintf("required capability %q has no in-plan provider", unsatisfied),
				})
				delete(candidates, id)
				removed = true
				continue
			}
			c.prereqs = prereqs
		}

		if !removed {
			break
		}
	}

	// Compact the insertion order to surviving candidates.
	var ids []types.ID
	for _, id := range order {
		if _, ok := candidates[id]; ok {
			ids = append(ids, id)
		}
	}

	if cycle := detectCycle(ids, candidates); len(cycle) > 0 {
		return nil, &CyclicDependencyError{FindingIDs: cycle}
	}

	ordered := topoOrder(ids, candidates)

	for i, id := range ordered {
		c := candidates[id]
		result.Steps = append(result.Steps, Step{
			ID:            types.NewID(),
			FindingID:     id,
			ExploitRef:    c.f.ExploitRef,
			Priority:      i + 1,
			Prerequisites: c.prereqs,
			Status:        types.StepStatusPending,
			Target:        c.f.Target,
			Score:         c.score,
		})
	}

	p.logger.Info("exploitation plan generated",
		"steps", len(result.Steps),
		"excluded", len(result.Excluded),
	)

	return result, nil
}

// detectCycle runs DFS with color marking over the prerequisite edges and
// returns the findings on the first cycle found, in cycle order.
// Colors: 0 = unvisited, 1 = in-progress, 2 = done.
func detectCycle(ids []types.ID, candidates map[types.ID]*candidate) []types.ID {
	color := make(map[types.ID]int, len(ids))

	var cycle []types.ID
	var visit func(id types.ID, stack []types.ID) bool
	visit = func(id types.ID, stack []types.ID) bool {
		color[id] = 1
		stack = append(stack, id)

		for _, prereq := range candidates[id].prereqs {
			switch color[prereq] {
			case 0:
				if visit(prereq, stack) {
					return true
				}
			case 1:
				// Found a back edge; the cycle is the stack suffix
				// starting at prereq.
				for i, sid := range stack {
					if sid == prereq {
						cycle = append(cycle, stack[i:]...)
						return true
					}
				}
			}
		}

		color[id] = 2
		return false
	}

	for _, id := range ids {
		if color[id] == 0 {
			if visit(id, nil) {
				return cycle
			}
		}
	}
	return nil
}

// topoOrder is Kahn's algorithm with a deterministic ready queue: highest
// combined score first, then earliest discovery, then ID. Assumes the graph
// is acyclic (detectCycle ran first).
func topoOrder(ids []types.ID, candidates map[types.ID]*candidate) []types.ID {
	indegree := make(map[types.ID]int, len(ids))
	dependents := make(map[types.ID][]types.ID, len(ids))
	for _, id := range ids {
		indegree[id] = len(candidates[id].prereqs)
		for _, prereq := range candidates[id].prereqs {
			dependents[prereq] = append(dependents[prereq], id)
		}
	}

	ready := make([]types.ID, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	less := func(a, b types.ID) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		if !ca.f.DiscoveredAt.Equal(cb.f.DiscoveredAt) {
			return ca.f.DiscoveredAt.Before(cb.f.DiscoveredAt)
		}
		return a < b
	}

	var ordered []types.ID
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	return ordered
}
