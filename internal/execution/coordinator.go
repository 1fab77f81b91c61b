// Package execution dispatches exploitation plan steps against a tool
// adapter, respecting prerequisite completion, a concurrency limit, and the
// session kill-switch.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pattonant/autopen2.0/internal/adapter"
	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/plan"
	"github.com/pattonant/autopen2.0/internal/types"
)

// Outcome detail markers for cancellation, as recorded in the session
// snapshot.
const (
	DetailCancelledQueued   = "skipped:cancelled"
	DetailCancelledInFlight = "failed:cancelled"
	DetailPrerequisiteFail  = "prerequisite failed"
)

// Outcome is the recorded result of one plan step.
type Outcome struct {
	StepID    types.ID         `json:"step_id"`
	FindingID types.ID         `json:"finding_id"`
	Status    types.StepStatus `json:"status"`

	// Detail carries the skip/cancellation marker or a short failure note.
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`

	// ResultFindingID references the post-exploit finding created on
	// success.
	ResultFindingID types.ID `json:"result_finding_id,omitempty"`

	StartedAt time.Time     `json:"started_at,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Coordinator executes exploitation plans. Steps with no unmet prerequisites
// run concurrently up to the configured limit; a step whose prerequisite did
// not succeed is skipped, propagating failure forward. Cancelling the
// context is the kill-switch: queued steps are never dispatched and in-flight
// steps get a bounded grace period to finish before force-termination.
type Coordinator struct {
	store       *finding.Store
	tool        adapter.ToolAdapter
	maxParallel int
	grace       time.Duration
	logger      *slog.Logger
}

// CoordinatorOption is a functional option for configuring the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMaxParallel bounds concurrent step dispatch. Default 4, deliberately
// small to respect target-system load.
func WithMaxParallel(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxParallel = n
		}
	}
}

// WithGracePeriod sets how long in-flight steps may keep running after the
// kill-switch fires. Default 10 seconds.
func WithGracePeriod(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithLogger configures the coordinator's structured logger.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a Coordinator writing outcomes back to the store
// and dispatching steps through the given exploitation adapter.
func NewCoordinator(store *finding.Store, tool adapter.ToolAdapter, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:       store,
		tool:        tool,
		maxParallel: 4,
		grace:       10 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs the plan to completion or cancellation, returning one outcome
// per step. Step statuses are mutated in place on the plan.
func (c *Coordinator) Execute(ctx context.Context, pl *plan.Plan) ([]Outcome, error) {
	byFinding := make(map[types.ID]*plan.Step, len(pl.Steps))
	for i := range pl.Steps {
		byFinding[pl.Steps[i].FindingID] = &pl.Steps[i]
	}

	var (
		mu       sync.Mutex
		outcomes []Outcome
	)
	record := func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	for {
		// Kill-switch: every step not yet dispatched is skipped, never
		// silently abandoned.
		if ctx.Err() != nil {
			for i := range pl.Steps {
				step := &pl.Steps[i]
				if step.Status == types.StepStatusPending {
					step.Status = types.StepStatusSkipped
					record(Outcome{
						StepID:    step.ID,
						FindingID: step.FindingID,
						Status:    types.StepStatusSkipped,
						Detail:    DetailCancelledQueued,
					})
				}
			}
			return outcomes, ctx.Err()
		}

		ready, pending := c.sweep(pl, byFinding, record)
		if pending == 0 {
			return outcomes, nil
		}
		if len(ready) == 0 {
			// Cannot happen with a planner-produced acyclic plan; guard
			// against hand-built plans referencing steps outside the plan.
			for i := range pl.Steps {
				step := &pl.Steps[i]
				if step.Status == types.StepStatusPending {
					step.Status = types.StepStatusSkipped
					record(Outcome{
						StepID:    step.ID,
						FindingID: step.FindingID,
						Status:    types.StepStatusSkipped,
						Detail:    "prerequisite not part of plan",
					})
				}
			}
			return outcomes, types.NewError(types.PREREQUISITE_FAILED,
				"plan stalled: pending steps have unresolvable prerequisites")
		}

		c.executeBatch(ctx, ready, record)
	}
}

// sweep marks steps with failed or skipped prerequisites as skipped and
// returns the dispatchable steps plus the remaining pending count.
func (c *Coordinator) sweep(pl *plan.Plan, byFinding map[types.ID]*plan.Step, record func(Outcome)) (ready []*plan.Step, pending int) {
	for i := range pl.Steps {
		step := &pl.Steps[i]
		if step.Status != types.StepStatusPending {
			continue
		}

		dispatchable := true
		failed := false
		for _, prereqFinding := range step.Prerequisites {
			prereq, ok := byFinding[prereqFinding]
			if !ok {
				dispatchable = false
				continue
			}
			switch prereq.Status {
			case types.StepStatusSucceeded:
				// satisfied
			case types.StepStatusFailed, types.StepStatusSkipped:
				failed = true
			default:
				dispatchable = false
			}
		}

		if failed {
			step.Status = types.StepStatusSkipped
			record(Outcome{
				StepID:    step.ID,
				FindingID: step.FindingID,
				Status:    types.StepStatusSkipped,
				Detail:    DetailPrerequisiteFail,
			})
			continue
		}

		pending++
		if dispatchable {
			ready = append(ready, step)
		}
	}
	return ready, pending
}

// executeBatch dispatches ready steps under the semaphore. Steps that are
// still waiting for a slot when the kill-switch fires are skipped without
// ever starting.
func (c *Coordinator) executeBatch(ctx context.Context, batch []*plan.Step, record func(Outcome)) {
	sem := make(chan struct{}, c.maxParallel)
	var wg sync.WaitGroup

	for _, step := range batch {
		wg.Add(1)
		go func(step *plan.Step) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				step.Status = types.StepStatusSkipped
				record(Outcome{
					StepID:    step.ID,
					FindingID: step.FindingID,
					Status:    types.StepStatusSkipped,
					Detail:    DetailCancelledQueued,
				})
				return
			}

			step.Status = types.StepStatusRunning
			outcome := c.invokeStep(ctx, step)
			step.Status = outcome.Status
			record(outcome)
		}(step)
	}

	wg.Wait()
}

// invokeStep runs one step against the adapter. The step runs under its own
// context so the session kill-switch translates into a grace period rather
// than immediate termination: in-flight work may finish naturally within
// the grace window, after which the step context is cancelled and the
// outcome recorded as failed:cancelled.
func (c *Coordinator) invokeStep(ctx context.Context, step *plan.Step) Outcome {
	stepCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			timer := time.NewTimer(c.grace)
			defer timer.Stop()
			select {
			case <-timer.C:
				cancel()
			case <-done:
			}
		case <-done:
		}
	}()

	c.logger.Info("dispatching exploit step",
		"step_id", step.ID.Short(),
		"finding_id", step.FindingID.Short(),
		"target", step.Target.String(),
		"exploit_ref", step.ExploitRef,
	)

	started := time.Now()
	raw, err := c.tool.Invoke(stepCtx, step.Target, adapter.InvokeOptions{
		ExploitRef: step.ExploitRef,
	})
	duration := time.Since(started)

	outcome := Outcome{
		StepID:    step.ID,
		FindingID: step.FindingID,
		StartedAt: started,
		Duration:  duration,
	}

	switch {
	case err == nil && raw.OK():
		outcome.Status = types.StepStatusSucceeded
		outcome.ResultFindingID = c.recordSuccess(step, raw)
	case stepCtx.Err() != nil || types.CodeOf(err) == types.ADAPTER_CANCELLED:
		outcome.Status = types.StepStatusFailed
		outcome.Detail = DetailCancelledInFlight
		if err != nil {
			outcome.Error = err.Error()
		}
	case err != nil:
		outcome.Status = types.StepStatusFailed
		outcome.Error = err.Error()
	default:
		outcome.Status = types.StepStatusFailed
		outcome.Detail = fmt.Sprintf("exploit exited with status %d", raw.ExitStatus)
	}

	return outcome
}

// recordSuccess writes the exploitation outcome back into the store: the
// original finding is marked exploited and a post-exploit finding is created
// on the same target so the POST_EXPLOIT phase has a foothold record to work
// from. The new finding inherits the capabilities the exploited finding
// provided, which are now actually held.
func (c *Coordinator) recordSuccess(step *plan.Step, raw adapter.RawResult) types.ID {
	if err := c.store.SetStatus(step.FindingID, finding.StatusExploited); err != nil {
		c.logger.Warn("failed to mark finding exploited",
			"finding_id", step.FindingID,
			"error", err,
		)
	}

	var provides []string
	if original, err := c.store.Get(step.FindingID); err == nil {
		provides = original.Provides
	}

	id, err := c.store.Add(finding.Finding{
		PhaseOrigin: types.PhasePostExploit,
		Target:      step.Target,
		Category:    finding.CategoryPostExploit,
		RawEvidence: fmt.Sprintf("exploit %s succeeded:\n%s", step.ExploitRef, raw.Output),
		SeverityRaw: types.SeverityHigh,
		Confidence:  0.9,
		Status:      finding.StatusConfirmed,
		Provides:    provides,
	})
	if err != nil {
		c.logger.Warn("failed to record post-exploit finding",
			"finding_id", step.FindingID,
			"error", err,
		)
		return ""
	}
	return id
}
