// Package orchestrator sequences the penetration-test pipeline. It resolves
// requested phases against the dependency graph, enforces preconditions and
// the authorization gate, drives each phase's runner, and records the
// phase-run lifecycle on the session.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pattonant/autopen2.0/internal/adapter"
	"github.com/pattonant/autopen2.0/internal/engagement"
	"github.com/pattonant/autopen2.0/internal/execution"
	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/phase"
	"github.com/pattonant/autopen2.0/internal/plan"
	"github.com/pattonant/autopen2.0/internal/scoring"
	"github.com/pattonant/autopen2.0/internal/session"
	"github.com/pattonant/autopen2.0/internal/threatmodel"
	"github.com/pattonant/autopen2.0/internal/types"
)

// SnapshotSink receives the session snapshot produced by the REPORT phase.
type SnapshotSink func(session.Snapshot) error

// Orchestrator drives a session through the pipeline.
type Orchestrator struct {
	registry    *adapter.Registry
	exploitTool adapter.ToolAdapter
	engagement  *engagement.Engagement
	oracle      scoring.Oracle
	sink        SnapshotSink

	weights      scoring.Weights
	threshold    float64
	maxParallel  int
	grace        time.Duration
	retry        phase.RetryPolicy
	requireClean bool

	logger *slog.Logger
}

// Option is a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithEngagement supplies the pre-engagement record the PRE_ENGAGEMENT phase
// validates and compiles into the session scope.
func WithEngagement(e *engagement.Engagement) Option {
	return func(o *Orchestrator) {
		o.engagement = e
	}
}

// WithExploitTool supplies the adapter the exploit coordinator dispatches
// plan steps through.
func WithExploitTool(tool adapter.ToolAdapter) Option {
	return func(o *Orchestrator) {
		o.exploitTool = tool
	}
}

// WithOracle supplies the external scoring oracle. Without one, combined
// scores equal rule scores.
func WithOracle(oracle scoring.Oracle) Option {
	return func(o *Orchestrator) {
		o.oracle = oracle
	}
}

// WithSnapshotSink supplies the destination for REPORT phase exports.
func WithSnapshotSink(sink SnapshotSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithWeights overrides the rule/oracle scoring weights.
func WithWeights(w scoring.Weights) Option {
	return func(o *Orchestrator) {
		o.weights = w
	}
}

// WithScoreThreshold sets the planner's minimum combined score.
func WithScoreThreshold(threshold float64) Option {
	return func(o *Orchestrator) {
		o.threshold = threshold
	}
}

// WithMaxParallel bounds concurrency in the phase executor and the exploit
// coordinator.
func WithMaxParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithGracePeriod sets the kill-switch grace period for in-flight exploit
// steps.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.grace = d
		}
	}
}

// WithRetryPolicy overrides the adapter retry policy.
func WithRetryPolicy(p phase.RetryPolicy) Option {
	return func(o *Orchestrator) {
		if p.MaxAttempts >= 1 {
			o.retry = p
		}
	}
}

// WithRequireCleanDependencies makes partial dependency results fail phase
// preconditions instead of satisfying them.
func WithRequireCleanDependencies(require bool) Option {
	return func(o *Orchestrator) {
		o.requireClean = require
	}
}

// WithLogger configures the orchestrator's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator dispatching phase work through the adapter
// registry.
func New(registry *adapter.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		weights:     scoring.DefaultWeights,
		threshold:   50,
		maxParallel: 4,
		grace:       10 * time.Second,
		retry:       phase.DefaultRetryPolicy,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the requested phases (empty request means the full pipeline)
// plus their unmet dependencies, in canonical order. Each attempted phase
// leaves a run record on the session; a failed phase skips its dependents
// but never aborts independent phases. The returned error is non-nil only
// for structural problems (unknown phase) or session cancellation.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session, requested []types.Phase) ([]*phase.Run, error) {
	ordered, err := phase.Resolve(requested)
	if err != nil {
		return nil, err
	}

	explicit := make(map[types.Phase]bool, len(requested))
	for _, p := range requested {
		explicit[p] = true
	}

	var runs []*phase.Run
	for _, p := range ordered {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		// A phase with a usable run is not repeated unless explicitly
		// requested; exploit-capable phases are never repeated.
		if sess.HasUsableRun(p) && (!explicit[p] || !phase.Rerunnable(p)) {
			continue
		}

		run := phase.NewRun(p)
		sess.AppendRun(run)
		runs = append(runs, run)

		if reason := o.precondition(sess, p); reason != "" {
			run.ErrorSummary = reason
			o.transition(run, types.PhaseStatusSkipped)
			o.logger.WarnContext(ctx, "phase skipped", "phase", p, "reason", reason)
			continue
		}

		o.transition(run, types.PhaseStatusRunning)
		o.logger.InfoContext(ctx, "phase started", "phase", p, "run_id", run.ID.Short())

		status := o.dispatch(ctx, sess, run)
		o.transition(run, status)
		o.logger.InfoContext(ctx, "phase finished",
			"phase", p,
			"run_id", run.ID.Short(),
			"status", status,
			"duration", run.Duration(),
		)
	}

	return runs, ctx.Err()
}

// precondition returns a human-readable skip reason when the phase cannot
// run, or "" when it may proceed. The authorization gate for
// exploit-capable phases lives here: an empty in-scope workload means the
// phase never starts.
func (o *Orchestrator) precondition(sess *session.Session, p types.Phase) string {
	for _, dep := range phase.DependenciesOf(p) {
		if !o.depSatisfied(sess, dep) {
			return fmt.Sprintf("dependency %s has no usable run", dep)
		}
	}

	if p == types.PhaseExploit || p == types.PhasePostExploit {
		allowed, denied := sess.Policy.Filter(sess.Workload())
		if len(denied) > 0 {
			o.logger.Warn("targets excluded by scope policy",
				"phase", p,
				"denied", len(denied),
			)
		}
		if len(allowed) == 0 {
			return "no in-scope targets authorized for exploitation"
		}
	}

	return ""
}

// depSatisfied reports whether the dependency phase has a run downstream
// phases may build on.
func (o *Orchestrator) depSatisfied(sess *session.Session, dep types.Phase) bool {
	for _, run := range sess.RunsFor(dep) {
		if run.Status == types.PhaseStatusSucceeded {
			return true
		}
		if run.Status == types.PhaseStatusPartial && !o.requireClean {
			return true
		}
	}
	return false
}

// dispatch runs one phase's runner and returns its terminal status.
func (o *Orchestrator) dispatch(ctx context.Context, sess *session.Session, run *phase.Run) types.PhaseStatus {
	switch run.Phase {
	case types.PhasePreEngagement:
		return o.runPreEngagement(sess, run)
	case types.PhaseRecon, types.PhaseVulnScan, types.PhasePostExploit:
		return o.runAdapterPhase(ctx, sess, run)
	case types.PhaseThreatModel:
		return o.runThreatModel(sess, run)
	case types.PhaseExploit:
		return o.runExploit(ctx, sess, run)
	case types.PhaseReport:
		return o.runReport(sess, run)
	default:
		run.ErrorSummary = fmt.Sprintf("no runner for phase %s", run.Phase)
		return types.PhaseStatusFailed
	}
}

// runPreEngagement validates the engagement record and compiles its scope
// into the session. A session created with an explicit policy and no
// engagement record passes trivially: authorization was established by the
// caller.
func (o *Orchestrator) runPreEngagement(sess *session.Session, run *phase.Run) types.PhaseStatus {
	if o.engagement == nil {
		if sess.Policy == nil || len(sess.Policy.Rules()) == 0 {
			run.ErrorSummary = "no engagement record and no scope policy configured"
			return types.PhaseStatusFailed
		}
		return types.PhaseStatusSucceeded
	}

	if err := o.engagement.Validate(time.Now()); err != nil {
		run.ErrorSummary = err.Error()
		return types.PhaseStatusFailed
	}

	policy, err := o.engagement.CompileScope()
	if err != nil {
		run.ErrorSummary = err.Error()
		return types.PhaseStatusFailed
	}
	sess.Policy = policy

	if len(sess.Targets) == 0 {
		sess.Targets = o.engagement.Targets()
	}
	return types.PhaseStatusSucceeded
}

// runAdapterPhase fans the phase's registered adapters over the session
// workload through the executor.
func (o *Orchestrator) runAdapterPhase(ctx context.Context, sess *session.Session, run *phase.Run) types.PhaseStatus {
	adapters := o.registry.ForPhase(run.Phase)
	if len(adapters) == 0 {
		run.ErrorSummary = types.NewError(types.PHASE_NO_ADAPTERS,
			fmt.Sprintf("no adapters registered for phase %s", run.Phase)).Error()
		return types.PhaseStatusFailed
	}

	workload := o.phaseWorkload(sess, run.Phase)
	if len(workload) == 0 {
		run.ErrorSummary = "empty workload"
		return types.PhaseStatusFailed
	}

	executor := phase.NewExecutor(sess.Store,
		phase.WithMaxParallel(o.maxParallel),
		phase.WithRetryPolicy(o.retry),
		phase.WithLogger(o.logger),
	)
	result := executor.Execute(ctx, run.Phase, adapters, workload)

	run.AdapterCalls = len(result.Calls)
	run.AdapterFailures = result.Failures()
	run.ErrorSummary = result.ErrorSummary()
	return result.Status()
}

// phaseWorkload selects the targets a phase operates on. POST_EXPLOIT works
// only from footholds; exploit-capable phases see only in-scope targets.
func (o *Orchestrator) phaseWorkload(sess *session.Session, p types.Phase) []types.Target {
	if p == types.PhasePostExploit {
		footholds := sess.Store.Query(finding.NewFilter().WithCategory(finding.CategoryPostExploit))
		seen := make(map[string]bool)
		var out []types.Target
		for _, f := range footholds {
			if !seen[f.Target.Key()] && sess.Policy.Allows(f.Target) {
				seen[f.Target.Key()] = true
				out = append(out, f.Target)
			}
		}
		return out
	}

	workload := sess.Workload()
	if p == types.PhaseExploit {
		allowed, _ := sess.Policy.Filter(workload)
		return allowed
	}
	return workload
}

// runThreatModel derives threat findings from the recon and scan output.
func (o *Orchestrator) runThreatModel(sess *session.Session, run *phase.Run) types.PhaseStatus {
	modeler := threatmodel.NewModeler(sess.Store, threatmodel.WithLogger(o.logger))
	model, err := modeler.Build()
	if err != nil {
		run.ErrorSummary = err.Error()
		return types.PhaseStatusFailed
	}
	if len(model.Assets) == 0 {
		run.ErrorSummary = "no assets discovered to model"
		return types.PhaseStatusFailed
	}
	return types.PhaseStatusSucceeded
}

// runExploit scores the store, plans the attack path, and drives the
// coordinator. The phase result mirrors the step outcomes: succeeded when
// every step succeeded, partial when some did, failed when none did. A plan
// with no steps is a skip, never a success.
func (o *Orchestrator) runExploit(ctx context.Context, sess *session.Session, run *phase.Run) types.PhaseStatus {
	if o.exploitTool == nil {
		run.ErrorSummary = types.NewError(types.PHASE_NO_ADAPTERS,
			"no exploitation adapter configured").Error()
		return types.PhaseStatusFailed
	}

	engineOpts := []scoring.EngineOption{
		scoring.WithWeights(o.weights),
		scoring.WithLogger(o.logger),
	}
	if o.oracle != nil {
		engineOpts = append(engineOpts, scoring.WithOracle(o.oracle))
	}
	engine := scoring.NewEngine(sess.Store, engineOpts...)
	if _, err := engine.ScoreAll(ctx, nil); err != nil {
		run.ErrorSummary = err.Error()
		return types.PhaseStatusFailed
	}

	planner := plan.NewPlanner(
		plan.WithScoreThreshold(o.threshold),
		plan.WithWeights(o.weights),
		plan.WithLogger(o.logger),
	)
	pl, err := planner.Plan(o.exploitCandidates(sess), sess.Policy)
	if err != nil {
		run.ErrorSummary = err.Error()
		return types.PhaseStatusFailed
	}
	sess.SetPlan(pl)

	if len(pl.Steps) == 0 {
		run.ErrorSummary = "no findings qualified for exploitation"
		return types.PhaseStatusSkipped
	}

	coordinator := execution.NewCoordinator(sess.Store, o.exploitTool,
		execution.WithMaxParallel(o.maxParallel),
		execution.WithGracePeriod(o.grace),
		execution.WithLogger(o.logger),
	)
	outcomes, execErr := coordinator.Execute(ctx, pl)
	sess.AppendOutcomes(outcomes)

	run.AdapterCalls = len(outcomes)
	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.Status == types.StepStatusSucceeded {
			succeeded++
		} else {
			run.AdapterFailures++
		}
	}
	if execErr != nil {
		run.ErrorSummary = execErr.Error()
	}

	switch {
	case succeeded == len(outcomes) && execErr == nil:
		return types.PhaseStatusSucceeded
	case succeeded > 0:
		return types.PhaseStatusPartial
	default:
		return types.PhaseStatusFailed
	}
}

// exploitCandidates selects the findings the planner considers: everything
// except the planner's own derived inputs that cannot be exploited directly.
func (o *Orchestrator) exploitCandidates(sess *session.Session) []finding.Finding {
	var out []finding.Finding
	for _, f := range sess.Store.All() {
		switch f.Category {
		case finding.CategoryThreat, finding.CategoryPostExploit:
			continue
		}
		switch f.Status {
		case finding.StatusFalsePositive, finding.StatusNotExploitable, finding.StatusExploited:
			continue
		}
		out = append(out, f)
	}
	return out
}

// runReport exports the session snapshot to the configured sink.
func (o *Orchestrator) runReport(sess *session.Session, run *phase.Run) types.PhaseStatus {
	snapshot := sess.Export()
	if o.sink == nil {
		return types.PhaseStatusSucceeded
	}
	if err := o.sink(snapshot); err != nil {
		run.ErrorSummary = err.Error()
		return types.PhaseStatusFailed
	}
	return types.PhaseStatusSucceeded
}

// transition applies a lifecycle transition, logging rather than failing on
// a programming error: run statuses only move through dispatch.
func (o *Orchestrator) transition(run *phase.Run, status types.PhaseStatus) {
	if err := run.Transition(status); err != nil {
		o.logger.Error("invalid phase transition",
			"phase", run.Phase,
			"from", run.Status,
			"to", status,
			"error", err,
		)
	}
}
