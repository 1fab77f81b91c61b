package scoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

// Weights fixes how the rule and oracle components combine. When the oracle
// is unavailable for a finding its weight is redistributed to the rule
// component, so the combined score equals the rule score exactly.
type Weights struct {
	Rule   float64
	Oracle float64
}

// DefaultWeights is the documented default: 60% rule, 40% oracle.
var DefaultWeights = Weights{Rule: 0.6, Oracle: 0.4}

// Combined computes the plan-facing score for a finding from its latest
// rule and oracle annotations (latest-by-source wins; history is ignored
// here but retained on the finding for audit). Returns false when the
// finding has never been rule-scored.
func Combined(f finding.Finding, w Weights) (float64, bool) {
	rule := f.LatestAnnotation(finding.SourceRule)
	if rule == nil {
		return 0, false
	}

	oracle := f.LatestAnnotation(finding.SourceOracle)
	if oracle == nil {
		return rule.Score, true
	}

	total := w.Rule + w.Oracle
	if total <= 0 {
		return rule.Score, true
	}
	return (rule.Score*w.Rule + oracle.Score*w.Oracle) / total, true
}

// Engine scores findings: a deterministic rule component, then an optional
// oracle component, each recorded as its own annotation on the store.
type Engine struct {
	store   *finding.Store
	rule    *RuleScorer
	oracle  Oracle
	weights Weights
	logger  *slog.Logger
}

// EngineOption is a functional option for configuring the Engine.
type EngineOption func(*Engine)

// WithOracle configures the external scoring oracle. Without one, combined
// scores are the rule scores.
func WithOracle(oracle Oracle) EngineOption {
	return func(e *Engine) {
		e.oracle = oracle
	}
}

// WithWeights overrides the default 60/40 rule/oracle weighting.
func WithWeights(w Weights) EngineOption {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithLogger configures the engine's structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a scoring engine writing annotations to the store.
func NewEngine(store *finding.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		rule:    NewRuleScorer(),
		weights: DefaultWeights,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns the engine's configured weighting.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Score computes and records annotations for one finding, returning the
// combined score. The rule component is always produced; the oracle
// component is skipped (weight redistributed) when no oracle is configured
// or the oracle reports unavailable.
func (e *Engine) Score(ctx context.Context, f finding.Finding) (float64, error) {
	now := time.Now()

	ruleAnn := e.rule.Score(f)
	ruleAnn.ProducedAt = now
	if err := e.store.Annotate(f.ID, ruleAnn); err != nil {
		return 0, err
	}

	combined := ruleAnn.Score

	if e.oracle != nil {
		assessment, err := e.oracle.Evaluate(ctx, f)
		switch {
		case err == nil:
			oracleAnn := finding.Annotation{
				Source:     finding.SourceOracle,
				Score:      assessment.Score,
				Rationale:  assessment.Rationale,
				ProducedAt: time.Now(),
			}
			if err := e.store.Annotate(f.ID, oracleAnn); err != nil {
				return 0, err
			}
			total := e.weights.Rule + e.weights.Oracle
			combined = (ruleAnn.Score*e.weights.Rule + assessment.Score*e.weights.Oracle) / total
		case isOracleDegradation(err):
			e.logger.WarnContext(ctx, "scoring oracle unavailable, using rule score only",
				"finding_id", f.ID,
				"error", err,
			)
		default:
			return 0, err
		}
	}

	return combined, nil
}

// ScoreAll scores every finding matching the filter, returning the number
// scored. Individual oracle degradation does not stop the batch; store
// errors do.
func (e *Engine) ScoreAll(ctx context.Context, filter *finding.Filter) (int, error) {
	findings := e.store.Query(filter)
	for _, f := range findings {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := e.Score(ctx, f); err != nil {
			return 0, err
		}
	}
	return len(findings), nil
}

// isOracleDegradation reports whether the error only degrades oracle weight
// rather than failing the scoring pass.
func isOracleDegradation(err error) bool {
	code := types.CodeOf(err)
	if code == types.ORACLE_UNAVAILABLE || code == types.ORACLE_BAD_OUTPUT {
		return true
	}
	// Oracle timeouts degrade too.
	return errors.Is(err, context.DeadlineExceeded)
}
