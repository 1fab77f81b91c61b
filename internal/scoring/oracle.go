package scoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

// Assessment is the oracle's secondary judgment on a finding.
type Assessment struct {
	Score     float64 // 0-100
	Rationale string
}

// Oracle is the external scoring capability consumed by the engine. It is a
// black box: any error from Evaluate is treated as "unavailable" and only
// degrades the oracle's weight, never the pipeline. The oracle's output is
// score-only input; it can never widen scope or reorder the plan.
type Oracle interface {
	Evaluate(ctx context.Context, f finding.Finding) (Assessment, error)
}

// LLMOracle implements Oracle on top of a langchaingo model. The model is
// prompted with the finding's evidence and asked for an exploitability score
// and a short rationale in a fixed line format.
type LLMOracle struct {
	model   llms.Model
	timeout time.Duration
}

// LLMOracleOption configures an LLMOracle.
type LLMOracleOption func(*LLMOracle)

// WithOracleTimeout bounds a single oracle call. Default is 30 seconds.
func WithOracleTimeout(d time.Duration) LLMOracleOption {
	return func(o *LLMOracle) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewLLMOracle creates an oracle backed by the given model. A nil model
// yields an oracle that always reports unavailable, which callers may prefer
// over handling a nil Oracle themselves.
func NewLLMOracle(model llms.Model, opts ...LLMOracleOption) *LLMOracle {
	o := &LLMOracle{
		model:   model,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Evaluate prompts the model and parses its SCORE/RATIONALE response.
func (o *LLMOracle) Evaluate(ctx context.Context, f finding.Finding) (Assessment, error) {
	if o.model == nil {
		return Assessment{}, types.NewError(types.ORACLE_UNAVAILABLE, "no oracle model configured")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	response, err := llms.GenerateFromSinglePrompt(ctx, o.model, buildPrompt(f),
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(512),
	)
	if err != nil {
		return Assessment{}, types.WrapError(types.ORACLE_UNAVAILABLE, "oracle call failed", err)
	}

	assessment, err := parseAssessment(response)
	if err != nil {
		return Assessment{}, types.WrapError(types.ORACLE_BAD_OUTPUT, "oracle returned unparseable output", err)
	}
	return assessment, nil
}

// buildPrompt renders the finding into the oracle prompt. The response
// format is pinned so parseAssessment stays trivial.
func buildPrompt(f finding.Finding) string {
	var sb strings.Builder
	sb.WriteString("You are assisting an authorized penetration test. ")
	sb.WriteString("Assess the exploitability of the following finding.\n\n")
	fmt.Fprintf(&sb, "Target: %s\n", f.Target)
	fmt.Fprintf(&sb, "Category: %s\n", f.Category)
	fmt.Fprintf(&sb, "Reported severity: %s\n", f.SeverityRaw)
	fmt.Fprintf(&sb, "Evidence:\n%s\n\n", f.RawEvidence)
	sb.WriteString("Respond with exactly two lines:\n")
	sb.WriteString("SCORE: <integer 0-100>\n")
	sb.WriteString("RATIONALE: <one sentence>\n")
	return sb.String()
}

// parseAssessment extracts the SCORE and RATIONALE lines from the model
// response, tolerating surrounding prose.
func parseAssessment(response string) (Assessment, error) {
	var (
		assessment Assessment
		haveScore  bool
	)

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "SCORE:"); ok {
			score, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if err != nil {
				return Assessment{}, fmt.Errorf("bad score line %q: %w", line, err)
			}
			if score < 0 {
				score = 0
			}
			if score > 100 {
				score = 100
			}
			assessment.Score = score
			haveScore = true
		} else if rest, ok := strings.CutPrefix(line, "RATIONALE:"); ok {
			assessment.Rationale = strings.TrimSpace(rest)
		}
	}

	if !haveScore {
		return Assessment{}, fmt.Errorf("no SCORE line in response")
	}
	if assessment.Rationale == "" {
		assessment.Rationale = "no rationale provided"
	}
	return assessment, nil
}
