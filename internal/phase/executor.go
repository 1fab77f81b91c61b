package phase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pattonant/autopen2.0/internal/adapter"
	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

// RetryPolicy bounds retries of transient adapter failures with exponential
// backoff. Non-retryable errors (crashes, scope violations, cancellation)
// are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries per adapter call, including
	// the first. Minimum 1.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is the delay before the first retry; each subsequent retry
	// doubles it up to MaxDelay.
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// DefaultRetryPolicy is 3 attempts starting at 2 seconds, capped at 30.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    30 * time.Second,
}

// delay computes the backoff before retry n (1-based).
func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// CallResult records one adapter invocation against one target, after
// retries.
type CallResult struct {
	Adapter  string       `json:"adapter"`
	Target   types.Target `json:"target"`
	Findings int          `json:"findings"`
	Attempts int          `json:"attempts"`
	Error    string       `json:"error,omitempty"`
	ok       bool
}

// Result aggregates a phase execution.
type Result struct {
	Phase         types.Phase  `json:"phase"`
	Calls         []CallResult `json:"calls"`
	FindingsAdded int          `json:"findings_added"`
}

// Status synthesizes the phase status from the call results: succeeded when
// every call succeeded, partial when some did, failed when none did. A phase
// with zero adapter calls is failed, never success.
func (r *Result) Status() types.PhaseStatus {
	if len(r.Calls) == 0 {
		return types.PhaseStatusFailed
	}

	succeeded := 0
	for _, c := range r.Calls {
		if c.ok {
			succeeded++
		}
	}
	switch {
	case succeeded == len(r.Calls):
		return types.PhaseStatusSucceeded
	case succeeded > 0:
		return types.PhaseStatusPartial
	default:
		return types.PhaseStatusFailed
	}
}

// Failures returns the number of failed calls.
func (r *Result) Failures() int {
	n := 0
	for _, c := range r.Calls {
		if !c.ok {
			n++
		}
	}
	return n
}

// ErrorSummary joins the distinct call errors for the phase-run record.
func (r *Result) ErrorSummary() string {
	seen := make(map[string]bool)
	var parts []string
	for _, c := range r.Calls {
		if c.Error != "" && !seen[c.Error] {
			seen[c.Error] = true
			parts = append(parts, fmt.Sprintf("%s vs %s: %s", c.Adapter, c.Target, c.Error))
		}
	}
	return strings.Join(parts, "; ")
}

// Executor runs one phase: it fans adapter invocations out over the
// workload under a concurrency limit, retries transient failures with
// bounded exponential backoff, isolates adapter crashes from sibling calls,
// and normalizes raw results into the finding store.
type Executor struct {
	store       *finding.Store
	maxParallel int64
	retry       RetryPolicy
	callTimeout time.Duration
	logger      *slog.Logger
}

// ExecutorOption is a functional option for configuring the Executor.
type ExecutorOption func(*Executor)

// WithMaxParallel bounds concurrent adapter invocations within a phase.
// Default 4: small on purpose, to respect target load and stay under
// intrusion-detection thresholds.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = int64(n)
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) ExecutorOption {
	return func(e *Executor) {
		if p.MaxAttempts >= 1 {
			e.retry = p
		}
	}
}

// WithCallTimeout bounds each adapter invocation. Zero keeps each adapter's
// own default.
func WithCallTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.callTimeout = d
	}
}

// WithLogger configures the executor's structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an Executor writing normalized findings to the store.
func NewExecutor(store *finding.Store, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:       store,
		maxParallel: 4,
		retry:       DefaultRetryPolicy,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every adapter against every target in the workload and
// returns the aggregated result. Individual call failures never abort the
// phase; the caller reads the synthesized status off the result.
func (e *Executor) Execute(ctx context.Context, p types.Phase, adapters []adapter.ToolAdapter, targets []types.Target) *Result {
	result := &Result{Phase: p}
	if len(adapters) == 0 || len(targets) == 0 {
		return result
	}

	sem := semaphore.NewWeighted(e.maxParallel)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, a := range adapters {
		for _, t := range targets {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Session cancelled; record the call as failed rather than
				// dropping it silently.
				mu.Lock()
				result.Calls = append(result.Calls, CallResult{
					Adapter: a.Name(),
					Target:  t,
					Error:   err.Error(),
				})
				mu.Unlock()
				continue
			}

			wg.Add(1)
			go func(a adapter.ToolAdapter, t types.Target) {
				defer wg.Done()
				defer sem.Release(1)

				call := e.invokeWithRetry(ctx, p, a, t)
				mu.Lock()
				result.Calls = append(result.Calls, call)
				result.FindingsAdded += call.Findings
				mu.Unlock()
			}(a, t)
		}
	}

	wg.Wait()
	return result
}

// invokeWithRetry drives one adapter call to completion: bounded
// exponential backoff on retryable errors, panic isolation, and
// normalization into the store on success.
func (e *Executor) invokeWithRetry(ctx context.Context, p types.Phase, a adapter.ToolAdapter, t types.Target) CallResult {
	call := CallResult{Adapter: a.Name(), Target: t}

	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		call.Attempts = attempt

		raw, err := e.safeInvoke(ctx, a, t)
		if err == nil {
			added, normErr := e.normalize(p, a, t, raw)
			if normErr != nil {
				lastErr = normErr
				break
			}
			call.Findings = added
			call.ok = true
			e.logger.DebugContext(ctx, "adapter call succeeded",
				"phase", p,
				"adapter", a.Name(),
				"target", t.String(),
				"findings", added,
				"attempt", attempt,
			)
			return call
		}

		lastErr = err
		if !types.IsRetryable(err) || attempt == e.retry.MaxAttempts || ctx.Err() != nil {
			break
		}

		delay := e.retry.delay(attempt)
		e.logger.WarnContext(ctx, "adapter call failed, retrying",
			"phase", p,
			"adapter", a.Name(),
			"target", t.String(),
			"attempt", attempt,
			"backoff", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			call.Error = ctx.Err().Error()
			return call
		}
	}

	if lastErr != nil {
		call.Error = lastErr.Error()
		e.logger.ErrorContext(ctx, "adapter call exhausted",
			"phase", p,
			"adapter", a.Name(),
			"target", t.String(),
			"attempts", call.Attempts,
			"error", lastErr,
		)
	}
	return call
}

// safeInvoke shields the executor from adapter panics so a crashing adapter
// cannot corrupt the store or abort sibling calls in the same phase.
func (e *Executor) safeInvoke(ctx context.Context, a adapter.ToolAdapter, t types.Target) (raw adapter.RawResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewError(types.ADAPTER_CRASH,
				fmt.Sprintf("adapter %s panicked against %s: %v", a.Name(), t, r))
		}
	}()

	return a.Invoke(ctx, t, adapter.InvokeOptions{Timeout: e.callTimeout})
}

// normalize translates the raw result into findings and stores them.
func (e *Executor) normalize(p types.Phase, a adapter.ToolAdapter, t types.Target, raw adapter.RawResult) (int, error) {
	findings, err := a.Normalize(t, p, raw)
	if err != nil {
		return 0, types.WrapError(types.ADAPTER_EXEC_FAILED,
			fmt.Sprintf("adapter %s failed to normalize output", a.Name()), err)
	}

	added := 0
	for _, f := range findings {
		if _, err := e.store.Add(f); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
