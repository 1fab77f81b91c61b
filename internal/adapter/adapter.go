// Package adapter defines the boundary between the pipeline core and the
// external security tools it drives. The orchestrator and coordinator depend
// only on the ToolAdapter interface, never on a concrete tool; tool-specific
// output parsing lives behind Normalize and stays outside the core.
package adapter

import (
	"context"
	"time"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

// InvokeOptions carries per-invocation tuning passed through to the tool.
type InvokeOptions struct {
	// Timeout bounds a single invocation. Zero means the adapter's default.
	Timeout time.Duration

	// Args are tool-specific arguments the caller wants appended.
	Args []string

	// ExploitRef selects a specific exploit module for exploitation-capable
	// adapters; empty otherwise.
	ExploitRef string
}

// RawResult is the unparsed outcome of one tool invocation.
type RawResult struct {
	// Output is the tool's raw stdout (and interleaved stderr where the
	// tool mixes them).
	Output string

	// ExitStatus is the process exit code, or -1 when the tool never ran.
	ExitStatus int

	// StartedAt and Duration describe the invocation window.
	StartedAt time.Time
	Duration  time.Duration
}

// OK reports whether the invocation completed with a zero exit status.
func (r RawResult) OK() bool {
	return r.ExitStatus == 0
}

// ToolAdapter is implemented by every external tool integration: port
// scanners, vulnerability scanners, exploitation frameworks, post-exploit
// collectors. Invoke must honor context cancellation cooperatively; after
// the coordinator's grace period expires the context is cancelled a second
// time and the adapter must terminate its work.
type ToolAdapter interface {
	// Name returns the unique identifier for this adapter (e.g. "nmap").
	Name() string

	// Phases returns the pipeline phases this adapter participates in.
	Phases() []types.Phase

	// Invoke runs the tool against the target and returns its raw output.
	Invoke(ctx context.Context, target types.Target, opts InvokeOptions) (RawResult, error)

	// Normalize translates a raw result into zero or more findings.
	// Normalization never touches the store; the phase executor owns that.
	Normalize(target types.Target, phase types.Phase, raw RawResult) ([]finding.Finding, error)

	// Cancel aborts any in-flight invocation beyond cooperative context
	// cancellation (e.g. killing a subprocess group). Best effort.
	Cancel() error
}
