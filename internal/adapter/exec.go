package adapter

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

// ExecAdapter drives an external tool as a subprocess. It is the generic
// ToolAdapter the CLI wires from configuration; tool-specific adapters with
// real output parsers implement the interface directly instead.
//
// Its Normalize wraps the raw output into a single evidence finding with the
// configured category and severity, leaving format-aware parsing to external
// adapters.
type ExecAdapter struct {
	name     string
	command  string
	baseArgs []string
	phases   []types.Phase
	category finding.Category
	severity types.Severity
	timeout  time.Duration

	mu      sync.Mutex
	current *exec.Cmd
}

// ExecAdapterConfig describes one configured subprocess tool.
type ExecAdapterConfig struct {
	Name     string           `mapstructure:"name" yaml:"name"`
	Command  string           `mapstructure:"command" yaml:"command"`
	Args     []string         `mapstructure:"args" yaml:"args"`
	Phases   []types.Phase    `mapstructure:"phases" yaml:"phases"`
	Category finding.Category `mapstructure:"category" yaml:"category"`
	Severity types.Severity   `mapstructure:"severity" yaml:"severity"`
	Timeout  time.Duration    `mapstructure:"timeout" yaml:"timeout"`
}

// NewExecAdapter builds an ExecAdapter from configuration.
func NewExecAdapter(cfg ExecAdapterConfig) (*ExecAdapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("exec adapter requires a name")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("exec adapter %q requires a command", cfg.Name)
	}
	if len(cfg.Phases) == 0 {
		return nil, fmt.Errorf("exec adapter %q requires at least one phase", cfg.Name)
	}

	category := cfg.Category
	if category == "" {
		category = finding.CategoryUncategorized
	}
	severity := cfg.Severity
	if severity == "" {
		severity = types.SeverityInfo
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &ExecAdapter{
		name:     cfg.Name,
		command:  cfg.Command,
		baseArgs: cfg.Args,
		phases:   cfg.Phases,
		category: category,
		severity: severity,
		timeout:  timeout,
	}, nil
}

// Name returns the adapter's configured name.
func (a *ExecAdapter) Name() string {
	return a.name
}

// Phases returns the phases the adapter is configured for.
func (a *ExecAdapter) Phases() []types.Phase {
	return append([]types.Phase(nil), a.phases...)
}

// Invoke runs the configured command against the target. The target's
// host:port string is appended after the base and per-call arguments.
// Cancellation is cooperative: the context cancels the subprocess, and a
// short wait delay escalates to SIGKILL if the process ignores it.
func (a *ExecAdapter) Invoke(ctx context.Context, target types.Target, opts InvokeOptions) (RawResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = a.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{}, a.baseArgs...)
	args = append(args, opts.Args...)
	args = append(args, target.String())

	cmd := exec.CommandContext(ctx, a.command, args...)
	cmd.Cancel = func() error {
		// Terminate gracefully first; WaitDelay escalates to SIGKILL.
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	a.mu.Lock()
	a.current = cmd
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.current = nil
		a.mu.Unlock()
	}()

	started := time.Now()
	output, err := cmd.CombinedOutput()
	result := RawResult{
		Output:     string(output),
		ExitStatus: -1,
		StartedAt:  started,
		Duration:   time.Since(started),
	}

	if cmd.ProcessState != nil {
		result.ExitStatus = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result, types.WrapRetryableError(types.ADAPTER_TIMEOUT,
				fmt.Sprintf("%s timed out after %s against %s", a.name, timeout, target), ctx.Err())
		}
		if ctx.Err() == context.Canceled {
			return result, types.WrapError(types.ADAPTER_CANCELLED,
				fmt.Sprintf("%s cancelled against %s", a.name, target), ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return result, types.WrapRetryableError(types.ADAPTER_EXEC_FAILED,
				fmt.Sprintf("%s exited with status %d against %s", a.name, result.ExitStatus, target), err)
		}
		return result, types.WrapError(types.ADAPTER_EXEC_FAILED,
			fmt.Sprintf("%s failed to start", a.name), err)
	}

	return result, nil
}

// Normalize wraps the raw output into a single evidence finding. Empty
// output yields no findings.
func (a *ExecAdapter) Normalize(target types.Target, phase types.Phase, raw RawResult) ([]finding.Finding, error) {
	evidence := strings.TrimSpace(raw.Output)
	if evidence == "" {
		return nil, nil
	}

	return []finding.Finding{{
		PhaseOrigin: phase,
		Target:      target,
		Category:    a.category,
		RawEvidence: evidence,
		SeverityRaw: a.severity,
		Confidence:  0.6,
	}}, nil
}

// Cancel sends SIGKILL to any in-flight subprocess.
func (a *ExecAdapter) Cancel() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil && a.current.Process != nil {
		return a.current.Process.Kill()
	}
	return nil
}
