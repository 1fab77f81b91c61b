package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pattonant/autopen2.0/internal/adapter"
	"github.com/pattonant/autopen2.0/internal/database"
	"github.com/pattonant/autopen2.0/internal/engagement"
	"github.com/pattonant/autopen2.0/internal/orchestrator"
	"github.com/pattonant/autopen2.0/internal/phase"
	"github.com/pattonant/autopen2.0/internal/scope"
	"github.com/pattonant/autopen2.0/internal/scoring"
	"github.com/pattonant/autopen2.0/internal/session"
	"github.com/pattonant/autopen2.0/internal/types"
)

var (
	flagEngagement  string
	flagScope       string
	flagTools       string
	flagTargets     []string
	flagPhases      []string
	flagExploitTool string
	flagOutput      string
	flagName        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the penetration-test pipeline",
	Long: `Run executes the requested phases (default: the full pipeline)
against the engagement scope. Ctrl-C is the kill-switch: queued work stops
immediately and in-flight exploit steps get a bounded grace period.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&flagEngagement, "engagement", "e", "", "Engagement record YAML file")
	runCmd.Flags().StringVarP(&flagScope, "scope", "s", "", "Scope policy YAML file (alternative to --engagement)")
	runCmd.Flags().StringVar(&flagTools, "tools", "", "Tool inventory YAML file")
	runCmd.Flags().StringArrayVarP(&flagTargets, "target", "t", nil, "Initial target (host, host:port or host:port/service); repeatable")
	runCmd.Flags().StringArrayVarP(&flagPhases, "phase", "p", nil, "Phase to run (dependencies resolve automatically); repeatable")
	runCmd.Flags().StringVar(&flagExploitTool, "exploit-tool", "", "Registered tool name used to execute plan steps")
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Write the session snapshot JSON to this file")
	runCmd.Flags().StringVar(&flagName, "name", "", "Session name")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	sess, err := buildSession()
	if err != nil {
		return err
	}

	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	opts, cleanup, err := buildOrchestratorOptions(registry, sess)
	if err != nil {
		return err
	}
	defer cleanup()

	phases := make([]types.Phase, 0, len(flagPhases))
	for _, raw := range flagPhases {
		p, err := types.ParsePhase(raw)
		if err != nil {
			return err
		}
		phases = append(phases, p)
	}

	orch := orchestrator.New(registry, opts...)
	runs, runErr := orch.Run(cmd.Context(), sess, phases)

	printRuns(cmd, sess, runs)
	return runErr
}

// buildSession assembles the session from the engagement record or the
// explicit scope and target flags.
func buildSession() (*session.Session, error) {
	var (
		policy  *scope.Policy
		targets []types.Target
		err     error
	)

	for _, raw := range flagTargets {
		t, err := types.ParseTarget(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}

	if flagScope != "" {
		policy, err = scope.LoadPolicy(flagScope)
		if err != nil {
			return nil, err
		}
	}

	// Without --scope the pre-engagement phase compiles the policy from the
	// engagement record; start with an empty (deny-all) policy until then.
	if policy == nil {
		policy, _ = scope.NewPolicy(nil)
	}

	return session.New(flagName, targets, policy), nil
}

// buildRegistry loads the tool inventory, or returns an empty registry when
// none was given.
func buildRegistry() (*adapter.Registry, error) {
	if flagTools == "" {
		return adapter.NewRegistry(), nil
	}
	return adapter.LoadRegistry(flagTools)
}

// buildOrchestratorOptions wires configuration, the engagement record, the
// exploit tool, the oracle and the snapshot sinks into orchestrator options.
func buildOrchestratorOptions(registry *adapter.Registry, sess *session.Session) ([]orchestrator.Option, func(), error) {
	cleanup := func() {}

	opts := []orchestrator.Option{
		orchestrator.WithMaxParallel(cfg.Orchestrator.MaxParallel),
		orchestrator.WithGracePeriod(cfg.Orchestrator.GracePeriod),
		orchestrator.WithRequireCleanDependencies(cfg.Orchestrator.RequireCleanDependencies),
		orchestrator.WithRetryPolicy(phase.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		}),
		orchestrator.WithWeights(scoring.Weights{
			Rule:   cfg.Scoring.RuleWeight,
			Oracle: cfg.Scoring.OracleWeight,
		}),
		orchestrator.WithScoreThreshold(cfg.Scoring.Threshold),
	}

	if flagEngagement != "" {
		record, err := engagement.Load(flagEngagement)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, orchestrator.WithEngagement(record))
	}

	if flagExploitTool != "" {
		tool, ok := registry.Get(flagExploitTool)
		if !ok {
			return nil, cleanup, fmt.Errorf("exploit tool %q not in tool inventory", flagExploitTool)
		}
		opts = append(opts, orchestrator.WithExploitTool(tool))
	}

	if cfg.Oracle.Enabled {
		model, err := openai.New(openai.WithModel(cfg.Oracle.Model))
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize scoring oracle: %w", err)
		}
		opts = append(opts, orchestrator.WithOracle(
			scoring.NewLLMOracle(model, scoring.WithOracleTimeout(cfg.Oracle.Timeout))))
	}

	sink, closeSink, err := buildSnapshotSink()
	if err != nil {
		return nil, cleanup, err
	}
	if sink != nil {
		opts = append(opts, orchestrator.WithSnapshotSink(sink))
		cleanup = closeSink
	}

	return opts, cleanup, nil
}

// buildSnapshotSink combines the --output file and the configured database
// into one snapshot destination.
func buildSnapshotSink() (orchestrator.SnapshotSink, func(), error) {
	var (
		db      *database.DB
		cleanup = func() {}
	)

	if cfg.Database.Path != "" {
		opened, err := database.Open(cfg.Database.Path)
		if err != nil {
			return nil, cleanup, err
		}
		db = opened
		cleanup = func() { db.Close() }
	}

	if db == nil && flagOutput == "" {
		return nil, cleanup, nil
	}

	output := flagOutput
	sink := func(snap session.Snapshot) error {
		if db != nil {
			if err := db.SaveSnapshot(rootCmd.Context(), snap); err != nil {
				return err
			}
		}
		if output != "" {
			data, err := snap.MarshalIndent()
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write snapshot file: %w", err)
			}
		}
		return nil
	}
	return sink, cleanup, nil
}
