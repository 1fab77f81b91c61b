package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	nmap, err := NewExecAdapter(ExecAdapterConfig{
		Name:    "nmap",
		Command: "nmap",
		Phases:  []types.Phase{types.PhaseRecon, types.PhaseVulnScan},
	})
	require.NoError(t, err)
	nikto, err := NewExecAdapter(ExecAdapterConfig{
		Name:    "nikto",
		Command: "nikto",
		Phases:  []types.Phase{types.PhaseVulnScan},
	})
	require.NoError(t, err)

	require.NoError(t, registry.Register(nikto))
	require.NoError(t, registry.Register(nmap))

	got, ok := registry.Get("nmap")
	require.True(t, ok)
	assert.Equal(t, "nmap", got.Name())

	// Phase lookup is name-sorted for deterministic dispatch.
	scan := registry.ForPhase(types.PhaseVulnScan)
	require.Len(t, scan, 2)
	assert.Equal(t, "nikto", scan[0].Name())
	assert.Equal(t, "nmap", scan[1].Name())

	assert.Len(t, registry.ForPhase(types.PhaseRecon), 1)
	assert.Empty(t, registry.ForPhase(types.PhaseExploit))
	assert.Equal(t, []string{"nikto", "nmap"}, registry.Names())
}

func TestRegistry_DuplicateName(t *testing.T) {
	registry := NewRegistry()

	a, err := NewExecAdapter(ExecAdapterConfig{Name: "nmap", Command: "nmap", Phases: []types.Phase{types.PhaseRecon}})
	require.NoError(t, err)
	b, err := NewExecAdapter(ExecAdapterConfig{Name: "nmap", Command: "other", Phases: []types.Phase{types.PhaseRecon}})
	require.NoError(t, err)

	require.NoError(t, registry.Register(a))
	assert.Error(t, registry.Register(b))
}

func TestNewExecAdapter_Validation(t *testing.T) {
	_, err := NewExecAdapter(ExecAdapterConfig{Command: "nmap", Phases: []types.Phase{types.PhaseRecon}})
	assert.Error(t, err)

	_, err = NewExecAdapter(ExecAdapterConfig{Name: "nmap", Phases: []types.Phase{types.PhaseRecon}})
	assert.Error(t, err)

	_, err = NewExecAdapter(ExecAdapterConfig{Name: "nmap", Command: "nmap"})
	assert.Error(t, err)
}

func TestExecAdapter_Invoke(t *testing.T) {
	a, err := NewExecAdapter(ExecAdapterConfig{
		Name:    "echoer",
		Command: "echo",
		Args:    []string{"scanned"},
		Phases:  []types.Phase{types.PhaseRecon},
	})
	require.NoError(t, err)

	raw, err := a.Invoke(context.Background(), types.Target{Host: "10.0.0.5", Port: 445}, InvokeOptions{})
	require.NoError(t, err)
	assert.True(t, raw.OK())
	assert.Contains(t, raw.Output, "scanned 10.0.0.5:445")
}

func TestExecAdapter_InvokeTimeout(t *testing.T) {
	a, err := NewExecAdapter(ExecAdapterConfig{
		Name:    "sleeper",
		Command: "sleep",
		Args:    []string{"5"},
		Phases:  []types.Phase{types.PhaseRecon},
	})
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), types.Target{Host: "10"}, InvokeOptions{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, types.ADAPTER_TIMEOUT, types.CodeOf(err))
	assert.True(t, types.IsRetryable(err))
}

func TestExecAdapter_Normalize(t *testing.T) {
	a, err := NewExecAdapter(ExecAdapterConfig{
		Name:     "scanner",
		Command:  "scanner",
		Phases:   []types.Phase{types.PhaseVulnScan},
		Category: finding.CategoryWebVulnerability,
		Severity: types.SeverityMedium,
	})
	require.NoError(t, err)

	target := types.Target{Host: "10.0.0.5", Port: 443}

	findings, err := a.Normalize(target, types.PhaseVulnScan, RawResult{Output: "  issue found\n", ExitStatus: 0})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, finding.CategoryWebVulnerability, findings[0].Category)
	assert.Equal(t, types.SeverityMedium, findings[0].SeverityRaw)
	assert.Equal(t, "issue found", findings[0].RawEvidence)
	assert.Equal(t, types.PhaseVulnScan, findings[0].PhaseOrigin)

	empty, err := a.Normalize(target, types.PhaseVulnScan, RawResult{Output: "   \n"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	content := `tools:
  - name: nmap-tcp
    command: nmap
    args: ["-sV", "-Pn"]
    phases: [recon]
    category: open_port
  - name: nikto
    command: nikto
    args: ["-host"]
    phases: [vuln_scan]
    category: web_vulnerability
    severity: medium
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	registry, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"nikto", "nmap-tcp"}, registry.Names())
	assert.Len(t, registry.ForPhase(types.PhaseRecon), 1)
}

func TestLoadRegistry_BadEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	content := `tools:
  - name: broken
    phases: [recon]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadRegistry(path)
	require.Error(t, err)
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, types.CodeOf(err))
}
