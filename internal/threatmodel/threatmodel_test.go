package threatmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

func addRecon(t *testing.T, store *finding.Store, target types.Target) {
	t.Helper()
	_, err := store.Add(finding.Finding{
		PhaseOrigin: types.PhaseRecon,
		Target:      target,
		Category:    finding.CategoryOpenPort,
		RawEvidence: target.String() + " open",
		SeverityRaw: types.SeverityInfo,
		Confidence:  0.9,
	})
	require.NoError(t, err)
}

func addVuln(t *testing.T, store *finding.Store, target types.Target) {
	t.Helper()
	_, err := store.Add(finding.Finding{
		PhaseOrigin: types.PhaseVulnScan,
		Target:      target,
		Category:    finding.CategoryCVE,
		RawEvidence: "vulnerability on " + target.String(),
		SeverityRaw: types.SeverityHigh,
		Confidence:  0.8,
	})
	require.NoError(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		target   types.Target
		expected AssetClass
	}{
		{"service label wins", types.Target{Host: "h", Port: 8088, Service: "http"}, AssetWebServer},
		{"database by service", types.Target{Host: "h", Port: 5432, Service: "postgresql"}, AssetDatabase},
		{"domain controller by kerberos", types.Target{Host: "h", Port: 88, Service: "kerberos-sec"}, AssetDomainController},
		{"smb by port", types.Target{Host: "h", Port: 445}, AssetFileServer},
		{"rdp by port", types.Target{Host: "h", Port: 3389}, AssetRemoteAccess},
		{"unknown is generic", types.Target{Host: "h", Port: 9999}, AssetGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(tt.target))
		})
	}
}

func TestModeler_ClassifiesAndDerivesThreats(t *testing.T) {
	store := finding.NewStore()

	dc := types.Target{Host: "10.0.0.10", Port: 88, Service: "kerberos"}
	web := types.Target{Host: "10.0.0.20", Port: 443, Service: "https"}
	addRecon(t, store, dc)
	addRecon(t, store, types.Target{Host: "10.0.0.10", Port: 389, Service: "ldap"})
	addRecon(t, store, web)
	addVuln(t, store, dc)

	model, err := NewModeler(store).Build()
	require.NoError(t, err)

	require.Len(t, model.Assets, 2)
	assert.Equal(t, AssetDomainController, model.Assets[0].Class)
	assert.Equal(t, 1, model.Assets[0].Exposure)
	assert.Equal(t, AssetWebServer, model.Assets[1].Class)

	// Threat findings land in the store under the threat-model phase.
	threats := store.Query(finding.NewFilter().WithCategory(finding.CategoryThreat))
	require.Len(t, threats, model.Threats)
	require.NotEmpty(t, threats)
	assert.Equal(t, types.PhaseThreatModel, threats[0].PhaseOrigin)

	// Exposed domain controller rates high severity.
	var dcThreat *finding.Finding
	for i := range threats {
		if threats[i].Target.Host == "10.0.0.10" {
			dcThreat = &threats[i]
		}
	}
	require.NotNil(t, dcThreat)
	assert.Equal(t, types.SeverityHigh, dcThreat.SeverityRaw)
}

func TestModeler_GenericUnexposedHostYieldsNoThreat(t *testing.T) {
	store := finding.NewStore()
	addRecon(t, store, types.Target{Host: "10.0.0.30", Port: 9999})

	model, err := NewModeler(store).Build()
	require.NoError(t, err)

	assert.Len(t, model.Assets, 1)
	assert.Equal(t, 0, model.Threats)
	assert.Empty(t, store.Query(finding.NewFilter().WithCategory(finding.CategoryThreat)))
}

func TestModeler_RerunIsIdempotent(t *testing.T) {
	store := finding.NewStore()
	addRecon(t, store, types.Target{Host: "10.0.0.10", Port: 445, Service: "smb"})

	_, err := NewModeler(store).Build()
	require.NoError(t, err)
	first := len(store.Query(finding.NewFilter().WithCategory(finding.CategoryThreat)))

	_, err = NewModeler(store).Build()
	require.NoError(t, err)
	second := len(store.Query(finding.NewFilter().WithCategory(finding.CategoryThreat)))

	assert.Equal(t, first, second)
}

func TestModel_Summary(t *testing.T) {
	model := &Model{
		Assets: []Asset{
			{Host: "a", Class: AssetWebServer},
			{Host: "b", Class: AssetWebServer},
			{Host: "c", Class: AssetDatabase},
		},
		Threats: 2,
	}

	summary := model.Summary()
	assert.Contains(t, summary, "3 assets")
	assert.Contains(t, summary, "web_server=2")
	assert.Contains(t, summary, "2 threats")
}
