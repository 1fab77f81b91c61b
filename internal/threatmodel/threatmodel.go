// Package threatmodel builds a threat model from recon output: it
// classifies discovered assets by the services they expose, rates their
// value and exposure, and derives threat findings that feed the scoring
// engine and the planner alongside scanner output.
package threatmodel

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

// AssetClass is a coarse functional classification of a target.
type AssetClass string

const (
	AssetWebServer        AssetClass = "web_server"
	AssetDatabase         AssetClass = "database"
	AssetDomainController AssetClass = "domain_controller"
	AssetMailServer       AssetClass = "mail_server"
	AssetFileServer       AssetClass = "file_server"
	AssetRemoteAccess     AssetClass = "remote_access"
	AssetGeneric          AssetClass = "generic"
)

// value rates how attractive a compromised asset of this class is.
// Domain controllers sit at the top: owning one usually ends the engagement.
var value = map[AssetClass]int{
	AssetDomainController: 10,
	AssetDatabase:         9,
	AssetFileServer:       7,
	AssetMailServer:       7,
	AssetWebServer:        6,
	AssetRemoteAccess:     6,
	AssetGeneric:          3,
}

// classify maps a service label or well-known port to an asset class.
func classify(t types.Target) AssetClass {
	switch strings.ToLower(t.Service) {
	case "http", "https", "http-proxy", "http-alt":
		return AssetWebServer
	case "mysql", "postgresql", "postgres", "mssql", "ms-sql-s", "mongodb", "redis", "oracle":
		return AssetDatabase
	case "kerberos", "kerberos-sec", "ldap", "ldaps", "kpasswd":
		return AssetDomainController
	case "smtp", "imap", "imaps", "pop3", "pop3s":
		return AssetMailServer
	case "smb", "microsoft-ds", "netbios-ssn", "ftp", "nfs":
		return AssetFileServer
	case "ssh", "rdp", "ms-wbt-server", "telnet", "vnc":
		return AssetRemoteAccess
	}

	switch t.Port {
	case 80, 443, 8080, 8443:
		return AssetWebServer
	case 1433, 1521, 3306, 5432, 6379, 27017:
		return AssetDatabase
	case 88, 389, 464, 636:
		return AssetDomainController
	case 25, 110, 143, 465, 587, 993, 995:
		return AssetMailServer
	case 21, 139, 445, 2049:
		return AssetFileServer
	case 22, 23, 3389, 5900:
		return AssetRemoteAccess
	}
	return AssetGeneric
}

// Asset is one host with its classified exposure.
type Asset struct {
	Host     string         `json:"host"`
	Class    AssetClass     `json:"class"`
	Value    int            `json:"value"` // 1-10
	Services []types.Target `json:"services,omitempty"`

	// Exposure counts the vulnerability findings recorded against the host.
	Exposure int `json:"exposure"`
}

// Model is the derived threat model for a session.
type Model struct {
	Assets  []Asset `json:"assets"`
	Threats int     `json:"threats"`
}

// Summary renders a one-line attack-surface digest for logs and reports.
func (m *Model) Summary() string {
	counts := make(map[AssetClass]int)
	for _, a := range m.Assets {
		counts[a.Class]++
	}

	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, string(c))
	}
	sort.Strings(classes)

	parts := make([]string, 0, len(classes))
	for _, c := range classes {
		parts = append(parts, fmt.Sprintf("%s=%d", c, counts[AssetClass(c)]))
	}
	return fmt.Sprintf("%d assets (%s), %d threats derived", len(m.Assets), strings.Join(parts, " "), m.Threats)
}

// Modeler derives threat findings from the store's recon and scan output.
type Modeler struct {
	store  *finding.Store
	logger *slog.Logger
}

// ModelerOption is a functional option for configuring the Modeler.
type ModelerOption func(*Modeler)

// WithLogger configures the modeler's structured logger.
func WithLogger(logger *slog.Logger) ModelerOption {
	return func(m *Modeler) {
		m.logger = logger
	}
}

// NewModeler creates a Modeler reading from and writing to the store.
func NewModeler(store *finding.Store, opts ...ModelerOption) *Modeler {
	m := &Modeler{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Build classifies every host seen in recon findings, rates its exposure
// from the vulnerability findings against it, and writes one threat finding
// per high-value exposed asset back into the store. Re-running is safe: the
// store deduplicates the derived findings by evidence.
func (m *Modeler) Build() (*Model, error) {
	recon := m.store.Query(finding.NewFilter().WithPhase(types.PhaseRecon))

	type hostInfo struct {
		services []types.Target
		best     AssetClass
	}
	hosts := make(map[string]*hostInfo)
	var hostOrder []string

	for _, f := range recon {
		h, ok := hosts[f.Target.Host]
		if !ok {
			h = &hostInfo{best: AssetGeneric}
			hosts[f.Target.Host] = h
			hostOrder = append(hostOrder, f.Target.Host)
		}
		if f.Target.Port > 0 {
			h.services = append(h.services, f.Target)
		}
		if c := classify(f.Target); value[c] > value[h.best] {
			h.best = c
		}
	}

	exposure := make(map[string]int)
	for _, f := range m.store.Query(finding.NewFilter().WithPhase(types.PhaseVulnScan)) {
		exposure[f.Target.Host]++
	}

	model := &Model{}
	for _, host := range hostOrder {
		info := hosts[host]
		asset := Asset{
			Host:     host,
			Class:    info.best,
			Value:    value[info.best],
			Services: info.services,
			Exposure: exposure[host],
		}
		model.Assets = append(model.Assets, asset)

		if err := m.deriveThreat(model, asset); err != nil {
			return nil, err
		}
	}

	m.logger.Info("threat model built", "summary", model.Summary())
	return model, nil
}

// deriveThreat writes a threat finding for assets worth planning against:
// anything above generic value, or any asset with recorded exposure.
func (m *Modeler) deriveThreat(model *Model, asset Asset) error {
	if asset.Class == AssetGeneric && asset.Exposure == 0 {
		return nil
	}

	severity := types.SeverityLow
	switch {
	case asset.Value >= 9 && asset.Exposure > 0:
		severity = types.SeverityHigh
	case asset.Value >= 9 || asset.Exposure > 1:
		severity = types.SeverityMedium
	}

	evidence := fmt.Sprintf("asset %s classified %s (value %d/10) exposing %d service(s) with %d vulnerability finding(s)",
		asset.Host, asset.Class, asset.Value, len(asset.Services), asset.Exposure)

	_, err := m.store.Add(finding.Finding{
		PhaseOrigin: types.PhaseThreatModel,
		Target:      types.Target{Host: asset.Host},
		Category:    finding.CategoryThreat,
		RawEvidence: evidence,
		SeverityRaw: severity,
		Confidence:  0.7,
	})
	if err != nil {
		return err
	}

	model.Threats++
	return nil
}
