package adapter

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pattonant/autopen2.0/internal/types"
)

// ToolsFile is the on-disk tool inventory the CLI loads at startup.
//
//	tools:
//	  - name: nmap-tcp
//	    command: nmap
//	    args: ["-sV", "-Pn"]
//	    phases: [recon]
//	    category: open_port
//	  - name: nikto
//	    command: nikto
//	    args: ["-host"]
//	    phases: [vuln_scan]
//	    category: web_vulnerability
//	    severity: medium
type ToolsFile struct {
	Tools []ExecAdapterConfig `yaml:"tools"`
}

// LoadRegistry reads the tool inventory file and returns a registry with an
// ExecAdapter per entry.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read tools file", err)
	}

	var doc ToolsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to parse tools file", err)
	}

	registry := NewRegistry()
	for _, cfg := range doc.Tools {
		a, err := NewExecAdapter(cfg)
		if err != nil {
			return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED, "invalid tool entry", err)
		}
		if err := registry.Register(a); err != nil {
			return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED, "duplicate tool entry", err)
		}
	}
	return registry, nil
}
