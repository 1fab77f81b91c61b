package types

import (
	"encoding/json"
	"fmt"
)

// Phase identifies one stage of the penetration-testing pipeline.
// The set is fixed; new tooling plugs in through the adapter interface
// rather than by adding phases.
type Phase string

const (
	PhasePreEngagement Phase = "pre_engagement"
	PhaseRecon         Phase = "recon"
	PhaseThreatModel   Phase = "threat_model"
	PhaseVulnScan      Phase = "vuln_scan"
	PhaseExploit       Phase = "exploit"
	PhasePostExploit   Phase = "post_exploit"
	PhaseReport        Phase = "report"
)

// AllPhases lists every phase in canonical pipeline order.
var AllPhases = []Phase{
	PhasePreEngagement,
	PhaseRecon,
	PhaseThreatModel,
	PhaseVulnScan,
	PhaseExploit,
	PhasePostExploit,
	PhaseReport,
}

// String returns the string representation of the Phase.
func (p Phase) String() string {
	return string(p)
}

// IsValid checks if the Phase is a valid value.
func (p Phase) IsValid() bool {
	switch p {
	case PhasePreEngagement, PhaseRecon, PhaseThreatModel, PhaseVulnScan,
		PhaseExploit, PhasePostExploit, PhaseReport:
		return true
	default:
		return false
	}
}

// Index returns the position of the phase in the canonical pipeline order,
// or -1 for an unknown phase. Used for deterministic ordering of phase runs.
func (p Phase) Index() int {
	for i, candidate := range AllPhases {
		if p == candidate {
			return i
		}
	}
	return -1
}

// ParsePhase converts a string (e.g. a CLI --phase value) into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown phase: %q", s)
	}
	return p, nil
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	phase := Phase(str)
	if !phase.IsValid() {
		return fmt.Errorf("invalid phase: %s", str)
	}

	*p = phase
	return nil
}
