// Package scoring computes normalized risk scores for findings. It combines
// a deterministic rule-based component with an optional external scoring
// oracle under a fixed, documented weighting. Scoring never mutates a
// finding; it only appends annotations, preserving the full audit history.
package scoring

import (
	"fmt"

	"github.com/pattonant/autopen2.0/internal/finding"
	"github.com/pattonant/autopen2.0/internal/types"
)

// defaultCriticality maps well-known service ports to a target-criticality
// bonus on the 0-100 scale. Domain infrastructure and data stores rank
// highest; the table is static so rule scores stay reproducible.
var defaultCriticality = map[int]float64{
	88:    15, // kerberos
	389:   15, // ldap
	636:   15, // ldaps
	445:   12, // smb
	3389:  10, // rdp
	1433:  12, // mssql
	3306:  12, // mysql
	5432:  12, // postgresql
	27017: 12, // mongodb
	6379:  10, // redis
	22:    8,  // ssh
	21:    6,  // ftp
	23:    8,  // telnet
	443:   5,  // https
	80:    5,  // http
	25:    5,  // smtp
}

// RuleScorer computes the deterministic component of a finding's risk score.
// For identical evidence (severity, confidence, target) the result is always
// identical; re-scoring is idempotent by construction.
type RuleScorer struct {
	criticality map[int]float64
}

// NewRuleScorer creates a rule scorer with the default criticality table.
func NewRuleScorer() *RuleScorer {
	return &RuleScorer{criticality: defaultCriticality}
}

// NewRuleScorerWithCriticality creates a rule scorer with a custom
// port-criticality table, for engagements with unusual asset weighting.
func NewRuleScorerWithCriticality(criticality map[int]float64) *RuleScorer {
	if criticality == nil {
		criticality = defaultCriticality
	}
	return &RuleScorer{criticality: criticality}
}

// Score computes the rule-based score (0-100) from raw severity, confidence
// and target criticality:
//
//	base     = severity weight (10..95)
//	scaled   = base * (0.5 + 0.5*confidence)
//	score    = min(100, scaled + criticality bonus for the target port)
func (r *RuleScorer) Score(f finding.Finding) finding.Annotation {
	severity := f.SeverityRaw
	if severity == "" {
		severity = types.SeverityInfo
	}

	base := severity.Weight()
	scaled := base * (0.5 + 0.5*f.Confidence)
	bonus := r.criticality[f.Target.Port]

	score := scaled + bonus
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	rationale := fmt.Sprintf(
		"severity=%s (base %.0f), confidence=%.2f (scaled %.1f), target criticality bonus %.0f",
		severity, base, f.Confidence, scaled, bonus)

	return finding.Annotation{
		Source:    finding.SourceRule,
		Score:     score,
		Rationale: rationale,
	}
}
