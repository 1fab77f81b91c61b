package finding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pattonant/autopen2.0/internal/types"
)

// Status represents the lifecycle status of a finding. Status is the only
// mutable scalar on a finding after creation.
type Status string

const (
	StatusOpen           Status = "open"
	StatusConfirmed      Status = "confirmed"
	StatusExploited      Status = "exploited"
	StatusNotExploitable Status = "not_exploitable"
	StatusFalsePositive  Status = "false_positive"
)

// String returns the string representation of Status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusConfirmed, StatusExploited, StatusNotExploitable, StatusFalsePositive:
		return true
	default:
		return false
	}
}

// Category represents the type of security finding.
type Category string

const (
	CategoryOpenPort         Category = "open_port"
	CategoryServiceVersion   Category = "service_version"
	CategoryWebVulnerability Category = "web_vulnerability"
	CategoryCVE              Category = "cve"
	CategoryMisconfiguration Category = "misconfiguration"
	CategoryCredential       Category = "credential"
	CategoryThreat           Category = "threat"
	CategoryPostExploit      Category = "post_exploit"
	CategoryUncategorized    Category = "uncategorized"
)

// String returns the string representation of Category.
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is a valid value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryOpenPort, CategoryServiceVersion, CategoryWebVulnerability,
		CategoryCVE, CategoryMisconfiguration, CategoryCredential,
		CategoryThreat, CategoryPostExploit, CategoryUncategorized:
		return true
	default:
		return false
	}
}

// AnnotationSource identifies which part of the scoring engine produced an
// annotation.
type AnnotationSource string

const (
	SourceRule   AnnotationSource = "rule"
	SourceOracle AnnotationSource = "oracle"
)

// Annotation is a scored assessment attached to a finding. Annotations are
// append-only; the full list is retained for audit and the latest one per
// source wins for plan computation.
type Annotation struct {
	Source     AnnotationSource `json:"source"`
	Score      float64          `json:"score"` // 0-100
	Rationale  string           `json:"rationale"`
	ProducedAt time.Time        `json:"produced_at"`
}

// Validate checks the annotation's source and score range.
func (a Annotation) Validate() error {
	if a.Source != SourceRule && a.Source != SourceOracle {
		return fmt.Errorf("invalid annotation source: %q", a.Source)
	}
	if a.Score < 0 || a.Score > 100 {
		return fmt.Errorf("annotation score out of range: %.2f", a.Score)
	}
	return nil
}

// Finding is a normalized record of a discovered condition on a target.
// Findings are owned by the Store: immutable once created except Status and
// appended Annotations.
type Finding struct {
	ID           types.ID       `json:"id"`
	PhaseOrigin  types.Phase    `json:"phase_origin"`
	Target       types.Target   `json:"target"`
	Category     Category       `json:"category"`
	RawEvidence  string         `json:"raw_evidence"`
	SeverityRaw  types.Severity `json:"severity_raw"`
	Confidence   float64        `json:"confidence"` // 0.0 - 1.0
	DiscoveredAt time.Time      `json:"discovered_at"`
	Status       Status         `json:"status"`
	Annotations  []Annotation   `json:"annotations,omitempty"`

	// Requires lists capability tags that must be provided by another
	// finding's successful exploitation before this one can be attempted
	// (e.g. "credential:smb"). The planner derives dependency edges from
	// these tags; it never infers edges heuristically.
	Requires []string `json:"requires,omitempty"`

	// Provides lists capability tags that successful exploitation of this
	// finding yields for dependent findings.
	Provides []string `json:"provides,omitempty"`

	// ExploitRef names the exploit module the planner should use for this
	// finding, when the normalizing adapter knows one.
	ExploitRef string `json:"exploit_ref,omitempty"`
}

// Validate checks that the finding carries the fields the store requires.
func (f Finding) Validate() error {
	if err := f.Target.Validate(); err != nil {
		return err
	}
	if !f.Category.IsValid() {
		return fmt.Errorf("invalid finding category: %q", f.Category)
	}
	if !f.PhaseOrigin.IsValid() {
		return fmt.Errorf("invalid phase origin: %q", f.PhaseOrigin)
	}
	if f.SeverityRaw != "" && !f.SeverityRaw.IsValid() {
		return fmt.Errorf("invalid raw severity: %q", f.SeverityRaw)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence out of range: %.2f", f.Confidence)
	}
	return nil
}

// EvidenceHash returns the hex-encoded SHA-256 of the raw evidence.
func (f Finding) EvidenceHash() string {
	sum := sha256.Sum256([]byte(f.RawEvidence))
	return hex.EncodeToString(sum[:])
}

// DedupKey is the identity used by the store to collapse duplicate inserts:
// same target, same category, same evidence.
func (f Finding) DedupKey() string {
	return f.Target.Key() + "|" + string(f.Category) + "|" + f.EvidenceHash()
}

// LatestAnnotation returns the most recently appended annotation from the
// given source, or nil when none exists. Annotations preserve insertion
// order, so the last match wins.
func (f Finding) LatestAnnotation(source AnnotationSource) *Annotation {
	for i := len(f.Annotations) - 1; i >= 0; i-- {
		if f.Annotations[i].Source == source {
			ann := f.Annotations[i]
			return &ann
		}
	}
	return nil
}

// clone returns a deep copy so store reads observe a consistent snapshot.
func (f Finding) clone() Finding {
	out := f
	if f.Annotations != nil {
		out.Annotations = make([]Annotation, len(f.Annotations))
		copy(out.Annotations, f.Annotations)
	}
	if f.Requires != nil {
		out.Requires = append([]string(nil), f.Requires...)
	}
	if f.Provides != nil {
		out.Provides = append([]string(nil), f.Provides...)
	}
	return out
}
