package types

import (
	"encoding/json"
	"fmt"
)

// PhaseStatus represents the execution state of a single phase run.
type PhaseStatus string

const (
	PhaseStatusPending   PhaseStatus = "pending"
	PhaseStatusRunning   PhaseStatus = "running"
	PhaseStatusSucceeded PhaseStatus = "succeeded"
	PhaseStatusPartial   PhaseStatus = "partial"
	PhaseStatusFailed    PhaseStatus = "failed"
	PhaseStatusSkipped   PhaseStatus = "skipped"
)

// String returns the string representation of PhaseStatus.
func (s PhaseStatus) String() string {
	return string(s)
}

// IsValid checks if the PhaseStatus is a valid value.
func (s PhaseStatus) IsValid() bool {
	switch s {
	case PhaseStatusPending, PhaseStatusRunning, PhaseStatusSucceeded,
		PhaseStatusPartial, PhaseStatusFailed, PhaseStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status represents a terminal state.
// Terminal states cannot transition to any other state, which keeps
// phase-run status transitions monotonic.
func (s PhaseStatus) IsTerminal() bool {
	switch s {
	case PhaseStatusSucceeded, PhaseStatusPartial, PhaseStatusFailed, PhaseStatusSkipped:
		return true
	default:
		return false
	}
}

// Usable returns true if a phase run in this status produced results that
// downstream phases may build on (succeeded, or partial with usable findings).
func (s PhaseStatus) Usable() bool {
	return s == PhaseStatusSucceeded || s == PhaseStatusPartial
}

// CanTransitionTo validates whether a state transition is allowed.
// The lifecycle is strictly forward: pending -> running -> terminal,
// or pending -> skipped when the authorization gate empties a workload.
func (s PhaseStatus) CanTransitionTo(target PhaseStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case PhaseStatusPending:
		return target == PhaseStatusRunning || target == PhaseStatusSkipped
	case PhaseStatusRunning:
		return target == PhaseStatusSucceeded ||
			target == PhaseStatusPartial ||
			target == PhaseStatusFailed ||
			target == PhaseStatusSkipped
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (s PhaseStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *PhaseStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := PhaseStatus(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid phase status: %s", str)
	}

	*s = status
	return nil
}

// StepStatus represents the execution state of an exploit plan step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// IsValid checks if the StepStatus is a valid value.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusSucceeded,
		StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the step reached a final outcome.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSucceeded, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status := StepStatus(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid step status: %s", str)
	}

	*s = status
	return nil
}

// Severity represents the raw severity reported by a tool adapter before
// the scoring engine normalizes it.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// String returns the string representation of Severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the Severity is a valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Weight returns the base contribution of this severity to the rule score,
// on the scoring engine's 0-100 scale.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 95
	case SeverityHigh:
		return 80
	case SeverityMedium:
		return 55
	case SeverityLow:
		return 30
	case SeverityInfo:
		return 10
	default:
		return 0
	}
}

// MarshalJSON implements json.Marshaler.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	sev := Severity(str)
	if !sev.IsValid() {
		return fmt.Errorf("invalid severity: %s", str)
	}

	*s = sev
	return nil
}
