// Package engagement models the pre-engagement record: who authorized the
// test, against what, and when. The PRE_ENGAGEMENT phase validates this
// record and compiles its target lists into the session scope policy; no
// exploit-capable phase runs without it.
package engagement

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pattonant/autopen2.0/internal/scope"
	"github.com/pattonant/autopen2.0/internal/types"
)

// Contact is a person attached to the engagement.
type Contact struct {
	Name  string `yaml:"name" json:"name"`
	Role  string `yaml:"role,omitempty" json:"role,omitempty"`
	Email string `yaml:"email,omitempty" json:"email,omitempty"`
	Phone string `yaml:"phone,omitempty" json:"phone,omitempty"`
}

// Window bounds when testing is permitted.
type Window struct {
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
}

// Contains reports whether t falls inside the window. A zero window permits
// any time.
func (w Window) Contains(t time.Time) bool {
	if w.Start.IsZero() && w.End.IsZero() {
		return true
	}
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Engagement is the signed-off test agreement loaded from YAML.
type Engagement struct {
	Project  string    `yaml:"project" json:"project"`
	Client   string    `yaml:"client" json:"client"`
	Contacts []Contact `yaml:"contacts,omitempty" json:"contacts,omitempty"`

	// AuthorizationDoc references the signed authorization document
	// (file path or ticket reference). Testing without it is refused.
	AuthorizationDoc string `yaml:"authorization_doc" json:"authorization_doc"`

	Window Window `yaml:"window,omitempty" json:"window,omitempty"`

	// Included and Excluded are scope patterns in the same forms the scope
	// package accepts (CIDR, host, host:port, suffix glob). Excluded
	// patterns compile ahead of included ones so an exclusion always wins.
	Included []string `yaml:"included" json:"included"`
	Excluded []string `yaml:"excluded,omitempty" json:"excluded,omitempty"`
}

// Load reads an engagement record from a YAML file.
func Load(path string) (*Engagement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read engagement file", err)
	}

	var e Engagement
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to parse engagement file", err)
	}
	return &e, nil
}

// Validate checks that the engagement is complete and authorized. Missing
// authorization is its own error code so callers can surface it distinctly;
// everything else missing reports as incomplete with every gap listed.
func (e *Engagement) Validate(now time.Time) error {
	if strings.TrimSpace(e.AuthorizationDoc) == "" {
		return types.NewError(types.ENGAGEMENT_UNAUTHORIZED,
			"engagement has no signed authorization document; refusing to test")
	}

	var missing []string
	if strings.TrimSpace(e.Project) == "" {
		missing = append(missing, "project")
	}
	if strings.TrimSpace(e.Client) == "" {
		missing = append(missing, "client")
	}
	if len(e.Included) == 0 {
		missing = append(missing, "included scope")
	}
	if len(missing) > 0 {
		return types.NewError(types.ENGAGEMENT_INCOMPLETE,
			"engagement record missing: "+strings.Join(missing, ", "))
	}

	if !e.Window.Contains(now) {
		return types.NewError(types.ENGAGEMENT_UNAUTHORIZED,
			fmt.Sprintf("current time outside authorized test window %s - %s",
				e.Window.Start.Format(time.RFC3339), e.Window.End.Format(time.RFC3339)))
	}

	return nil
}

// CompileScope turns the engagement's target lists into an ordered scope
// policy: exclusions first, then inclusions, then the policy's implicit
// default deny.
func (e *Engagement) CompileScope() (*scope.Policy, error) {
	var rules []scope.Rule
	for _, pattern := range e.Excluded {
		rules = append(rules, scope.Rule{
			Pattern: pattern,
			Action:  scope.ActionDeny,
			Reason:  "excluded by engagement agreement",
		})
	}
	for _, pattern := range e.Included {
		rules = append(rules, scope.Rule{
			Pattern: pattern,
			Action:  scope.ActionAllow,
			Reason:  "authorized by engagement agreement",
		})
	}
	return scope.NewPolicy(rules)
}

// Targets parses the included scope patterns that name concrete hosts into
// the initial workload. CIDR and glob patterns authorize but do not
// enumerate, so they contribute no initial targets.
func (e *Engagement) Targets() []types.Target {
	var out []types.Target
	for _, pattern := range e.Included {
		if pattern == "*" || strings.Contains(pattern, "/") || strings.Contains(pattern, "*") {
			continue
		}
		t, err := types.ParseTarget(pattern)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}
