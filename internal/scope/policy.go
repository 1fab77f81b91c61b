// Package scope implements the authorization policy that gates every
// exploit-capable action. A policy is an ordered list of rules evaluated
// first-match-wins with an implicit default deny: a target no rule allows
// is out of scope.
package scope

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pattonant/autopen2.0/internal/types"
)

// Action is the effect of a matching rule.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// IsValid checks if the Action is a valid value.
func (a Action) IsValid() bool {
	return a == ActionAllow || a == ActionDeny
}

// Rule is a single authorization constraint. Pattern forms:
//
//	"10.0.0.0/24"        CIDR over target host
//	"10.0.0.5"           exact host
//	"10.0.0.5:445"       exact host and port
//	"*.corp.example"     hostname suffix glob
//	"*"                  any target
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Action  Action `yaml:"action" json:"action"`
	Reason  string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Validate checks the rule's pattern and action.
func (r Rule) Validate() error {
	if r.Pattern == "" {
		return fmt.Errorf("scope rule pattern cannot be empty")
	}
	if !r.Action.IsValid() {
		return fmt.Errorf("scope rule action must be allow or deny, got %q", r.Action)
	}
	return nil
}

// matches reports whether the rule's pattern covers the target.
func (r Rule) matches(t types.Target) bool {
	pattern := r.Pattern

	if pattern == "*" {
		return true
	}

	// host:port pattern requires both to match
	if host, portStr, ok := splitHostPortPattern(pattern); ok {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return false
		}
		return hostMatches(host, t.Host) && t.Port == port
	}

	// CIDR pattern
	if prefix, err := netip.ParsePrefix(pattern); err == nil {
		addr, err := netip.ParseAddr(t.Host)
		if err != nil {
			return false
		}
		return prefix.Contains(addr)
	}

	return hostMatches(pattern, t.Host)
}

// splitHostPortPattern splits "host:port" patterns, rejecting CIDR slashes
// and bare hosts.
func splitHostPortPattern(pattern string) (host, port string, ok bool) {
	if strings.Contains(pattern, "/") {
		return "", "", false
	}
	idx := strings.LastIndex(pattern, ":")
	if idx <= 0 || idx == len(pattern)-1 {
		return "", "", false
	}
	return pattern[:idx], pattern[idx+1:], true
}

// hostMatches compares a host pattern against a concrete host.
// A leading "*." matches any subdomain suffix.
func hostMatches(pattern, host string) bool {
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // keep the dot
		return strings.HasSuffix(host, suffix)
	}
	return pattern == host
}

// Decision is the result of evaluating a policy against a target.
type Decision struct {
	Allowed bool
	// Rule is the matching rule, or nil when the default deny applied.
	Rule   *Rule
	Reason string
}

// Policy is an ordered scope rule list. The zero value denies everything.
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from an ordered rule list, validating each rule.
func NewPolicy(rules []Rule) (*Policy, error) {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED,
				fmt.Sprintf("scope rule %d invalid", i), err)
		}
	}
	return &Policy{rules: rules}, nil
}

// LoadPolicy reads an ordered rule list from a YAML file.
//
// File format:
//
//	rules:
//	  - pattern: "10.0.0.0/24"
//	    action: allow
//	    reason: "engagement scope"
//	  - pattern: "10.0.0.1"
//	    action: deny
//	    reason: "production gateway"
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read scope file", err)
	}

	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to parse scope file", err)
	}

	return NewPolicy(doc.Rules)
}

// Evaluate resolves the first matching rule for the target.
// No match means denied (default deny).
func (p *Policy) Evaluate(t types.Target) Decision {
	if p == nil {
		return Decision{Allowed: false, Reason: "no scope policy configured (default deny)"}
	}

	for i := range p.rules {
		rule := &p.rules[i]
		if rule.matches(t) {
			reason := rule.Reason
			if reason == "" {
				reason = fmt.Sprintf("matched rule %q", rule.Pattern)
			}
			return Decision{
				Allowed: rule.Action == ActionAllow,
				Rule:    rule,
				Reason:  reason,
			}
		}
	}

	return Decision{Allowed: false, Reason: "no matching allow rule (default deny)"}
}

// Allows reports whether the target matches an allow rule before any deny.
func (p *Policy) Allows(t types.Target) bool {
	return p.Evaluate(t).Allowed
}

// Filter partitions targets into in-scope and out-of-scope sets, preserving
// input order. The orchestrator uses this for the authorization gate before
// exploit-capable phases.
func (p *Policy) Filter(targets []types.Target) (allowed, denied []types.Target) {
	for _, t := range targets {
		if p.Allows(t) {
			allowed = append(allowed, t)
		} else {
			denied = append(denied, t)
		}
	}
	return allowed, denied
}

// Rules returns a copy of the ordered rule list.
func (p *Policy) Rules() []Rule {
	if p == nil {
		return nil
	}
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}
