package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Target identifies the subject of a finding or an adapter invocation:
// a host, an optional port, and an optional service or URL.
type Target struct {
	// Host is the IP address or hostname of the target system.
	Host string `json:"host"`

	// Port is the TCP/UDP port, or 0 when the target is host-wide.
	Port int `json:"port,omitempty"`

	// Service is the detected or expected service name (e.g. "smb", "http").
	Service string `json:"service,omitempty"`

	// URL is set for web targets where a full URL is more precise than host:port.
	URL string `json:"url,omitempty"`
}

// ParseTarget parses "host", "host:port" or "host:port/service" notation.
func ParseTarget(s string) (Target, error) {
	if s == "" {
		return Target{}, fmt.Errorf("target cannot be empty")
	}

	var service string
	if idx := strings.Index(s, "/"); idx >= 0 {
		service = s[idx+1:]
		s = s[:idx]
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port component; treat the whole string as a host.
		return Target{Host: s, Service: service}, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Target{}, fmt.Errorf("invalid port in target %q", s)
	}

	return Target{Host: host, Port: port, Service: service}, nil
}

// String renders the target in host:port/service notation.
func (t Target) String() string {
	var sb strings.Builder
	sb.WriteString(t.Host)
	if t.Port > 0 {
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(t.Port))
	}
	if t.Service != "" {
		sb.WriteString("/")
		sb.WriteString(t.Service)
	}
	return sb.String()
}

// Key returns the canonical identity used for deduplication and for
// per-target insertion ordering in the finding store. The service label is
// excluded: the same host:port observed by two tools is one target.
func (t Target) Key() string {
	if t.URL != "" {
		return t.URL
	}
	if t.Port > 0 {
		return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	}
	return t.Host
}

// IsZero reports whether the target is empty.
func (t Target) IsZero() bool {
	return t.Host == "" && t.URL == ""
}

// Validate checks that the target names at least a host or a URL.
func (t Target) Validate() error {
	if t.IsZero() {
		return fmt.Errorf("target requires a host or URL")
	}
	if t.Port < 0 || t.Port > 65535 {
		return fmt.Errorf("target port out of range: %d", t.Port)
	}
	return nil
}
