package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Target
		wantErr  bool
	}{
		{
			name:     "host only",
			input:    "10.0.0.5",
			expected: Target{Host: "10.0.0.5"},
		},
		{
			name:     "host and port",
			input:    "10.0.0.5:445",
			expected: Target{Host: "10.0.0.5", Port: 445},
		},
		{
			name:     "host port and service",
			input:    "10.0.0.5:445/smb",
			expected: Target{Host: "10.0.0.5", Port: 445, Service: "smb"},
		},
		{
			name:     "hostname",
			input:    "db.corp.example:5432/postgresql",
			expected: Target{Host: "db.corp.example", Port: 5432, Service: "postgresql"},
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "bad port",
			input:   "10.0.0.5:99999",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ParseTarget(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, target)
		})
	}
}

func TestTarget_Key(t *testing.T) {
	// Key ignores the service label: one host:port observed by two tools is
	// one target.
	a := Target{Host: "10.0.0.5", Port: 445, Service: "smb"}
	b := Target{Host: "10.0.0.5", Port: 445, Service: "microsoft-ds"}
	assert.Equal(t, a.Key(), b.Key())

	// URL takes precedence for web targets.
	web := Target{Host: "10.0.0.7", Port: 443, URL: "https://app.corp.example/login"}
	assert.Equal(t, "https://app.corp.example/login", web.Key())

	hostOnly := Target{Host: "10.0.0.5"}
	assert.Equal(t, "10.0.0.5", hostOnly.Key())
}

func TestTarget_String(t *testing.T) {
	target := Target{Host: "10.0.0.5", Port: 445, Service: "smb"}
	assert.Equal(t, "10.0.0.5:445/smb", target.String())
}

func TestTarget_Validate(t *testing.T) {
	assert.Error(t, Target{}.Validate())
	assert.Error(t, Target{Host: "10.0.0.5", Port: -1}.Validate())
	assert.NoError(t, Target{Host: "10.0.0.5", Port: 445}.Validate())
}
