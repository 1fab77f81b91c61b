package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutopenError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AutopenError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewError(SCOPE_VIOLATION, "target out of scope"),
			expected: "[SCOPE_VIOLATION] target out of scope",
		},
		{
			name:     "with cause",
			err:      WrapError(ADAPTER_EXEC_FAILED, "nmap failed", errors.New("exit status 1")),
			expected: "[ADAPTER_EXEC_FAILED] nmap failed: exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAutopenError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapRetryableError(ADAPTER_TIMEOUT, "scan timed out", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestAutopenError_Is(t *testing.T) {
	err := NewError(CYCLIC_DEPENDENCY, "cycle found")

	assert.ErrorIs(t, err, NewError(CYCLIC_DEPENDENCY, "different message"))
	assert.NotErrorIs(t, err, NewError(SCOPE_VIOLATION, "cycle found"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryableError(ADAPTER_TIMEOUT, "timed out")))
	assert.False(t, IsRetryable(NewError(ADAPTER_CRASH, "panicked")))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestIsRetryable_WrappedChain(t *testing.T) {
	inner := NewRetryableError(ADAPTER_TIMEOUT, "timed out")
	wrapped := fmt.Errorf("phase recon: %w", inner)

	assert.True(t, IsRetryable(wrapped))
}

func TestCodeOf(t *testing.T) {
	err := WrapError(ORACLE_UNAVAILABLE, "model unreachable", errors.New("dial tcp"))
	require.Equal(t, ORACLE_UNAVAILABLE, CodeOf(err))

	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}
