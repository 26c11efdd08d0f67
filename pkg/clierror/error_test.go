package clierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kta136/Silver-estimate-sub000/pkg/vault"
)

func TestFromVaultError_Mapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		exitCode int
	}{
		{"auth failure", vault.ErrAuthenticationFailed, CodeWrongPasswordOrCorrupt, ExitAuth},
		{"wrapped auth failure", fmt.Errorf("open: %w", vault.ErrAuthenticationFailed), CodeWrongPasswordOrCorrupt, ExitAuth},
		{"invalid format", vault.ErrInvalidFormat, CodeInvalidFormat, ExitAuth},
		{"flush failed", errors.Join(vault.ErrFlushFailed, errors.New("disk on fire")), CodeFlushFailed, ExitFlush},
		{"io failure", errors.Join(vault.ErrIoFailure, errors.New("permission denied")), CodeIOFailure, ExitIO},
		{"unknown", errors.New("something else"), CodeInternalError, ExitGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromVaultError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.exitCode, got.ExitCode)
		})
	}
}

func TestWrongPasswordOrCorrupt_StaysAmbiguous(t *testing.T) {
	e := WrongPasswordOrCorrupt()
	// The message must not claim to know which of the two happened.
	assert.Contains(t, e.Message, "incorrect password or corrupted file")
	assert.True(t, e.Retryable)
}

func TestFormatError_JSON(t *testing.T) {
	out := FormatError(FlushFailed("/tmp/estimate-x.db"), "json")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, CodeFlushFailed, decoded["code"])
	assert.Contains(t, decoded["message"], "/tmp/estimate-x.db")
	// ExitCode is process plumbing, never part of the payload.
	_, ok := decoded["exitCode"]
	assert.False(t, ok)
}

func TestFormatError_Human(t *testing.T) {
	out := FormatError(RecoveryPending("/tmp/estimate-x.db"), "table")
	assert.Contains(t, out, "Error [RECOVERY_PENDING]")
	assert.Contains(t, out, "Hint: ")

	// No hint line when there is no hint.
	out = FormatError(InternalError(nil), "table")
	assert.NotContains(t, out, "Hint:")
}

func TestCLIError_ImplementsError(t *testing.T) {
	var err error = IOFailure(errors.New("read-only filesystem"))
	assert.Contains(t, err.Error(), "read-only filesystem")
}
