// Package clierror provides structured errors for CLI output with codes,
// exit codes, and remediation hints.
package clierror

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kta136/Silver-estimate-sub000/pkg/vault"
)

// Exit codes for silverctl.
const (
	ExitSuccess  = 0 // Operation completed successfully
	ExitGeneral  = 1 // Unknown/unhandled error
	ExitAuth     = 2 // Wrong password or corrupted file
	ExitIO       = 3 // Disk or permission failure
	ExitFlush    = 4 // Flush failed; working copy preserved
	ExitRecovery = 5 // Unflushed working copy pending recovery
)

// Error codes (strings) for programmatic error handling.
const (
	CodeWrongPasswordOrCorrupt = "WRONG_PASSWORD_OR_CORRUPT"
	CodeInvalidFormat          = "INVALID_FORMAT"
	CodeIOFailure              = "IO_FAILURE"
	CodeFlushFailed            = "FLUSH_FAILED"
	CodeRecoveryPending        = "RECOVERY_PENDING"
	CodeInternalError          = "INTERNAL_ERROR"
)

// CLIError represents a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
	ExitCode  int    `json:"-"` // Not serialized, used for os.Exit
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// WrongPasswordOrCorrupt creates the error for a failed decrypt. The AEAD
// layer cannot tell a wrong password from a corrupted file, so neither can
// this message.
func WrongPasswordOrCorrupt() *CLIError {
	return &CLIError{
		Code:      CodeWrongPasswordOrCorrupt,
		Message:   "incorrect password or corrupted file",
		Hint:      "Check the password; if it is correct, restore the file from a backup",
		Retryable: true,
		ExitCode:  ExitAuth,
	}
}

// InvalidFormat creates an error for a truncated or malformed encrypted file.
func InvalidFormat(path string) *CLIError {
	return &CLIError{
		Code:      CodeInvalidFormat,
		Message:   fmt.Sprintf("encrypted file '%s' is malformed", path),
		Hint:      "Restore the file from a backup",
		Retryable: false,
		ExitCode:  ExitAuth,
	}
}

// IOFailure creates an error for disk or permission problems.
func IOFailure(err error) *CLIError {
	return &CLIError{
		Code:      CodeIOFailure,
		Message:   fmt.Sprintf("i/o failure: %s", err.Error()),
		Hint:      "Check disk space and file permissions",
		Retryable: true,
		ExitCode:  ExitIO,
	}
}

// FlushFailed creates the critical error for a failed final flush. The
// working copy on disk holds the only up-to-date data.
func FlushFailed(workingPath string) *CLIError {
	return &CLIError{
		Code:      CodeFlushFailed,
		Message:   fmt.Sprintf("could not encrypt your data; the working copy at '%s' has been preserved", workingPath),
		Hint:      "Do not delete the working copy. Run 'silverctl recover' once the underlying problem is fixed",
		Retryable: true,
		ExitCode:  ExitFlush,
	}
}

// RecoveryPending creates an error when an unflushed working copy from a
// prior crash must be recovered or discarded before opening.
func RecoveryPending(workingPath string) *CLIError {
	return &CLIError{
		Code:      CodeRecoveryPending,
		Message:   fmt.Sprintf("an unflushed working copy from a previous session exists at '%s'", workingPath),
		Hint:      "Run 'silverctl recover' to fold it into the encrypted file, or 'silverctl recover --discard' to drop it",
		Retryable: false,
		ExitCode:  ExitRecovery,
	}
}

// InternalError creates an error for unexpected internal errors.
func InternalError(err error) *CLIError {
	msg := "an unexpected internal error occurred"
	if err != nil {
		msg = fmt.Sprintf("internal error: %s", err.Error())
	}
	return &CLIError{
		Code:      CodeInternalError,
		Message:   msg,
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// FromVaultError maps a vault error onto the CLI taxonomy. Authentication
// failures stay deliberately ambiguous; everything unrecognized is an
// internal failure.
func FromVaultError(err error) *CLIError {
	switch {
	case errors.Is(err, vault.ErrAuthenticationFailed):
		return WrongPasswordOrCorrupt()
	case errors.Is(err, vault.ErrInvalidFormat):
		return InvalidFormat("")
	case errors.Is(err, vault.ErrFlushFailed):
		return FlushFailed("")
	case errors.Is(err, vault.ErrIoFailure):
		return IOFailure(err)
	default:
		return InternalError(err)
	}
}

// FormatError returns the error formatted for the given output format.
// Supported formats: "json" for JSON output, anything else for a
// human-readable format.
func FormatError(err *CLIError, outputFormat string) string {
	if outputFormat == "json" {
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			return fmt.Sprintf(`{"code":"%s","message":"%s"}`, err.Code, err.Message)
		}
		return string(data)
	}

	output := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		output += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return output
}
