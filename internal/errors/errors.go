// Package errors consolidates error definitions for the strata storage
// engine.
//
// It provides:
// - Sentinel errors for every failure category
// - Category checking functions
// - Numeric codes for structured logging and health reporting
package errors

import (
	"errors"
	"fmt"
)

// Error codes used in structured logs and health reports.
const (
	CodeUnknown             int32 = 1
	CodeNotFound            int32 = 2
	CodeTierUnavailable     int32 = 3
	CodeQueueFull           int32 = 4
	CodeOperationExhausted  int32 = 5
	CodeCompressionFailure  int32 = 6
	CodeOffline             int32 = 7
	CodeTimeout             int32 = 8
	CodeInvalidRequest      int32 = 9
	CodeEngineStopped       int32 = 10
	CodeAlreadyHighestTier  int32 = 11
	CodeAlreadyLowestTier   int32 = 12
	CodeScopeRequired       int32 = 13
)

// CodeName returns a human-readable name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "Unknown"
	case CodeNotFound:
		return "NotFound"
	case CodeTierUnavailable:
		return "TierUnavailable"
	case CodeQueueFull:
		return "QueueFull"
	case CodeOperationExhausted:
		return "OperationExhausted"
	case CodeCompressionFailure:
		return "CompressionFailure"
	case CodeOffline:
		return "Offline"
	case CodeTimeout:
		return "Timeout"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeEngineStopped:
		return "EngineStopped"
	case CodeAlreadyHighestTier:
		return "AlreadyHighestTier"
	case CodeAlreadyLowestTier:
		return "AlreadyLowestTier"
	case CodeScopeRequired:
		return "ScopeRequired"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// Sentinel errors.
var (
	// ErrNotFound means the key is absent in every tier. This is a
	// normal outcome, not a fault.
	ErrNotFound = errors.New("key not found")

	// ErrTierUnavailable means a specific backend failed. Reads treat it
	// as a miss; writes treat it as a partial failure.
	ErrTierUnavailable = errors.New("tier unavailable")

	// ErrQueueFull is the only synchronous rejection: the operation
	// queue is at capacity and the call is refused without retry.
	ErrQueueFull = errors.New("operation queue full")

	// ErrOperationExhausted means a queued operation failed more times
	// than its retry budget allows. The optimistic state is rolled back.
	ErrOperationExhausted = errors.New("operation retries exhausted")

	// ErrCompressionFailure means the codec failed; nothing was persisted.
	ErrCompressionFailure = errors.New("compression failure")

	// ErrOffline means the remote tier has no network connectivity.
	ErrOffline = errors.New("remote tier offline")

	// ErrTimeout means a single tier call exceeded its deadline.
	ErrTimeout = errors.New("tier call timed out")

	// ErrInvalidRequest means the caller passed unusable arguments.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEngineStopped means the engine is not accepting operations.
	ErrEngineStopped = errors.New("engine not running")

	// ErrAlreadyHighestTier means promotion has no faster tier to target.
	ErrAlreadyHighestTier = errors.New("already at highest tier")

	// ErrAlreadyLowestTier means demotion has no slower tier to target.
	ErrAlreadyLowestTier = errors.New("already at lowest tier")

	// ErrScopeRequired means the remote tier was used before SetScope.
	ErrScopeRequired = errors.New("remote scope not set")
)

// IsNotFound returns true if the error indicates an absent key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsQueueFull returns true if the error is the backpressure rejection.
func IsQueueFull(err error) bool {
	return errors.Is(err, ErrQueueFull)
}

// IsOffline returns true if the error indicates remote unavailability.
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// IsRetryable returns true if a queued operation hitting this error
// should be retried. NotFound and compression failures are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCompressionFailure) || errors.Is(err, ErrInvalidRequest) {
		return false
	}
	return true
}

// ErrorToCode maps an error to its numeric code.
func ErrorToCode(err error) int32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTierUnavailable):
		return CodeTierUnavailable
	case errors.Is(err, ErrQueueFull):
		return CodeQueueFull
	case errors.Is(err, ErrOperationExhausted):
		return CodeOperationExhausted
	case errors.Is(err, ErrCompressionFailure):
		return CodeCompressionFailure
	case errors.Is(err, ErrOffline):
		return CodeOffline
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrEngineStopped):
		return CodeEngineStopped
	case errors.Is(err, ErrAlreadyHighestTier):
		return CodeAlreadyHighestTier
	case errors.Is(err, ErrAlreadyLowestTier):
		return CodeAlreadyLowestTier
	case errors.Is(err, ErrScopeRequired):
		return CodeScopeRequired
	default:
		return CodeUnknown
	}
}

// Wrap annotates an error with context while preserving its category.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", msg, err)
}
