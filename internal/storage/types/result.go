package types

import "time"

// Metadata describes how a result was produced. Fields are zero-valued
// when they do not apply to the operation kind.
type Metadata struct {
	// Tier names the tier that served a read or received a write.
	// Empty when no tier was involved (e.g. optimistic reads).
	Tier string

	// Cached is true when the value was served from the cache layer.
	Cached bool

	// Optimistic is true when the value came from a still-in-flight write.
	Optimistic bool

	// Compressed is true when the stored value passed through the codec.
	Compressed bool

	// Offline is true when the remote tier reported network unavailability.
	Offline bool

	// OperationID identifies the queued operation that produced this
	// result, when one exists.
	OperationID string

	// RetrievalTime is the end-to-end duration of a read.
	RetrievalTime time.Duration

	// Delete fan-out accounting.
	DeletedFromTiers    []string
	TotalTiers          int
	SuccessfulDeletions int
}

// Result is the single return shape for every storage operation.
// OK=false always carries a non-nil Err.
type Result struct {
	OK   bool
	Data any
	Err  error
	Meta Metadata
}

// Success returns a successful result carrying data.
func Success(data any) Result {
	return Result{OK: true, Data: data}
}

// SuccessMeta returns a successful result with metadata attached.
func SuccessMeta(data any, meta Metadata) Result {
	return Result{OK: true, Data: data, Meta: meta}
}

// Failure returns a failed result carrying the error.
func Failure(err error) Result {
	return Result{OK: false, Err: err}
}

// FailureMeta returns a failed result with metadata attached.
func FailureMeta(err error, meta Metadata) Result {
	return Result{OK: false, Err: err, Meta: meta}
}

// Error returns the error message, or the empty string on success.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
