package types

import (
	"errors"
	"fmt"
)

// Error taxonomy. Classification and synthesis errors degrade to fallback
// results and never escalate past the caller-facing result; sandbox and
// validation errors are captured into records; storage errors are retried
// once by the store before being surfaced.
var (
	// ErrClassificationAmbiguity means no router rule matched. The router
	// degrades to the default category instead of returning this, but the
	// sentinel is kept for diagnostics.
	ErrClassificationAmbiguity = errors.New("classification ambiguity: no rule matched")

	// ErrSynthesisUnsupported means no template predicate matched the task.
	ErrSynthesisUnsupported = errors.New("synthesis unsupported: no template matched")

	// ErrPerformanceRegression means a candidate module failed to beat the
	// commit margin even though it validated cleanly.
	ErrPerformanceRegression = errors.New("performance regression: candidate did not beat commit margin")

	// ErrModuleLocked means a modification cycle is already holding the
	// module's exclusive lock.
	ErrModuleLocked = errors.New("module locked for modification")
)

// SandboxError reports a failed or timed-out sandbox execution.
type SandboxError struct {
	Kind  ResultKind // ResultTimeout or ResultExecError
	Trace string
}

func (e *SandboxError) Error() string {
	if e.Kind == ResultTimeout {
		return "sandbox timeout: " + e.Trace
	}
	return "sandbox execution error: " + e.Trace
}

// ValidationFailure reports which validation stage rejected a candidate.
type ValidationFailure struct {
	Stage string // syntax | load | selftest
	Cause error
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed at %s stage: %v", e.Stage, e.Cause)
}

func (e *ValidationFailure) Unwrap() error { return e.Cause }

// StorageError reports a persistent-store write failure that survived the
// single retry.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }
