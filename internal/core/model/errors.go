package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCandidate marks malformed input: unrecognized type or empty
	// text. Such candidates are dropped and logged, never retried or coerced.
	ErrInvalidCandidate = errors.New("invalid candidate")

	// ErrNotFound is the generic sentinel for missing records.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict signals an optimistic concurrency failure: the node
	// version changed between read and commit. The caller re-runs
	// resolution+decision+upsert, bounded.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyResolved rejects a second answer for a resolved review record.
	ErrAlreadyResolved = errors.New("already resolved")
)

// EmbeddingServiceError wraps a transient embedding failure. After retries
// are exhausted the resolver degrades to alias-only matching for the
// candidate instead of failing the cycle.
type EmbeddingServiceError struct {
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// StoreTransientError wraps a retryable store failure (write conflict,
// timeout). On retry exhaustion the candidate is escalated as a CONFLICT, not
// dropped.
type StoreTransientError struct {
	Op  string
	Err error
}

func (e *StoreTransientError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreTransientError) Unwrap() error { return e.Err }

// MissingEvidenceError is a fatal invariant violation: a transaction tried to
// commit an assertion with zero evidence references. The transaction is
// aborted; this is a bug, not a runtime condition to recover from.
type MissingEvidenceError struct {
	AssertionID string
}

func (e *MissingEvidenceError) Error() string {
	return fmt.Sprintf("assertion %s has no evidence reference", e.AssertionID)
}
