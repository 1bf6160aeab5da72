package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the storage, ingestion and recall layers.
var (
	// ErrNotFound indicates a point lookup matched nothing.
	ErrNotFound = errors.New("memory not found")

	// ErrStoreBusy indicates the underlying store is locked by another
	// process. Transient: latency-sensitive callers skip, never retry
	// synchronously.
	ErrStoreBusy = errors.New("store busy")

	// ErrPoolTimeout indicates no connection became available within the
	// acquisition timeout.
	ErrPoolTimeout = errors.New("connection pool timeout")

	// ErrQueueFull is the ingestion backpressure signal. Not a fault:
	// the caller decides whether to drop the item or degrade.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrDuplicateHash indicates an insert lost a race on the
	// content_hash uniqueness constraint.
	ErrDuplicateHash = errors.New("duplicate content hash")

	// ErrPruneAborted indicates the pre-prune backup failed and no
	// mutation occurred. Always safe to retry.
	ErrPruneAborted = errors.New("prune aborted: backup failed")
)

// ValidationError rejects oversized or malformed content before ingestion.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid content: %s", e.Reason)
}

// SimilarityError wraps a failure inside similarity computation. Non-fatal:
// ingestion fails open to Inserted when one occurs.
type SimilarityError struct {
	Stage string
	Err   error
}

func (e *SimilarityError) Error() string {
	return fmt.Sprintf("similarity %s: %v", e.Stage, e.Err)
}

func (e *SimilarityError) Unwrap() error { return e.Err }
