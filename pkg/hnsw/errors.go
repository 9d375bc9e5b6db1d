package hnsw

import "errors"

// Caller contract violations (spec.md §4.4 "Failure semantics"): surfaced
// synchronously, leave the index unchanged, never retried by the core.
var (
	ErrDimensionMismatch = errors.New("hnsw: vector dimension mismatch")
	ErrDuplicateID       = errors.New("hnsw: vector id already present")
	ErrZeroVectorCosine  = errors.New("hnsw: zero vector is invalid under the cosine metric")
	ErrUnknownID         = errors.New("hnsw: vector id not found")
	ErrZeroK             = errors.New("hnsw: k must be greater than zero")
	ErrAlreadyDeleted    = errors.New("hnsw: vector id already deleted")
	ErrReinsertDeletedID = errors.New("hnsw: cannot reinsert a previously deleted id")
	ErrEmptyVector       = errors.New("hnsw: vector must not be empty")
)
