// Package vecdb is the public facade over pkg/collection — a thin
// re-export, the way the teacher's pkg/sqvect package wraps pkg/core's
// SQLiteStore behind a smaller surface (Config/Open/DB). Most of the
// behavior described in spec.md lives in pkg/collection and its
// dependencies; this package exists so a consumer's import graph only
// needs one path.
package vecdb

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"

	"github.com/liliang-cn/vecdb/pkg/collection"
	"github.com/liliang-cn/vecdb/pkg/distance"
	"github.com/liliang-cn/vecdb/pkg/payload"
)

// Re-exported types so callers never need to import pkg/collection,
// pkg/distance, or pkg/payload directly for everyday use.
type (
	Config       = collection.Config
	IndexKind    = collection.IndexKind
	SearchResult = collection.SearchResult
	Metric       = distance.Metric
	Payload      = payload.Payload
	Value        = payload.Value
	Filter       = payload.Filter
	Condition    = payload.Condition
	Op           = payload.Op
	Error        = collection.CollectionError
	Kind         = collection.Kind
)

// Error kinds (spec.md §7), attached to every *Error returned by this
// package so adapters can branch on kind instead of string matching.
const (
	KindUnknown           = collection.KindUnknown
	KindCallerError       = collection.KindCallerError
	KindResourceExhausted = collection.KindResourceExhausted
	KindIOError           = collection.KindIOError
	KindIntegrity         = collection.KindIntegrity
	KindConcurrency       = collection.KindConcurrency
)

const (
	Euclidean  = distance.Euclidean
	Cosine     = distance.Cosine
	DotProduct = distance.DotProduct
	Hamming    = distance.Hamming
)

const (
	IndexHNSW       = collection.IndexHNSW
	IndexBruteForce = collection.IndexBruteForce
)

const (
	OpEq          = payload.OpEq
	OpNe          = payload.OpNe
	OpGt          = payload.OpGt
	OpGte         = payload.OpGte
	OpLt          = payload.OpLt
	OpLte         = payload.OpLte
	OpContainedIn = payload.OpContainedIn
	OpContains    = payload.OpContains
	OpExists      = payload.OpExists
)

// DB is a durable vector collection (spec.md §6 "Library contract exposed
// to adapters").
type DB struct {
	*collection.Collection
}

// Open opens or creates the collection rooted at dir (spec.md §6
// "open_or_create").
func Open(dir string, cfg Config) (*DB, error) {
	c, err := collection.Open(dir, cfg)
	if err != nil {
		return nil, err
	}
	return &DB{Collection: c}, nil
}

// NewCondition builds a validated filter leaf (spec.md §4.2).
func NewCondition(field string, op Op, operand Value) (*Condition, error) {
	return payload.NewCondition(field, op, operand)
}

// NewPayload builds a Payload from plain Go values.
func NewPayload(fields map[string]interface{}) Payload {
	return payload.New(fields)
}

// String builds a string-valued filter operand.
func String(s string) Value { return payload.String(s) }

// Int builds an integer-valued filter operand.
func Int(i int64) Value { return payload.Int(i) }

// Float builds a double-valued filter operand.
func Float(f float64) Value { return payload.Float(f) }

// NewID generates a random id for callers who have no natural key of
// their own, the way the teacher's pkg/sqvect.generateID does for its
// string-keyed embeddings — adapted to this package's uint64 id space by
// taking the leading 8 bytes of a random UUID.
func NewID() uint64 {
	id := uuid.New()
	return binary.LittleEndian.Uint64(id[:8])
}

// ErrorKind extracts the error taxonomy kind from any error returned by
// this package, defaulting to KindUnknown for errors that didn't pass
// through the collection's wrapping (e.g. a bare context error).
func ErrorKind(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind()
	}
	return KindUnknown
}
