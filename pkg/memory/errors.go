package memory

import "errors"

var (
	// ErrDimensionMismatch indicates an embedding whose length does not
	// match the store's configured dimension. Never coerced by
	// truncation or padding.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrValidation indicates malformed input, such as an out-of-range
	// edge weight or a non-positive decay factor.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is a normal expected outcome for lookups of absent
	// ids, not a fatal condition.
	ErrNotFound = errors.New("not found")

	// ErrNoPath indicates the two nodes live in disconnected components.
	ErrNoPath = errors.New("no path between nodes")

	// ErrDuplicateID indicates a caller-supplied id that already exists
	// in an append-only store.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrStorageBackend wraps I/O failures of a file- or database-backed
	// store. Consolidator-originated writes retry these with bounded
	// backoff; direct caller writes surface them immediately.
	ErrStorageBackend = errors.New("storage backend failure")
)
