package storage

import "irrl/pkg/platform/sentinel"

// Re-exported sentinels keep store call sites uniform across the in-memory
// and postgres implementations.
var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
)
