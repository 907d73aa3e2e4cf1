package store

import (
	"context"
	"errors"

	"coinlog/internal/core"
)

// Store is the persistence port for a session's collection. A missing
// backing file is never an error: Load returns an empty collection instead.
type Store interface {
	// Load fetches the full collection from the backing store.
	Load(ctx context.Context) (core.Collection, error)

	// Save replaces the backing store's content with the collection.
	Save(ctx context.Context, c core.Collection) error
}

// Error taxonomy for load/save failures. All are recoverable at the call
// site; the session degrades or falls back instead of aborting.
var (
	// ErrUnreachable covers transport failures, timeouts, and unexpected
	// remote status codes.
	ErrUnreachable = errors.New("store unreachable")

	// ErrMalformed marks a payload that does not parse as the collection's
	// JSON shape.
	ErrMalformed = errors.New("malformed collection data")

	// ErrWriteDenied marks a write the remote store rejected, typically a
	// stale revision on a concurrently updated file.
	ErrWriteDenied = errors.New("write denied by store")
)

// SourceKind identifies which backing store is authoritative.
type SourceKind string

const (
	Remote     SourceKind = "remote"
	LocalFile  SourceKind = "local_file"
	MemoryOnly SourceKind = "memory_only"
)

// String implements fmt.Stringer
func (k SourceKind) String() string {
	return string(k)
}
