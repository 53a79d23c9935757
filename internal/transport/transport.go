// Package transport abstracts the I/O backend the daemon scans and
// converts through. Two implementations exist: the local filesystem and a
// remote host over SFTP. Everything above discovery depends only on the
// Transport interface, selected once at construction.
package transport

import (
	"context"
	"time"
)

// Transport is the capability set shared by the local and SFTP backends.
//
// Every operation returns a typed error: *ConnectionError when the
// underlying connection is at fault (a reconnect may help) or
// *OperationError for a failed operation on a live backend (the caller
// decides whether to retry; the transport does not).
type Transport interface {
	// Connect establishes the backend connection. No-op for local.
	Connect(ctx context.Context) error
	// Close tears the connection down.
	Close() error
	// EnsureConnected probes liveness and transparently reconnects once on
	// failure. No-op for local.
	EnsureConnected(ctx context.Context) error

	// List walks the given roots and returns candidate files matching the
	// extension allowlist, excluding hidden entries and paths matched by
	// the exclude glob patterns.
	List(ctx context.Context, roots, extensions, excludePatterns []string) ([]string, error)
	// Stat returns the size and modification time of path.
	Stat(ctx context.Context, path string) (int64, time.Time, error)
	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) bool

	// Fetch copies a backend file to a local destination.
	Fetch(ctx context.Context, path, localDest string) error
	// Publish copies a local file to a backend path atomically: the data
	// lands under a sibling temporary name first and is renamed into place.
	Publish(ctx context.Context, localSrc, path string) error
	// Delete removes a backend file.
	Delete(ctx context.Context, path string) error
	// SetTimes sets access and modification times on a backend file.
	SetTimes(ctx context.Context, path string, atime, mtime time.Time) error

	// Name identifies the backend in logs ("local" or "sftp").
	Name() string
}
