// Package filestore defines where the browser's JSON documents live.
//
// The persistence layer reads and writes whole named documents
// (connections.json, query-history.json, table-cache.json) through Store.
// Two backends exist: Local, a directory on disk (the default), and the
// minio subpackage, a bucket on any S3-compatible server.
//
// Usage:
//
//	store := filestore.NewLocal(filepath.Join(home, ".dbbrowse"))
//	data, err := store.Read(ctx, "connections.json")
//	if errs.IsNotFound(err) { ... first run ... }
package filestore

import "context"

// Store is the interface every document backend implements.
type Store interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Read returns the full contents of the named document.
	// A missing document fails with an errs.ErrKindNotFound error.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write replaces the named document. Readers never observe a
	// partially written document.
	Write(ctx context.Context, name string, data []byte) error

	// Delete removes the named document. Deleting a missing one is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases any held resources.
	Close() error
}
