// Package storageadapter implements the external blob-storage capability
// set of SPEC_FULL.md §4.7: a dual-path filesystem adapter that writes a
// permanent by-hash object and an overwritable by-name object for every
// stored record, with atomic write-temp-then-rename semantics protected
// by a file lock.
package storageadapter

import "context"

// Adapter is the capability set external storage must provide.
type Adapter interface {
	// Store writes both the by-hash and by-name artifacts for content
	// and returns an adapter-defined storage_id recorded on the record
	// row (SPEC_FULL.md §4.7).
	Store(ctx context.Context, podName, streamPath, recordName, contentHash string, content []byte, ext string) (storageID string, err error)

	// URL returns a client-fetchable URL for storageID.
	URL(ctx context.Context, storageID string) (string, error)

	// Delete always removes the by-name object; the by-hash object is
	// only removed when purge is true (SPEC_FULL.md §4.5's purge
	// semantics require other records sharing the hash to survive).
	Delete(ctx context.Context, podName, streamPath, recordName, contentHash, ext string, purge bool) error

	Exists(ctx context.Context, path string) (bool, error)
}
