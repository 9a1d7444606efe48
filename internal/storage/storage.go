// Package storage defines the blob store abstraction used to archive raw
// marketplace payloads. Implementations exist for Google Cloud Storage, the
// local filesystem, and memory; the fetch pipeline stays independent of the
// concrete backend.
package storage

import (
	"context"
	"io"
)

// BlobStore writes raw artifacts and returns a URI for the stored object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NopStore discards every payload. It backs the archive "none" mode.
type NopStore struct{}

// PutObject drops the payload and returns an empty URI.
func (NopStore) PutObject(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	if r != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return "", nil
}
