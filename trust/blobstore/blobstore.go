// Package blobstore abstracts the external image storage the engine reads
// from when computing exact-content hashes.
package blobstore

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned when the storage reference does not resolve.
// Callers treat it as a per-image skip, not a hard failure.
var ErrBlobNotFound = errors.New("blob not found")

type BlobStore interface {
	Fetch(ctx context.Context, storageID string) ([]byte, error)
}
