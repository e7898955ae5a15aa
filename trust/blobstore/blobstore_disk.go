package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskBlobStore reads blobs from a flat directory, keyed by storage ID.
// Suitable for single-host deployments and local development; production
// deployments front an object store behind the same interface.
type DiskBlobStore struct {
	Root string
}

func NewDiskBlobStore(root string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0775); err != nil {
		return nil, err
	}
	return &DiskBlobStore{Root: root}, nil
}

func (s *DiskBlobStore) Fetch(ctx context.Context, storageID string) ([]byte, error) {
	if storageID == "" || strings.ContainsAny(storageID, "/\\") {
		return nil, fmt.Errorf("invalid storage ID: %q", storageID)
	}
	b, err := os.ReadFile(filepath.Join(s.Root, storageID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	} else if err != nil {
		return nil, err
	}
	return b, nil
}
