package blobstore

import (
	"context"
)

type MemBlobStore struct {
	Data map[string][]byte
}

func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{
		Data: make(map[string][]byte),
	}
}

func (s *MemBlobStore) Put(storageID string, b []byte) {
	s.Data[storageID] = b
}

func (s *MemBlobStore) Fetch(ctx context.Context, storageID string) ([]byte, error) {
	b, ok := s.Data[storageID]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return b, nil
}
