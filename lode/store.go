package lode

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// BlobStore is a flat namespace of small binary blobs on top of a Lode
// store. All errors are *StorageError.
type BlobStore struct {
	store   lode.Store
	backend string
}

// NewBlobStore wraps an open Lode store. backend names it in logs and
// metrics ("fs", "s3", "memory").
func NewBlobStore(store lode.Store, backend string) *BlobStore {
	return &BlobStore{store: store, backend: backend}
}

// OpenBlobStore opens a store from a factory.
func OpenBlobStore(factory lode.StoreFactory, backend string) (*BlobStore, error) {
	store, err := factory()
	if err != nil {
		return nil, WrapError(err, "init", backend)
	}
	return NewBlobStore(store, backend), nil
}

// Backend returns the backend name.
func (b *BlobStore) Backend() string {
	return b.backend
}

// Put writes data under name.
func (b *BlobStore) Put(ctx context.Context, name string, data []byte) error {
	return WrapError(b.store.Put(ctx, name, bytes.NewReader(data)), "put", name)
}

// Get reads the blob stored under name.
func (b *BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	rc, err := b.store.Get(ctx, name)
	if err != nil {
		return nil, WrapError(err, "get", name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, WrapError(err, "get", name)
	}
	return data, nil
}

// Delete removes the blob stored under name.
func (b *BlobStore) Delete(ctx context.Context, name string) error {
	return WrapError(b.store.Delete(ctx, name), "delete", name)
}

// List returns the sorted names ending in suffix. An empty suffix lists
// everything.
func (b *BlobStore) List(ctx context.Context, suffix string) ([]string, error) {
	paths, err := b.store.List(ctx, "")
	if err != nil {
		return nil, WrapError(err, "list", "")
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	return names, nil
}
