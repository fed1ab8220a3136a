package blobstore // import "github.com/chronos-tachyon/aoe-cas/blobstore"

import (
	"context"
	"fmt"

	"github.com/chronos-tachyon/aoe-cas/block"
)

// Store is the content-addressed key/value contract every blob backend
// implements. Key = 32-byte hash of stored bytes.
type Store interface {
	// Put stores data under hash. Put is idempotent: putting the same
	// hash twice performs the write once.
	Put(ctx context.Context, hash block.Hash, data []byte) error

	// Get returns the bytes stored under hash. Implementations must
	// verify the returned bytes rehash to hash, returning a Corrupted
	// error if they do not.
	Get(ctx context.Context, hash block.Hash) ([]byte, error)

	// Exists reports whether hash is present, without reading its
	// contents.
	Exists(ctx context.Context, hash block.Hash) (bool, error)

	// Delete removes hash, if present. May be a no-op in archival-only
	// deployments.
	Delete(ctx context.Context, hash block.Hash) error

	// Sync ensures every Put that returned successfully survives a
	// process restart.
	Sync(ctx context.Context) error
}

// NotFoundError is returned by Get when hash is not present in the store.
type NotFoundError struct {
	Hash block.Hash
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("blobstore: blob %q not found", err.Hash)
}

// CorruptedError is returned by Get when the bytes read back from storage
// do not rehash to the requested key, and by Put when the caller-supplied
// hash does not match the caller-supplied data.
type CorruptedError struct {
	Hash       block.Hash
	ActualHash block.Hash
}

func (err CorruptedError) Error() string {
	return fmt.Sprintf("blobstore: blob %q failed integrity check; content actually hashes to %q", err.Hash, err.ActualHash)
}

var (
	_ error = NotFoundError{}
	_ error = CorruptedError{}
)
