package blobstore // import "github.com/chronos-tachyon/aoe-cas/blobstore"

import (
	"context"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/chronos-tachyon/aoe-cas/block"
)

// FileStore is the reference Store implementation: blobs live under a root
// directory, sharded by the first byte of the hex hash, as
// <root>/<hex[0:2]>/<hex[2:64]>.
type FileStore struct {
	root string
	log  *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates (if necessary) root and returns a FileStore rooted
// there. log may be nil, in which case a no-op logger is used.
func NewFileStore(root string, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0777); err != nil {
		return nil, errors.Wrapf(err, "blobstore: failed to create root %q", root)
	}
	return &FileStore{root: root, log: log}, nil
}

func (fs *FileStore) pathFor(hash block.Hash) string {
	h := hex.EncodeToString(hash[:])
	return filepath.Join(fs.root, h[0:2], h[2:])
}

func (fs *FileStore) dirFor(hash block.Hash) string {
	h := hex.EncodeToString(hash[:])
	return filepath.Join(fs.root, h[0:2])
}

// Put stores data under hash, deduplicating against an existing file of
// the same name and writing via a temp-file-then-rename for atomicity, per
// the blob store layout spec.
func (fs *FileStore) Put(ctx context.Context, hash block.Hash, data []byte) error {
	if actual := block.HashBytes(data); actual != hash {
		return CorruptedError{Hash: hash, ActualHash: actual}
	}

	path := fs.pathFor(hash)
	if _, err := os.Stat(path); err == nil {
		// Dedup: identical content already on disk, no rewrite.
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "blobstore: stat %q", path)
	}

	dir := fs.dirFor(hash)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "blobstore: mkdir %q", dir)
	}

	tmp := path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errors.Wrapf(err, "blobstore: create %q", tmp)
	}
	shouldRemoveTmp := true
	defer func() {
		fh.Close()
		if shouldRemoveTmp {
			os.Remove(tmp)
		}
	}()

	if _, err := fh.Write(data); err != nil {
		return errors.Wrapf(err, "blobstore: write %q", tmp)
	}
	if err := fh.Sync(); err != nil {
		return errors.Wrapf(err, "blobstore: fsync %q", tmp)
	}
	if err := fh.Close(); err != nil {
		return errors.Wrapf(err, "blobstore: close %q", tmp)
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "blobstore: rename %q to %q", tmp, path)
	}
	shouldRemoveTmp = false
	return nil
}

// Get reads and returns the bytes stored under hash, rehashing them to
// guard against silent on-disk corruption.
func (fs *FileStore) Get(ctx context.Context, hash block.Hash) ([]byte, error) {
	path := fs.pathFor(hash)
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFoundError{Hash: hash}
		}
		return nil, errors.Wrapf(err, "blobstore: read %q", path)
	}

	if actual := block.HashBytes(data); actual != hash {
		fs.log.Error("blob failed integrity check",
			zap.String("want", hash.String()),
			zap.String("got", actual.String()))
		return nil, CorruptedError{Hash: hash, ActualHash: actual}
	}
	return data, nil
}

// Exists checks for the final (non-temp) path of hash.
func (fs *FileStore) Exists(ctx context.Context, hash block.Hash) (bool, error) {
	_, err := os.Stat(fs.pathFor(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "blobstore: stat %q", fs.pathFor(hash))
}

// Delete removes the blob stored under hash, if present.
func (fs *FileStore) Delete(ctx context.Context, hash block.Hash) error {
	err := os.Remove(fs.pathFor(hash))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "blobstore: remove %q", fs.pathFor(hash))
	}
	return nil
}

// Sync fsyncs the root directory so that recently renamed files' directory
// entries survive a crash.
func (fs *FileStore) Sync(ctx context.Context) error {
	dh, err := os.Open(fs.root)
	if err != nil {
		return errors.Wrapf(err, "blobstore: open root %q", fs.root)
	}
	defer dh.Close()

	if err := unix.Fsync(int(dh.Fd())); err != nil {
		return errors.Wrapf(err, "blobstore: fsync root %q", fs.root)
	}
	return nil
}

// CleanTemp removes any leftover *.tmp files from a prior crash during
// Put. It is best-effort and not required for correctness, since temp
// files are never referenced by any hash.
func (fs *FileStore) CleanTemp() error {
	return filepath.Walk(fs.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() && filepath.Ext(path) == ".tmp" {
			fs.log.Info("removing leftover temp file", zap.String("path", path))
			os.Remove(path)
		}
		return nil
	})
}
