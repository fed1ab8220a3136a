package storage // import "github.com/chronos-tachyon/aoe-cas/storage"

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chronos-tachyon/aoe-cas/blobstore"
	"github.com/chronos-tachyon/aoe-cas/block"
	"github.com/chronos-tachyon/aoe-cas/merkle"
)

// CASConfig configures a new CASBackend.
type CASConfig struct {
	TotalSectors   uint64
	SectorSize     uint32 // 512 or 4096
	Model          string
	Serial         string
	Firmware       string
	Compress       bool
	CacheBlocks    int   // pointer-block LRU size; <= 0 derives from CacheSizeBytes
	CacheSizeBytes int64 // byte budget for the pointer-block LRU; <= 0 uses merkle.DefaultCacheSizeBytes, consulted only when CacheBlocks <= 0

	// MetadataPath, if non-empty, is the sidecar file Flush persists the
	// root hash, geometry, and snapshot list to. Leaving it empty is
	// valid for ephemeral backends (e.g. tests) that never reopen.
	MetadataPath string
}

// CASBackend implements BlockStorage and Archival on top of a
// blobstore.Store and a fixed-depth merkle.Tree. A CASBackend is owned by
// exactly one target entry and is not designed to be shared across
// goroutines concurrently; the AoE engine's single-threaded frame loop is
// what makes this safe.
type CASBackend struct {
	store        blobstore.Store
	tree         *merkle.Tree
	info         block.DeviceInfo
	root         block.Hash
	snapshots    SnapshotList
	compress     bool
	metadataPath string
	depth        int
	fanout       int
	log          *zap.Logger
}

var (
	_ BlockStorage = (*CASBackend)(nil)
	_ Archival     = (*CASBackend)(nil)
)

// NewCASBackend creates a fresh, fully-sparse CAS-backed disk.
func NewCASBackend(store blobstore.Store, cfg CASConfig, log *zap.Logger) (*CASBackend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	info := block.DeviceInfo{
		Model:        cfg.Model,
		Serial:       cfg.Serial,
		Firmware:     cfg.Firmware,
		TotalSectors: cfg.TotalSectors,
		SectorSize:   cfg.SectorSize,
		LBA48:        true,
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	cacheBlocks := cfg.CacheBlocks
	if cacheBlocks <= 0 {
		sizeBytes := cfg.CacheSizeBytes
		if sizeBytes <= 0 {
			sizeBytes = merkle.DefaultCacheSizeBytes
		}
		cacheBlocks = merkle.CacheBlocksForSize(sizeBytes, cfg.SectorSize)
	}
	cache := merkle.NewCache(cacheBlocks)
	tree := merkle.New(store, cache, cfg.SectorSize, cfg.TotalSectors, log)

	return &CASBackend{
		store:        store,
		tree:         tree,
		info:         info,
		root:         block.ZeroHash,
		compress:     cfg.Compress,
		metadataPath: cfg.MetadataPath,
		depth:        tree.Depth(),
		fanout:       tree.Fanout(),
		log:          log,
	}, nil
}

// OpenCASBackend opens a disk whose geometry is fixed by cfg, restoring the
// root hash and snapshot list from cfg.MetadataPath if that file exists, or
// starting fresh (identical to NewCASBackend) if it does not. This is the
// open-or-create discipline applied to any backend's on-disk master
// record.
func OpenCASBackend(store blobstore.Store, cfg CASConfig, log *zap.Logger) (*CASBackend, error) {
	b, err := NewCASBackend(store, cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.MetadataPath == "" {
		return b, nil
	}

	meta, err := LoadMetadata(cfg.MetadataPath)
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, block.NewError(block.KindIo, err)
	}
	if meta.SectorSize != cfg.SectorSize || meta.TotalSectors != cfg.TotalSectors {
		return nil, block.NewError(block.KindBackend, fmt.Errorf("storage: metadata geometry (sectors=%d size=%d) does not match configured geometry (sectors=%d size=%d)", meta.TotalSectors, meta.SectorSize, cfg.TotalSectors, cfg.SectorSize))
	}
	b.root = meta.Root
	b.snapshots = meta.Snapshots
	return b, nil
}

// Info returns the immutable device descriptor.
func (b *CASBackend) Info() block.DeviceInfo {
	return b.info
}

// RootHash returns the current root hash, for metadata persistence.
func (b *CASBackend) RootHash() block.Hash {
	return b.root
}

// SetRootHash installs root as the live root hash without recording a
// snapshot, used when reopening a disk from persisted metadata.
func (b *CASBackend) SetRootHash(root block.Hash) {
	b.root = root
}

// Read implements BlockStorage.Read: each sector is located by a Merkle
// walk; a zero leaf returns SectorSize zero bytes without touching the
// blob store.
func (b *CASBackend) Read(ctx context.Context, lba uint64, count uint64) ([]byte, error) {
	if !b.info.InRange(lba, count) {
		return nil, block.NewError(block.KindOutOfRange, fmt.Errorf("lba %d count %d exceeds %d total sectors", lba, count, b.info.TotalSectors))
	}

	out := make([]byte, count*uint64(b.info.SectorSize))
	for i := uint64(0); i < count; i++ {
		leaf, err := b.tree.Lookup(ctx, b.root, lba+i)
		if err != nil {
			return nil, block.NewError(block.KindBackend, err)
		}

		dst := out[i*uint64(b.info.SectorSize) : (i+1)*uint64(b.info.SectorSize)]
		if leaf.IsZero() {
			continue // dst is already zero-filled
		}

		stored, err := b.store.Get(ctx, leaf)
		if err != nil {
			b.log.Error("failed to fetch data block", zap.String("hash", leaf.String()), zap.Error(err))
			return nil, block.NewError(block.KindBackend, err)
		}
		sector, err := decodeSector(stored, b.info.SectorSize)
		if err != nil {
			b.log.Error("failed to decode data block", zap.String("hash", leaf.String()), zap.Error(err))
			return nil, block.NewError(block.KindBackend, err)
		}
		copy(dst, sector)
	}
	return out, nil
}

// Write implements BlockStorage.Write: each sector is optionally
// compressed, hashed, deduplicated against the blob store, and threaded
// into the Merkle tree; the new root is installed only after every
// constituent pointer block has been successfully stored.
func (b *CASBackend) Write(ctx context.Context, lba uint64, data []byte) error {
	sectorSize := uint64(b.info.SectorSize)
	if uint64(len(data))%sectorSize != 0 {
		return block.NewError(block.KindInvalidSectorCount, fmt.Errorf("write length %d is not a multiple of sector size %d", len(data), sectorSize))
	}
	count := uint64(len(data)) / sectorSize
	if !b.info.InRange(lba, count) {
		return block.NewError(block.KindOutOfRange, fmt.Errorf("lba %d count %d exceeds %d total sectors", lba, count, b.info.TotalSectors))
	}

	newRoot := b.root
	for i := uint64(0); i < count; i++ {
		sector := data[i*sectorSize : (i+1)*sectorSize]

		var leafHash block.Hash
		if isAllZero(sector) {
			// Sparse bypass: never allocate a blob for an all-zero
			// sector, so sparse disks don't accumulate blobs.
			leafHash = block.ZeroHash
		} else {
			stored := encodeSector(sector, b.compress)
			leafHash = block.HashBytes(stored)
			if leafHash.IsZero() {
				leafHash[0] ^= 0x01
			}

			exists, err := b.store.Exists(ctx, leafHash)
			if err != nil {
				return block.NewError(block.KindBackend, err)
			}
			if !exists {
				if err := b.store.Put(ctx, leafHash, stored); err != nil {
					return block.NewError(block.KindBackend, err)
				}
			}
		}

		updated, err := b.tree.Update(ctx, newRoot, lba+i, leafHash)
		if err != nil {
			// Root is unchanged; the partially written pointer blocks
			// from this failed attempt are orphaned but harmless.
			return block.NewError(block.KindBackend, err)
		}
		newRoot = updated
	}

	b.root = newRoot
	return nil
}

// Flush implements BlockStorage.Flush. It syncs the blob store and, if a
// metadata path was configured, persists the root hash and snapshot list
// to that sidecar file. Both errors are preserved via multierr rather than
// letting a metadata-write failure mask a blob-sync failure or vice versa.
func (b *CASBackend) Flush(ctx context.Context) error {
	var errs error
	if err := b.store.Sync(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if b.metadataPath != "" {
		meta := Metadata{
			Root:         b.root,
			TotalSectors: b.info.TotalSectors,
			SectorSize:   b.info.SectorSize,
			Depth:        b.depth,
			Fanout:       b.fanout,
			Snapshots:    b.snapshots,
		}
		if err := SaveMetadata(b.metadataPath, meta); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return block.NewError(block.KindIo, errs)
	}
	return nil
}

// Snapshot implements Archival.Snapshot.
func (b *CASBackend) Snapshot(ctx context.Context, description string) (string, error) {
	b.snapshots = append(b.snapshots, Snapshot{
		Timestamp:   time.Now().Unix(),
		Root:        b.root,
		Description: description,
	})
	return b.root.String(), nil
}

// ListSnapshots implements Archival.ListSnapshots.
func (b *CASBackend) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	out := make([]Snapshot, len(b.snapshots))
	copy(out, b.snapshots)
	return out, nil
}

// Restore implements Archival.Restore. Any well-formed hash is accepted
// (not only ones present in the recorded snapshot list), to allow
// transferring a root hash between servers that share a blob store.
func (b *CASBackend) Restore(ctx context.Context, id string) error {
	root, err := block.ParseHash(id)
	if err != nil {
		return block.NewError(block.KindBackend, err)
	}
	b.root = root
	return nil
}

// SaveSnapshots returns the snapshot list in its external byte format.
// Persisting this is an external responsibility; the backend only
// exposes the load/save endpoints.
func (b *CASBackend) SaveSnapshots() ([]byte, error) {
	return b.snapshots.MarshalJSON()
}

// LoadSnapshots replaces the in-memory snapshot list from its external
// byte format.
func (b *CASBackend) LoadSnapshots(data []byte) error {
	var list SnapshotList
	if err := list.UnmarshalJSON(data); err != nil {
		return err
	}
	b.snapshots = list
	return nil
}
