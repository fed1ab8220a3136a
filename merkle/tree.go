package merkle // import "github.com/chronos-tachyon/aoe-cas/merkle"

import (
	"context"

	"go.uber.org/zap"

	"github.com/chronos-tachyon/aoe-cas/blobstore"
	"github.com/chronos-tachyon/aoe-cas/block"
)

// Tree is a fixed-depth Merkle index over a blobstore.Store. It is
// stateless with respect to the root hash: Lookup and Update both take
// the current root explicitly, and Update returns the new root, so that
// the owning backend (storage.CASBackend) controls exactly when the new
// root is installed ("the in-memory root hash is replaced as the last
// step of write").
type Tree struct {
	store      blobstore.Store
	cache      *Cache
	fanout     int
	depth      int
	sectorSize uint32
	powers     []uint64
	log        *zap.Logger
}

// New builds a Tree for a disk with the given sector size and total
// sector count. cache may be nil, in which case a Cache of
// DefaultCacheBlocks is created. log may be nil.
func New(store blobstore.Store, cache *Cache, sectorSize uint32, totalSectors uint64, log *zap.Logger) *Tree {
	if cache == nil {
		cache = NewCache(DefaultCacheBlocks)
	}
	if log == nil {
		log = zap.NewNop()
	}
	fanout := Fanout(sectorSize)
	depth := Depth(totalSectors, fanout)

	powers := make([]uint64, depth)
	p := uint64(1)
	for level := depth - 1; level >= 0; level-- {
		powers[level] = p
		p *= uint64(fanout)
	}

	return &Tree{
		store:      store,
		cache:      cache,
		fanout:     fanout,
		depth:      depth,
		sectorSize: sectorSize,
		powers:     powers,
		log:        log,
	}
}

// Depth returns the fixed number of pointer-block levels from root to
// leaf.
func (t *Tree) Depth() int { return t.depth }

// Fanout returns the number of child hashes per pointer block.
func (t *Tree) Fanout() int { return t.fanout }

func (t *Tree) digit(lba uint64, level int) int {
	return int((lba / t.powers[level]) % uint64(t.fanout))
}

func (t *Tree) fetch(ctx context.Context, h block.Hash) (*pointerBlock, error) {
	if pb, ok := t.cache.get(h); ok {
		return pb, nil
	}
	data, err := t.store.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	pb := decodePointerBlock(data, t.fanout)
	t.cache.put(h, pb)
	return pb, nil
}

// Lookup walks the tree rooted at root to find the data-block hash for
// lba. Any zero hash along the path short-circuits to the zero sentinel,
// meaning the sector has never been written.
func (t *Tree) Lookup(ctx context.Context, root block.Hash, lba uint64) (block.Hash, error) {
	if root.IsZero() {
		return block.ZeroHash, nil
	}

	current := root
	for level := 0; level < t.depth; level++ {
		if current.IsZero() {
			return block.ZeroHash, nil
		}
		node, err := t.fetch(ctx, current)
		if err != nil {
			return block.ZeroHash, err
		}
		idx := t.digit(lba, level)
		child := node.get(idx)
		if level == t.depth-1 {
			return child, nil
		}
		current = child
	}
	return block.ZeroHash, nil
}

type pathStep struct {
	node *pointerBlock
	idx  int
}

// Update sets the leaf hash for lba to newLeaf and returns the new root,
// using copy-on-write: every node on the path from leaf to root is cloned,
// mutated, rehashed, and persisted before the new root hash is returned;
// the caller installs it atomically. If Update returns an error, root is
// still valid and unchanged, no partial state is exposed.
func (t *Tree) Update(ctx context.Context, root block.Hash, lba uint64, newLeaf block.Hash) (block.Hash, error) {
	path := make([]pathStep, t.depth)
	current := root

	for level := 0; level < t.depth; level++ {
		idx := t.digit(lba, level)

		var node *pointerBlock
		if current.IsZero() {
			node = newPointerBlock(t.fanout)
		} else {
			existing, err := t.fetch(ctx, current)
			if err != nil {
				return block.ZeroHash, err
			}
			node = existing.clone()
		}
		path[level] = pathStep{node: node, idx: idx}

		if level < t.depth-1 {
			current = node.get(idx)
		}
	}

	path[t.depth-1].node.set(path[t.depth-1].idx, newLeaf)

	childHash := newLeaf
	for level := t.depth - 1; level >= 0; level-- {
		if level != t.depth-1 {
			path[level].node.set(path[level].idx, childHash)
		}

		if path[level].node.allZero() {
			// Every child is sparse, so this node has nothing to point
			// to: collapse to the zero sentinel instead of persisting
			// an empty pointer block.
			childHash = block.ZeroHash
			continue
		}

		data := path[level].node.encode()
		h := block.HashBytes(data)
		if h.IsZero() {
			// Impossibly rare for a real pointer block, but guarded
			// against anyway: perturb so the zero hash keeps its
			// sparse-sentinel meaning.
			h[0] ^= 0x01
		}

		exists, err := t.store.Exists(ctx, h)
		if err != nil {
			return block.ZeroHash, err
		}
		if !exists {
			if err := t.store.Put(ctx, h, data); err != nil {
				return block.ZeroHash, err
			}
		}
		t.cache.put(h, path[level].node)
		childHash = h
	}

	return childHash, nil
}
