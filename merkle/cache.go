package merkle // import "github.com/chronos-tachyon/aoe-cas/merkle"

import (
	"github.com/docker/go-units"
	lru "github.com/hashicorp/golang-lru"

	"github.com/chronos-tachyon/aoe-cas/block"
)

// DefaultCacheSizeBytes is the default byte budget for a Cache, expressed
// with github.com/docker/go-units the way oneconcern/datamon's pkg/cafs
// expresses its own content-addressed leaf cache budget
// (cafs.DefaultCacheSize = 50 * units.MiB).
const DefaultCacheSizeBytes = 50 * units.MiB

// DefaultCacheBlocks is the default number of decoded pointer blocks held
// in a Cache for the common 4096-byte sector size, derived from
// DefaultCacheSizeBytes.
const DefaultCacheBlocks = DefaultCacheSizeBytes / 4096

// CacheBlocksForSize converts a byte budget into the number of decoded
// pointer blocks (each sectorSize bytes) a Cache of that budget should
// hold, with a floor of 1.
func CacheBlocksForSize(sizeBytes int64, sectorSize uint32) int {
	n := sizeBytes / int64(sectorSize)
	if n < 1 {
		n = 1
	}
	return int(n)
}

// Cache is a bounded LRU of decoded pointer blocks keyed by their content
// hash. Correctness of Tree never depends on Cache hits; it only affects
// how many blobstore.Store.Get calls a walk performs.
type Cache struct {
	lru *lru.Cache
}

// NewCache creates a Cache holding up to size decoded pointer blocks. A
// size <= 0 uses DefaultCacheBlocks.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheBlocks
	}
	c, err := lru.New(size)
	if err != nil {
		// lru.New only fails for size <= 0, which is excluded above.
		panic(err)
	}
	return &Cache{lru: c}
}

func (c *Cache) get(h block.Hash) (*pointerBlock, bool) {
	v, ok := c.lru.Get(h)
	if !ok {
		return nil, false
	}
	return v.(*pointerBlock), true
}

func (c *Cache) put(h block.Hash, pb *pointerBlock) {
	c.lru.Add(h, pb)
}

// Len reports the number of pointer blocks currently cached, for tests
// and metrics.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge evicts every cached entry.
func (c *Cache) Purge() {
	c.lru.Purge()
}
