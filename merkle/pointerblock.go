package merkle // import "github.com/chronos-tachyon/aoe-cas/merkle"

import (
	"github.com/chronos-tachyon/aoe-cas/block"
)

// Fanout returns the number of child hashes per pointer block for a disk
// with the given sector size: sectorSize / HashSize (128 for 4096-byte
// sectors).
func Fanout(sectorSize uint32) int {
	return int(sectorSize) / block.HashSize
}

// Depth computes the fixed tree depth for a disk with totalSectors
// sectors and the given fanout: the smallest d such that fanout^d >=
// totalSectors, with a floor of 1 so a single-sector disk still has one
// level of pointer block rather than a degenerate depth of 0.
func Depth(totalSectors uint64, fanout int) int {
	if totalSectors <= 1 {
		return 1
	}
	depth := 1
	capacity := uint64(fanout)
	for capacity < totalSectors {
		depth++
		capacity *= uint64(fanout)
	}
	return depth
}

// pointerBlock is a decoded pointer block: a slice of fanout child
// hashes. It is the in-memory form cached by Cache and the wire form
// written to the blob store (by concatenating the hashes back to back).
type pointerBlock struct {
	hashes []block.Hash
}

func newPointerBlock(fanout int) *pointerBlock {
	return &pointerBlock{hashes: make([]block.Hash, fanout)}
}

func decodePointerBlock(data []byte, fanout int) *pointerBlock {
	pb := newPointerBlock(fanout)
	for i := 0; i < fanout; i++ {
		start := i * block.HashSize
		end := start + block.HashSize
		if end > len(data) {
			break
		}
		copy(pb.hashes[i][:], data[start:end])
	}
	return pb
}

func (pb *pointerBlock) encode() []byte {
	out := make([]byte, len(pb.hashes)*block.HashSize)
	for i, h := range pb.hashes {
		copy(out[i*block.HashSize:], h[:])
	}
	return out
}

func (pb *pointerBlock) get(index int) block.Hash {
	return pb.hashes[index]
}

func (pb *pointerBlock) set(index int, h block.Hash) {
	pb.hashes[index] = h
}

// clone returns a deep copy, used so copy-on-write updates never mutate a
// node that may still be referenced by a cached/in-flight older root.
func (pb *pointerBlock) clone() *pointerBlock {
	out := newPointerBlock(len(pb.hashes))
	copy(out.hashes, pb.hashes)
	return out
}

// allZero reports whether every child hash is the zero sentinel, meaning
// the node has no live descendants and can collapse to block.ZeroHash
// instead of being persisted.
func (pb *pointerBlock) allZero() bool {
	for _, h := range pb.hashes {
		if !h.IsZero() {
			return false
		}
	}
	return true
}
