package storage // import "github.com/chronos-tachyon/aoe-cas/storage"

import (
	"context"

	"github.com/chronos-tachyon/aoe-cas/block"
)

// BlockStorage is the single boundary every backend implements. The AoE
// engine operates on this capability and must never branch on backend
// identity: CASBackend and FileBackend are interchangeable behind it.
type BlockStorage interface {
	// Read returns exactly count*SectorSize bytes starting at lba.
	Read(ctx context.Context, lba uint64, count uint64) ([]byte, error)

	// Write stores data, whose length must be a multiple of SectorSize,
	// starting at lba. Updates are visible to subsequent Read calls
	// before Write returns.
	Write(ctx context.Context, lba uint64, data []byte) error

	// Flush makes all prior successful writes durable: after Flush
	// returns, they survive a process restart.
	Flush(ctx context.Context) error

	// Info returns the immutable device descriptor.
	Info() block.DeviceInfo
}

// Archival is an optional extension capability for backends that support
// point-in-time recovery. CASBackend implements it; FileBackend does not.
type Archival interface {
	// Snapshot records the current state and returns an opaque id that
	// Restore can later accept.
	Snapshot(ctx context.Context, description string) (string, error)

	// ListSnapshots returns every recorded snapshot, oldest first.
	ListSnapshots(ctx context.Context) ([]Snapshot, error)

	// Restore replaces the live state with the state identified by id.
	Restore(ctx context.Context, id string) error
}
