package storage // import "github.com/chronos-tachyon/aoe-cas/storage"

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/chronos-tachyon/aoe-cas/block"
	"github.com/chronos-tachyon/aoe-cas/internal"
)

// FileBackend implements BlockStorage directly over a contiguous file,
// the non-deduplicating counterpart to CASBackend. It holds an exclusive
// advisory lock on the file for its lifetime, the same discipline any
// backend applies to its on-disk master record, so that two processes
// never address the same backing file concurrently.
type FileBackend struct {
	fh   *os.File
	info block.DeviceInfo
	log  *zap.Logger
}

var _ BlockStorage = (*FileBackend)(nil)

// OpenFileBackend opens or creates path as a flat file backing info's
// geometry. If the file is smaller than info.ByteSize(info.TotalSectors),
// it is extended (sparsely) to that size; it is never truncated, so a
// backend reopened with a larger TotalSectors than it was created with
// still sees its old data at the old offsets.
func OpenFileBackend(path string, info block.DeviceInfo, log *zap.Logger) (*FileBackend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	fh, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, block.NewError(block.KindIo, errors.Wrapf(err, "storage: open %q", path))
	}

	if err := unix.Flock(int(fh.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fh.Close()
		return nil, block.NewError(block.KindIo, errors.Wrapf(err, "storage: lock %q", path))
	}

	want := int64(info.ByteSize(info.TotalSectors))
	st, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, block.NewError(block.KindIo, err)
	}
	if st.Size() < want {
		if err := fh.Truncate(want); err != nil {
			fh.Close()
			return nil, block.NewError(block.KindIo, errors.Wrapf(err, "storage: extend %q to %d bytes", path, want))
		}
	}

	return &FileBackend{fh: fh, info: info, log: log}, nil
}

// Close releases the advisory lock and closes the underlying file handle.
func (b *FileBackend) Close() error {
	return b.fh.Close()
}

// Info implements BlockStorage.Info.
func (b *FileBackend) Info() block.DeviceInfo {
	return b.info
}

// Read implements BlockStorage.Read with a positioned read, guarding
// against a short ReadAt via internal.ReadExactlyAt.
func (b *FileBackend) Read(ctx context.Context, lba uint64, count uint64) ([]byte, error) {
	if !b.info.InRange(lba, count) {
		return nil, block.NewError(block.KindOutOfRange, fmt.Errorf("lba %d count %d exceeds %d total sectors", lba, count, b.info.TotalSectors))
	}
	out := make([]byte, b.info.ByteSize(count))
	if len(out) == 0 {
		return out, nil
	}
	offset := int64(b.info.ByteSize(lba))
	if err := internal.ReadExactlyAt(b.fh, out, offset); err != nil {
		return nil, block.NewError(block.KindIo, err)
	}
	return out, nil
}

// Write implements BlockStorage.Write with a positioned write, guarding
// against a short WriteAt via internal.WriteExactlyAt.
func (b *FileBackend) Write(ctx context.Context, lba uint64, data []byte) error {
	sectorSize := uint64(b.info.SectorSize)
	if uint64(len(data))%sectorSize != 0 {
		return block.NewError(block.KindInvalidSectorCount, fmt.Errorf("write length %d is not a multiple of sector size %d", len(data), sectorSize))
	}
	count := uint64(len(data)) / sectorSize
	if !b.info.InRange(lba, count) {
		return block.NewError(block.KindOutOfRange, fmt.Errorf("lba %d count %d exceeds %d total sectors", lba, count, b.info.TotalSectors))
	}
	if len(data) == 0 {
		return nil
	}
	offset := int64(b.info.ByteSize(lba))
	if err := internal.WriteExactlyAt(b.fh, data, offset); err != nil {
		return block.NewError(block.KindIo, err)
	}
	return nil
}

// Flush implements BlockStorage.Flush by fsyncing the backing file.
func (b *FileBackend) Flush(ctx context.Context) error {
	if err := b.fh.Sync(); err != nil {
		return block.NewError(block.KindIo, err)
	}
	return nil
}
