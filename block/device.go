package block // import "github.com/chronos-tachyon/aoe-cas/block"

import "fmt"

// DeviceInfo is the immutable descriptor of a virtual disk.
type DeviceInfo struct {
	Model    string
	Serial   string
	Firmware string

	// TotalSectors is the capacity of the disk, in SectorSize-byte units.
	TotalSectors uint64

	// SectorSize is either 512 or 4096.
	SectorSize uint32

	// LBA48 controls whether IDENTIFY DEVICE reports the LBA48 total
	// sector count (words 100-103); ATA command handling follows each
	// request's own LBA48 flag instead. It must be true for any disk
	// exposing more than 2^28 sectors; CASBackend and cmd/aoecasd set it
	// unconditionally so those disks report LBA48 total sectors regardless
	// of size.
	LBA48 bool
}

// Validate checks that SectorSize is 512 or 4096, and that LBA48 is set
// whenever TotalSectors exceeds the LBA28 ceiling.
func (d DeviceInfo) Validate() error {
	if d.SectorSize != 512 && d.SectorSize != 4096 {
		return fmt.Errorf("block: invalid sector size %d, must be 512 or 4096", d.SectorSize)
	}
	if d.TotalSectors > maxLBA28Sectors && !d.LBA48 {
		return fmt.Errorf("block: %d sectors exceeds LBA28 range, LBA48 must be set", d.TotalSectors)
	}
	return nil
}

// maxLBA28Sectors is 2^28 - 1, the largest sector index addressable by a
// 28-bit LBA.
const maxLBA28Sectors = 1<<28 - 1

// InRange reports whether a read/write of count sectors starting at lba
// stays within [0, TotalSectors).
func (d DeviceInfo) InRange(lba uint64, count uint64) bool {
	if count == 0 {
		return lba <= d.TotalSectors
	}
	end := lba + count
	if end < lba {
		return false // overflow
	}
	return end <= d.TotalSectors
}

// ByteSize is the size in bytes of count sectors.
func (d DeviceInfo) ByteSize(count uint64) uint64 {
	return count * uint64(d.SectorSize)
}
