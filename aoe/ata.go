package aoe // import "github.com/chronos-tachyon/aoe-cas/aoe"

import "io"

// ATA command opcodes honored by the engine, per spec. Any other value
// in CmdStatus on a request is rejected with ErrUnrecognizedCommand.
const (
	ATACmdReadSectors     uint8 = 0x20
	ATACmdReadSectorsExt  uint8 = 0x24
	ATACmdWriteSectors    uint8 = 0x30
	ATACmdWriteSectorsExt uint8 = 0x34
	ATACmdIdentifyDevice  uint8 = 0xEC
	ATACmdFlushCache      uint8 = 0xE7
	ATACmdFlushCacheExt   uint8 = 0xEA
)

// ataHeaderLen is the size in bytes of the ATA argument header, excluding
// any data payload: flags, err/feature, sector count, cmd/status, 6
// bytes of LBA, 2 reserved bytes.
const ataHeaderLen = 1 + 1 + 1 + 1 + 6 + 2

// ATAHeader is the argument to CommandATA.
type ATAHeader struct {
	// FlagExtendedLBA48 selects 48-bit LBA addressing; otherwise the LBA
	// is interpreted as a 28-bit value and the high 20 bits of LBA must
	// be zero.
	FlagExtendedLBA48 bool
	// FlagDeviceHead is the legacy device/head register flag. It is
	// preserved across request/response but not otherwise interpreted.
	FlagDeviceHead bool
	// FlagAsync requests that a write not wait for the backend to
	// durably complete before responding. The engine's single-threaded
	// serialization model means every write already completes
	// synchronously, so this flag is preserved but has no effect.
	FlagAsync bool
	// FlagWrite indicates a write command; data follows the header.
	FlagWrite bool

	// ErrFeature is the error register on a response, the feature
	// register on a request (unused by any command this engine honors).
	ErrFeature uint8
	// SectorCount is the requested sector count on a request (0 means
	// the legacy maximum), or the echoed count on a response.
	SectorCount uint8
	// CmdStatus is the ATA command opcode on a request, or the status
	// register on a response.
	CmdStatus uint8
	// LBA is the 48-bit logical block address. Use LBA28/LBA48 to
	// interpret it per FlagExtendedLBA48.
	LBA uint64

	// Data is the sector payload: present on a write request or a
	// successful read response, empty otherwise.
	Data []byte
}

// LBA48Value returns LBA masked to 48 bits.
func (a *ATAHeader) LBA48Value() uint64 {
	return a.LBA & 0x0000FFFFFFFFFFFF
}

// LBA28Value returns LBA masked to 28 bits, the view used when
// FlagExtendedLBA48 is not set.
func (a *ATAHeader) LBA28Value() uint32 {
	return uint32(a.LBA & 0x0FFFFFFF)
}

// HasLBA48Overflow reports whether LBA carries bits outside the 28-bit
// range while FlagExtendedLBA48 is not set, a malformed request that
// should be answered with ErrBadArgument.
func (a *ATAHeader) HasLBA48Overflow() bool {
	return !a.FlagExtendedLBA48 && a.LBA&^uint64(0x0FFFFFFF) != 0
}

// MarshalBinary encodes a as the 12-byte ATA header followed by Data.
func (a *ATAHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, ataHeaderLen+len(a.Data))

	var flags uint8
	if a.FlagExtendedLBA48 {
		flags |= 0x40
	}
	if a.FlagDeviceHead {
		flags |= 0x20
	}
	if a.FlagAsync {
		flags |= 0x02
	}
	if a.FlagWrite {
		flags |= 0x01
	}
	b[0] = flags
	b[1] = a.ErrFeature
	b[2] = a.SectorCount
	b[3] = a.CmdStatus

	lba := a.LBA48Value()
	b[4] = byte(lba)
	b[5] = byte(lba >> 8)
	b[6] = byte(lba >> 16)
	b[7] = byte(lba >> 24)
	b[8] = byte(lba >> 32)
	b[9] = byte(lba >> 40)
	// b[10], b[11] reserved, already zero.

	copy(b[ataHeaderLen:], a.Data)
	return b, nil
}

// UnmarshalBinary decodes the ATA header and trailing data from b.
func (a *ATAHeader) UnmarshalBinary(b []byte) error {
	if len(b) < ataHeaderLen {
		return io.ErrUnexpectedEOF
	}

	flags := b[0]
	a.FlagExtendedLBA48 = flags&0x40 != 0
	a.FlagDeviceHead = flags&0x20 != 0
	a.FlagAsync = flags&0x02 != 0
	a.FlagWrite = flags&0x01 != 0

	a.ErrFeature = b[1]
	a.SectorCount = b[2]
	a.CmdStatus = b[3]

	a.LBA = uint64(b[4]) |
		uint64(b[5])<<8 |
		uint64(b[6])<<16 |
		uint64(b[7])<<24 |
		uint64(b[8])<<32 |
		uint64(b[9])<<40

	data := make([]byte, len(b[ataHeaderLen:]))
	copy(data, b[ataHeaderLen:])
	a.Data = data

	return nil
}
