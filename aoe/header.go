package aoe // import "github.com/chronos-tachyon/aoe-cas/aoe"

import (
	"encoding/binary"
	"io"
)

// Version is the only AoE protocol version this package understands.
const Version uint8 = 1

// BroadcastShelf and BroadcastSlot are the wildcard values for Header.Shelf
// and Header.Slot that select every registered target.
const (
	BroadcastShelf uint16 = 0xFFFF
	BroadcastSlot  uint8  = 0xFF
)

// Command distinguishes the two AoE command classes this package handles.
type Command uint8

const (
	// CommandATA carries an ATAHeader.
	CommandATA Command = 0
	// CommandConfig carries a ConfigHeader.
	CommandConfig Command = 1
)

// headerLen is the size in bytes of the common AoE header that follows
// the 14-byte Ethernet envelope: version/flags, error, shelf, slot,
// command, tag.
const headerLen = 1 + 1 + 2 + 1 + 1 + 4

// Header is the 10-byte common AoE header. Unlike the real AoEr11
// version/flags byte, this wire format places the flags in the high
// nibble and the version in the low nibble of the first byte.
type Header struct {
	Version      uint8
	FlagResponse bool
	FlagError    bool
	Error        Error
	Shelf        uint16
	Slot         uint8
	Command      Command
	Tag          uint32
}

// MarshalBinary encodes h as the 10-byte common AoE header.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, headerLen)

	var flagsNibble uint8
	if h.FlagResponse {
		flagsNibble |= 0x08
	}
	if h.FlagError {
		flagsNibble |= 0x04
	}
	b[0] = (flagsNibble << 4) | (h.Version & 0x0F)

	b[1] = uint8(h.Error)
	binary.BigEndian.PutUint16(b[2:4], h.Shelf)
	b[4] = h.Slot
	b[5] = uint8(h.Command)
	binary.BigEndian.PutUint32(b[6:10], h.Tag)

	return b, nil
}

// UnmarshalBinary decodes the 10-byte common AoE header from b. It does
// not reject an unsupported Version or unrecognized Command; callers
// that need a response synthesized for those conditions check the
// decoded fields themselves, since shelf/slot/tag are already valid at
// this point.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < headerLen {
		return io.ErrUnexpectedEOF
	}

	h.Version = b[0] & 0x0F
	flagsNibble := b[0] >> 4
	h.FlagResponse = flagsNibble&0x08 != 0
	h.FlagError = flagsNibble&0x04 != 0

	h.Error = Error(b[1])
	h.Shelf = binary.BigEndian.Uint16(b[2:4])
	h.Slot = b[4]
	h.Command = Command(b[5])
	h.Tag = binary.BigEndian.Uint32(b[6:10])

	return nil
}
