package aoe // import "github.com/chronos-tachyon/aoe-cas/aoe"

import (
	"encoding/binary"
	"io"
)

// ConfigCommand is the sub-command carried in the low nibble of a
// ConfigHeader's version/command byte.
type ConfigCommand uint8

const (
	// ConfigCommandRead echoes the server's stored config string.
	ConfigCommandRead ConfigCommand = 0
	// ConfigCommandTestExact succeeds only if the argument exactly
	// matches the stored string; otherwise the response carries
	// ErrConfigStringMismatch.
	ConfigCommandTestExact ConfigCommand = 1
	// ConfigCommandTestPrefix succeeds only if the argument is a prefix
	// of the stored string; otherwise the response carries
	// ErrConfigStringMismatch.
	ConfigCommandTestPrefix ConfigCommand = 2
	// ConfigCommandSet stores the argument only if the stored string is
	// currently empty.
	ConfigCommandSet ConfigCommand = 3
	// ConfigCommandForceSet unconditionally stores the argument.
	ConfigCommandForceSet ConfigCommand = 4
)

// maxConfigStringLen is the largest config string this package accepts,
// per the AoE config string length limit.
const maxConfigStringLen = 1024

// configHeaderLen is the size in bytes of the Config argument header,
// excluding the trailing config string: buffer count, firmware version,
// sector count, version/command, string length.
const configHeaderLen = 2 + 2 + 1 + 1 + 2

// ConfigHeader is the argument to CommandConfig.
type ConfigHeader struct {
	BufferCount     uint16
	FirmwareVersion uint16
	SectorCount     uint8
	Version         uint8
	Command         ConfigCommand
	StringLength    uint16
	String          []byte
}

// MarshalBinary encodes c as the 8-byte Config header followed by String.
func (c *ConfigHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, configHeaderLen+len(c.String))

	binary.BigEndian.PutUint16(b[0:2], c.BufferCount)
	binary.BigEndian.PutUint16(b[2:4], c.FirmwareVersion)
	b[4] = c.SectorCount
	b[5] = (c.Version << 4) | (uint8(c.Command) & 0x0F)
	binary.BigEndian.PutUint16(b[6:8], uint16(len(c.String)))
	copy(b[8:], c.String)

	return b, nil
}

// UnmarshalBinary decodes the Config header and trailing string from b.
// It returns ErrBadArgument (not io.ErrUnexpectedEOF) if the declared
// string length exceeds maxConfigStringLen, since at this point
// shelf/slot/tag are already known and an AoE error response, not a
// silent drop, is the right outcome.
func (c *ConfigHeader) UnmarshalBinary(b []byte) error {
	if len(b) < configHeaderLen {
		return io.ErrUnexpectedEOF
	}

	c.BufferCount = binary.BigEndian.Uint16(b[0:2])
	c.FirmwareVersion = binary.BigEndian.Uint16(b[2:4])
	c.SectorCount = b[4]
	c.Version = b[5] >> 4
	c.Command = ConfigCommand(b[5] & 0x0F)
	c.StringLength = binary.BigEndian.Uint16(b[6:8])

	if c.StringLength > maxConfigStringLen {
		return ErrBadArgument
	}
	rest := b[configHeaderLen:]
	if len(rest) < int(c.StringLength) {
		return io.ErrUnexpectedEOF
	}

	s := make([]byte, c.StringLength)
	copy(s, rest[:c.StringLength])
	c.String = s

	return nil
}
