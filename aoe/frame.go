package aoe // import "github.com/chronos-tachyon/aoe-cas/aoe"

import (
	"net"

	"github.com/mdlayher/ethernet"
)

// EtherType is the registered EtherType for ATA over Ethernet.
const EtherType ethernet.EtherType = 0x88A2

// Frame is a parsed AoE request: the Ethernet envelope, the common AoE
// header, and exactly one of ATA or Config depending on Header.Command.
type Frame struct {
	Destination net.HardwareAddr
	Source      net.HardwareAddr
	Header      Header
	ATA         *ATAHeader
	Config      *ConfigHeader
}

// ParseFrame decodes a raw Ethernet frame carrying an AoE request.
//
// It returns ErrDrop for conditions that warrant silent discard: a frame
// too short to contain the Ethernet envelope or the common AoE header, a
// mismatched EtherType, the Response flag already set, or a body too
// short for its declared command. These precede the point at which
// shelf/slot/tag are known to be valid, so no response can be addressed.
//
// It returns a *ResponseError for conditions discovered once the common
// header has decoded successfully: an unsupported Version, an
// unrecognized Command, or (for Config) an oversized string length. The
// caller uses the embedded Frame to address an error response.
func ParseFrame(raw []byte) (*Frame, error) {
	var eth ethernet.Frame
	if err := (&eth).UnmarshalBinary(raw); err != nil {
		return nil, ErrDrop
	}
	if eth.EtherType != EtherType {
		return nil, ErrDrop
	}

	if len(eth.Payload) < headerLen {
		return nil, ErrDrop
	}

	var h Header
	if err := h.UnmarshalBinary(eth.Payload[:headerLen]); err != nil {
		return nil, ErrDrop
	}
	if h.FlagResponse {
		return nil, ErrDrop
	}

	frame := &Frame{
		Destination: eth.Destination,
		Source:      eth.Source,
		Header:      h,
	}

	if h.Version != Version {
		return frame, &ResponseError{Code: ErrUnsupportedVersion, Frame: frame}
	}

	body := eth.Payload[headerLen:]

	switch h.Command {
	case CommandATA:
		if len(body) < ataHeaderLen {
			return nil, ErrDrop
		}
		var ata ATAHeader
		if err := ata.UnmarshalBinary(body); err != nil {
			return nil, ErrDrop
		}
		frame.ATA = &ata

	case CommandConfig:
		if len(body) < configHeaderLen {
			return nil, ErrDrop
		}
		var cfg ConfigHeader
		if err := cfg.UnmarshalBinary(body); err != nil {
			if err == ErrBadArgument {
				return frame, &ResponseError{Code: ErrBadArgument, Frame: frame}
			}
			return nil, ErrDrop
		}
		frame.Config = &cfg

	default:
		return frame, &ResponseError{Code: ErrUnrecognizedCommand, Frame: frame}
	}

	return frame, nil
}

// buildEnvelope renders a response frame: the Ethernet envelope (MACs
// swapped relative to req, via github.com/mdlayher/ethernet, the same
// library mdlayher/aoe uses for its own request/response framing) wrapping
// the common AoE header and the command-specific body.
func buildEnvelope(req *Frame, shelf uint16, slot uint8, isError bool, code Error, body []byte) ([]byte, error) {
	h := Header{
		Version:      Version,
		FlagResponse: true,
		FlagError:    isError,
		Error:        code,
		Shelf:        shelf,
		Slot:         slot,
		Command:      req.Header.Command,
		Tag:          req.Header.Tag,
	}
	hb, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}

	payload := make([]byte, headerLen+len(body))
	copy(payload, hb)
	copy(payload[headerLen:], body)

	eth := ethernet.Frame{
		Destination: req.Source,
		Source:      req.Destination,
		EtherType:   EtherType,
		Payload:     payload,
	}
	return eth.MarshalBinary()
}

// BuildATAResponse renders a response frame for an ATA command addressed
// to (shelf, slot), the responding target's own address. code is 0 for a
// successful command; any other value sets the AoE Error flag and omits
// ata.Data from the wire bytes regardless of what the caller populated,
// per the "omit payload" response rule.
func BuildATAResponse(req *Frame, shelf uint16, slot uint8, ata *ATAHeader, code Error) ([]byte, error) {
	out := *ata
	if code != 0 {
		out.Data = nil
	}
	ab, err := out.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return buildEnvelope(req, shelf, slot, code != 0, code, ab)
}

// BuildConfigResponse renders a successful response frame for a Config
// command addressed to (shelf, slot).
func BuildConfigResponse(req *Frame, shelf uint16, slot uint8, cfg *ConfigHeader) ([]byte, error) {
	cb, err := cfg.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return buildEnvelope(req, shelf, slot, false, 0, cb)
}

// BuildErrorResponse renders a bare error response: the 24-byte common
// header only, except when req.Header.Command is CommandATA, in which
// case a minimal 12-byte ATA header is appended echoing the request's
// flags and LBA (zero-valued if the ATA header never parsed, as happens
// for a version mismatch discovered before the body is read) with the
// error register set to Abort and the status register set to Err|DRDY.
// Config-class errors never carry a body.
func BuildErrorResponse(req *Frame, shelf uint16, slot uint8, code Error) ([]byte, error) {
	if req.Header.Command != CommandATA {
		return buildEnvelope(req, shelf, slot, true, code, nil)
	}

	var lba uint64
	ata := &ATAHeader{}
	if req.ATA != nil {
		ata.FlagExtendedLBA48 = req.ATA.FlagExtendedLBA48
		ata.FlagDeviceHead = req.ATA.FlagDeviceHead
		ata.FlagAsync = req.ATA.FlagAsync
		ata.FlagWrite = req.ATA.FlagWrite
		lba = req.ATA.LBA
	}
	ata.LBA = lba
	ata.ErrFeature = ErrAbort
	ata.CmdStatus = StatusErr | StatusDRDY

	ab, err := ata.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return buildEnvelope(req, shelf, slot, true, code, ab)
}
