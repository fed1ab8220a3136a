package server // import "github.com/chronos-tachyon/aoe-cas/server"

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/chronos-tachyon/aoe-cas/aoe"
	"github.com/chronos-tachyon/aoe-cas/target"
)

// DefaultMaxSectorsPerOp caps the sector count of a single ATA read or
// write to keep one response frame within a reasonable size at either
// supported sector size. It comfortably covers the legacy LBA28 maximum
// of 256 sectors.
const DefaultMaxSectorsPerOp = 1024

// Engine owns the single-threaded AoE frame loop: it reads one frame from
// Source, dispatches it through Targets, and writes every resulting
// response to Sink before reading the next frame. A broadcast request's
// responses are written contiguously, in target-registration order,
// before the loop advances.
type Engine struct {
	Source  FrameSource
	Sink    FrameSink
	Targets *target.Manager
	Log     *zap.Logger

	// MaxSectorsPerOp bounds the sector count of a single ATA read or
	// write. Zero uses DefaultMaxSectorsPerOp.
	MaxSectorsPerOp uint64
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Engine) maxSectorsPerOp() uint64 {
	if e.MaxSectorsPerOp == 0 {
		return DefaultMaxSectorsPerOp
	}
	return e.MaxSectorsPerOp
}

// Run drives the frame loop until ctx is canceled or Source.Receive
// returns a non-context error. A canceled context is reported as a nil
// error, since graceful shutdown is not a failure.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		raw, err := e.Source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		for _, resp := range e.handleFrame(ctx, raw) {
			if err := e.Sink.Send(ctx, resp); err != nil {
				e.logger().Error("failed to send response frame", zap.Error(err))
			}
		}
	}
}

// handleFrame parses raw, resolves the addressed target(s), and returns
// the response frame(s) to send, in target-registration order. A
// nil/empty result means the frame was silently dropped.
func (e *Engine) handleFrame(ctx context.Context, raw []byte) [][]byte {
	req, err := aoe.ParseFrame(raw)
	if err != nil {
		if err == aoe.ErrDrop {
			return nil
		}
		rerr, ok := err.(*aoe.ResponseError)
		if !ok {
			return nil
		}
		resp, buildErr := aoe.BuildErrorResponse(rerr.Frame, rerr.Frame.Header.Shelf, rerr.Frame.Header.Slot, rerr.Code)
		if buildErr != nil {
			e.logger().Error("failed to build error response", zap.Error(buildErr))
			return nil
		}
		return [][]byte{resp}
	}

	entries := e.Targets.Resolve(req.Header.Shelf, req.Header.Slot)
	if len(entries) == 0 {
		// No matching target: normal for broadcast traffic, not an error.
		return nil
	}

	responses := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		var resp []byte
		var err error
		switch req.Header.Command {
		case aoe.CommandATA:
			resp, err = e.dispatchATA(ctx, req, entry)
		case aoe.CommandConfig:
			resp, err = e.dispatchConfig(req, entry)
		}
		if err != nil {
			e.logger().Error("failed to build response frame",
				zap.Uint16("shelf", entry.Shelf), zap.Uint8("slot", entry.Slot), zap.Error(err))
			continue
		}
		if resp != nil {
			responses = append(responses, resp)
		}
	}
	return responses
}

func (e *Engine) ataError(req *aoe.Frame, entry target.Entry, code aoe.Error) ([]byte, error) {
	return aoe.BuildErrorResponse(req, entry.Shelf, entry.Slot, code)
}

// dispatchATA handles the ATA command class: LBA28/LBA48 decode, the
// sector-count-zero legacy-maximum rule, range checking, and the seven
// honored ATA command opcodes.
func (e *Engine) dispatchATA(ctx context.Context, req *aoe.Frame, entry target.Entry) ([]byte, error) {
	ata := req.ATA
	info := entry.Storage.Info()

	if ata.HasLBA48Overflow() {
		return e.ataError(req, entry, aoe.ErrBadArgument)
	}

	var lba uint64
	if ata.FlagExtendedLBA48 {
		lba = ata.LBA48Value()
	} else {
		lba = uint64(ata.LBA28Value())
	}

	sectorCount := uint64(ata.SectorCount)
	if sectorCount == 0 {
		if ata.FlagExtendedLBA48 {
			sectorCount = 65536
		} else {
			sectorCount = 256
		}
	}

	switch ata.CmdStatus {
	case aoe.ATACmdReadSectors, aoe.ATACmdReadSectorsExt:
		if sectorCount > e.maxSectorsPerOp() || !info.InRange(lba, sectorCount) {
			return e.ataError(req, entry, aoe.ErrBadArgument)
		}
		data, err := entry.Storage.Read(ctx, lba, sectorCount)
		if err != nil {
			e.logger().Error("read failed", zap.Uint16("shelf", entry.Shelf), zap.Uint8("slot", entry.Slot), zap.Error(err))
			return e.ataError(req, entry, aoe.ErrDeviceUnavailable)
		}
		return aoe.BuildATAResponse(req, entry.Shelf, entry.Slot, &aoe.ATAHeader{
			FlagExtendedLBA48: ata.FlagExtendedLBA48,
			SectorCount:       ata.SectorCount,
			CmdStatus:         aoe.StatusDRDY,
			LBA:               ata.LBA,
			Data:              data,
		}, 0)

	case aoe.ATACmdWriteSectors, aoe.ATACmdWriteSectorsExt:
		if sectorCount > e.maxSectorsPerOp() || !info.InRange(lba, sectorCount) {
			return e.ataError(req, entry, aoe.ErrBadArgument)
		}
		if uint64(len(ata.Data)) != sectorCount*uint64(info.SectorSize) {
			return e.ataError(req, entry, aoe.ErrBadArgument)
		}
		if err := entry.Storage.Write(ctx, lba, ata.Data); err != nil {
			e.logger().Error("write failed", zap.Uint16("shelf", entry.Shelf), zap.Uint8("slot", entry.Slot), zap.Error(err))
			return e.ataError(req, entry, aoe.ErrDeviceUnavailable)
		}
		return aoe.BuildATAResponse(req, entry.Shelf, entry.Slot, &aoe.ATAHeader{
			FlagExtendedLBA48: ata.FlagExtendedLBA48,
			SectorCount:       ata.SectorCount,
			CmdStatus:         aoe.StatusDRDY,
			LBA:               ata.LBA,
		}, 0)

	case aoe.ATACmdIdentifyDevice:
		return aoe.BuildATAResponse(req, entry.Shelf, entry.Slot, &aoe.ATAHeader{
			FlagExtendedLBA48: ata.FlagExtendedLBA48,
			SectorCount:       1,
			CmdStatus:         aoe.StatusDRDY,
			Data:              aoe.BuildIdentifyDevice(info),
		}, 0)

	case aoe.ATACmdFlushCache, aoe.ATACmdFlushCacheExt:
		if err := entry.Storage.Flush(ctx); err != nil {
			e.logger().Error("flush failed", zap.Uint16("shelf", entry.Shelf), zap.Uint8("slot", entry.Slot), zap.Error(err))
			return e.ataError(req, entry, aoe.ErrDeviceUnavailable)
		}
		return aoe.BuildATAResponse(req, entry.Shelf, entry.Slot, &aoe.ATAHeader{
			FlagExtendedLBA48: ata.FlagExtendedLBA48,
			CmdStatus:         aoe.StatusDRDY,
			LBA:               ata.LBA,
		}, 0)

	default:
		return e.ataError(req, entry, aoe.ErrUnrecognizedCommand)
	}
}

// dispatchConfig handles the Config command class: the five config
// sub-commands, each operating on the addressed target's stored AoE
// config string.
func (e *Engine) dispatchConfig(req *aoe.Frame, entry target.Entry) ([]byte, error) {
	cfg := req.Config
	stored := entry.ConfigString()

	result := stored
	switch cfg.Command {
	case aoe.ConfigCommandRead:
		// result is already stored.

	case aoe.ConfigCommandTestExact:
		if !bytes.Equal(stored, cfg.String) {
			return aoe.BuildErrorResponse(req, entry.Shelf, entry.Slot, aoe.ErrConfigStringMismatch)
		}

	case aoe.ConfigCommandTestPrefix:
		if !bytes.HasPrefix(stored, cfg.String) {
			return aoe.BuildErrorResponse(req, entry.Shelf, entry.Slot, aoe.ErrConfigStringMismatch)
		}

	case aoe.ConfigCommandSet:
		if len(stored) != 0 {
			return aoe.BuildErrorResponse(req, entry.Shelf, entry.Slot, aoe.ErrConfigStringMismatch)
		}
		entry.SetConfigString(cfg.String)
		result = cfg.String

	case aoe.ConfigCommandForceSet:
		entry.SetConfigString(cfg.String)
		result = cfg.String

	default:
		return aoe.BuildErrorResponse(req, entry.Shelf, entry.Slot, aoe.ErrUnrecognizedCommand)
	}

	return aoe.BuildConfigResponse(req, entry.Shelf, entry.Slot, &aoe.ConfigHeader{
		BufferCount:     cfg.BufferCount,
		FirmwareVersion: cfg.FirmwareVersion,
		SectorCount:     cfg.SectorCount,
		Version:         cfg.Version,
		Command:         cfg.Command,
		String:          result,
	})
}
