package server

import (
	"bytes"
	"context"
	"testing"

	"github.com/mdlayher/ethernet"

	"github.com/chronos-tachyon/aoe-cas/aoe"
	"github.com/chronos-tachyon/aoe-cas/block"
	"github.com/chronos-tachyon/aoe-cas/storage"
	"github.com/chronos-tachyon/aoe-cas/target"
)

var (
	clientMAC = [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	targetMAC = [6]byte{0x00, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
)

// fakeStorage is an in-memory BlockStorage used to exercise the engine's
// dispatch logic without a real backend.
type fakeStorage struct {
	info       block.DeviceInfo
	data       []byte
	flushCount int
	failRead   bool
	failWrite  bool
	failFlush  bool
}

func (f *fakeStorage) Info() block.DeviceInfo { return f.info }

func (f *fakeStorage) Read(ctx context.Context, lba uint64, count uint64) ([]byte, error) {
	if f.failRead {
		return nil, block.NewError(block.KindIo, errTestFailure)
	}
	size := count * uint64(f.info.SectorSize)
	start := lba * uint64(f.info.SectorSize)
	out := make([]byte, size)
	copy(out, f.data[start:start+size])
	return out, nil
}

func (f *fakeStorage) Write(ctx context.Context, lba uint64, data []byte) error {
	if f.failWrite {
		return block.NewError(block.KindIo, errTestFailure)
	}
	start := lba * uint64(f.info.SectorSize)
	copy(f.data[start:], data)
	return nil
}

func (f *fakeStorage) Flush(ctx context.Context) error {
	if f.failFlush {
		return block.NewError(block.KindIo, errTestFailure)
	}
	f.flushCount++
	return nil
}

var errTestFailure = errTest("simulated backend failure")

type errTest string

func (e errTest) Error() string { return string(e) }

func newTestManager(t *testing.T, shelf uint16, slot uint8, s storage.BlockStorage) *target.Manager {
	t.Helper()
	m := target.New()
	if err := m.Register(shelf, slot, s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	m.Seal()
	return m
}

func buildRequest(t *testing.T, h aoe.Header, body []byte) []byte {
	t.Helper()
	hb, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("Header.MarshalBinary: %v", err)
	}
	eth := ethernet.Frame{
		Destination: targetMAC[:],
		Source:      clientMAC[:],
		EtherType:   aoe.EtherType,
		Payload:     append(hb, body...),
	}
	raw, err := eth.MarshalBinary()
	if err != nil {
		t.Fatalf("ethernet.Frame.MarshalBinary: %v", err)
	}
	return raw
}

// parseResponse decodes a response frame built by the aoe package's own
// Build* functions, bypassing aoe.ParseFrame's request-only FlagResponse
// check.
func parseResponse(t *testing.T, raw []byte) *aoe.Frame {
	t.Helper()
	var eth ethernet.Frame
	if err := (&eth).UnmarshalBinary(raw); err != nil {
		t.Fatalf("ethernet.Frame.UnmarshalBinary: %v", err)
	}
	var h aoe.Header
	if err := h.UnmarshalBinary(eth.Payload[:10]); err != nil {
		t.Fatalf("Header.UnmarshalBinary: %v", err)
	}
	frame := &aoe.Frame{Destination: eth.Destination, Source: eth.Source, Header: h}
	body := eth.Payload[10:]
	switch h.Command {
	case aoe.CommandATA:
		if len(body) >= 12 {
			var ata aoe.ATAHeader
			if err := ata.UnmarshalBinary(body); err != nil {
				t.Fatalf("ATAHeader.UnmarshalBinary: %v", err)
			}
			frame.ATA = &ata
		}
	case aoe.CommandConfig:
		if len(body) >= 8 {
			var cfg aoe.ConfigHeader
			if err := cfg.UnmarshalBinary(body); err != nil {
				t.Fatalf("ConfigHeader.UnmarshalBinary: %v", err)
			}
			frame.Config = &cfg
		}
	}
	return frame
}

func parseResponses(t *testing.T, frames [][]byte) []*aoe.Frame {
	t.Helper()
	out := make([]*aoe.Frame, len(frames))
	for i, raw := range frames {
		out[i] = parseResponse(t, raw)
	}
	return out
}

// TestEngineIdentifyDevice covers S4: an IDENTIFY DEVICE request returns a
// 512-byte ATA data payload.
func TestEngineIdentifyDevice(t *testing.T) {
	s := &fakeStorage{info: block.DeviceInfo{Model: "m", Serial: "s", Firmware: "f", TotalSectors: 1024, SectorSize: 512}}
	e := &Engine{Targets: newTestManager(t, 1, 1, s)}

	req := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandATA, Tag: 1},
		mustMarshalATA(t, aoe.ATAHeader{CmdStatus: aoe.ATACmdIdentifyDevice}))

	resps := e.handleFrame(context.Background(), req)
	if len(resps) != 1 {
		t.Fatalf("handleFrame returned %d responses, want 1", len(resps))
	}
	parsed := parseResponses(t, resps)
	if parsed[0].ATA == nil || len(parsed[0].ATA.Data) != 512 {
		t.Fatalf("expected a 512-byte IDENTIFY DEVICE payload, got %+v", parsed[0].ATA)
	}
	if parsed[0].Header.FlagError {
		t.Error("IDENTIFY DEVICE should not produce an error response")
	}
}

// TestEngineReadOutOfRange covers S5: an out-of-range READ SECTORS EXT
// yields ErrBadArgument (code 2) and no data payload.
func TestEngineReadOutOfRange(t *testing.T) {
	s := &fakeStorage{info: block.DeviceInfo{TotalSectors: 100, SectorSize: 512}, data: make([]byte, 100*512)}
	e := &Engine{Targets: newTestManager(t, 1, 1, s)}

	req := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandATA, Tag: 2},
		mustMarshalATA(t, aoe.ATAHeader{FlagExtendedLBA48: true, CmdStatus: aoe.ATACmdReadSectorsExt, SectorCount: 1, LBA: 99999}))

	resps := e.handleFrame(context.Background(), req)
	if len(resps) != 1 {
		t.Fatalf("handleFrame returned %d responses, want 1", len(resps))
	}
	parsed := parseResponses(t, resps)
	if !parsed[0].Header.FlagError || parsed[0].Header.Error != aoe.ErrBadArgument {
		t.Errorf("expected ErrBadArgument, got FlagError=%v Error=%v", parsed[0].Header.FlagError, parsed[0].Header.Error)
	}
	if len(parsed[0].ATA.Data) != 0 {
		t.Errorf("error response must omit data payload, got %d bytes", len(parsed[0].ATA.Data))
	}
}

func TestEngineReadWriteRoundTrip(t *testing.T) {
	s := &fakeStorage{info: block.DeviceInfo{TotalSectors: 100, SectorSize: 512}, data: make([]byte, 100*512)}
	e := &Engine{Targets: newTestManager(t, 1, 1, s)}

	payload := bytes.Repeat([]byte{0x5A}, 512)
	writeReq := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandATA, Tag: 3},
		mustMarshalATA(t, aoe.ATAHeader{CmdStatus: aoe.ATACmdWriteSectors, SectorCount: 1, LBA: 5, Data: payload}))
	resps := e.handleFrame(context.Background(), writeReq)
	parsed := parseResponses(t, resps)
	if len(parsed) != 1 || parsed[0].Header.FlagError {
		t.Fatalf("write failed: %+v", parsed)
	}

	readReq := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandATA, Tag: 4},
		mustMarshalATA(t, aoe.ATAHeader{CmdStatus: aoe.ATACmdReadSectors, SectorCount: 1, LBA: 5}))
	resps = e.handleFrame(context.Background(), readReq)
	parsed = parseResponses(t, resps)
	if len(parsed) != 1 || parsed[0].Header.FlagError {
		t.Fatalf("read failed: %+v", parsed)
	}
	if !bytes.Equal(parsed[0].ATA.Data, payload) {
		t.Errorf("read back %v, want %v", parsed[0].ATA.Data, payload)
	}
}

func TestEngineDeviceUnavailable(t *testing.T) {
	s := &fakeStorage{info: block.DeviceInfo{TotalSectors: 100, SectorSize: 512}, data: make([]byte, 100*512), failRead: true}
	e := &Engine{Targets: newTestManager(t, 1, 1, s)}

	req := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandATA, Tag: 5},
		mustMarshalATA(t, aoe.ATAHeader{CmdStatus: aoe.ATACmdReadSectors, SectorCount: 1, LBA: 0}))

	resps := e.handleFrame(context.Background(), req)
	parsed := parseResponses(t, resps)
	if len(parsed) != 1 || !parsed[0].Header.FlagError || parsed[0].Header.Error != aoe.ErrDeviceUnavailable {
		t.Fatalf("expected ErrDeviceUnavailable, got %+v", parsed)
	}
}

// TestEngineConfigSetThenRead covers S6: a Config Set sub-command stores
// the string, and it round-trips through a later Read sub-command.
func TestEngineConfigSetThenRead(t *testing.T) {
	s := &fakeStorage{info: block.DeviceInfo{TotalSectors: 1, SectorSize: 512}}
	e := &Engine{Targets: newTestManager(t, 1, 1, s)}

	setReq := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandConfig, Tag: 6},
		mustMarshalConfig(t, aoe.ConfigHeader{Command: aoe.ConfigCommandSet, String: []byte("my-config")}))
	resps := e.handleFrame(context.Background(), setReq)
	parsed := parseResponses(t, resps)
	if len(parsed) != 1 || parsed[0].Header.FlagError {
		t.Fatalf("Set failed: %+v", parsed)
	}

	readReq := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandConfig, Tag: 7},
		mustMarshalConfig(t, aoe.ConfigHeader{Command: aoe.ConfigCommandRead}))
	resps = e.handleFrame(context.Background(), readReq)
	parsed = parseResponses(t, resps)
	if len(parsed) != 1 || parsed[0].Header.FlagError {
		t.Fatalf("Read failed: %+v", parsed)
	}
	if !bytes.Equal(parsed[0].Config.String, []byte("my-config")) {
		t.Errorf("Config.String = %q, want %q", parsed[0].Config.String, "my-config")
	}

	// A second Set must fail: the stored string is no longer empty.
	setAgain := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandConfig, Tag: 8},
		mustMarshalConfig(t, aoe.ConfigHeader{Command: aoe.ConfigCommandSet, String: []byte("other")}))
	resps = e.handleFrame(context.Background(), setAgain)
	parsed = parseResponses(t, resps)
	if len(parsed) != 1 || !parsed[0].Header.FlagError || parsed[0].Header.Error != aoe.ErrConfigStringMismatch {
		t.Fatalf("expected ErrConfigStringMismatch on second Set, got %+v", parsed)
	}
}

// TestEngineBroadcastExpandsToEveryTarget covers property #9: a broadcast
// request yields one response per registered target, in registration
// order.
func TestEngineBroadcastExpandsToEveryTarget(t *testing.T) {
	m := target.New()
	for i, shelf := range []uint16{10, 20, 30} {
		s := &fakeStorage{info: block.DeviceInfo{TotalSectors: 1, SectorSize: 512}}
		if err := m.Register(shelf, uint8(i), s); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	m.Seal()
	e := &Engine{Targets: m}

	req := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: aoe.BroadcastShelf, Slot: aoe.BroadcastSlot, Command: aoe.CommandATA, Tag: 9},
		mustMarshalATA(t, aoe.ATAHeader{CmdStatus: aoe.ATACmdIdentifyDevice}))

	resps := e.handleFrame(context.Background(), req)
	if len(resps) != 3 {
		t.Fatalf("handleFrame returned %d responses, want 3", len(resps))
	}
	parsed := parseResponses(t, resps)
	wantShelves := []uint16{10, 20, 30}
	for i, f := range parsed {
		if f.Header.Shelf != wantShelves[i] {
			t.Errorf("response %d addressed shelf %d, want %d (registration order)", i, f.Header.Shelf, wantShelves[i])
		}
	}
}

func TestEngineUnrecognizedATACommand(t *testing.T) {
	s := &fakeStorage{info: block.DeviceInfo{TotalSectors: 1, SectorSize: 512}}
	e := &Engine{Targets: newTestManager(t, 1, 1, s)}

	req := buildRequest(t, aoe.Header{Version: aoe.Version, Shelf: 1, Slot: 1, Command: aoe.CommandATA, Tag: 10},
		mustMarshalATA(t, aoe.ATAHeader{CmdStatus: 0xFF}))

	resps := e.handleFrame(context.Background(), req)
	parsed := parseResponses(t, resps)
	if len(parsed) != 1 || !parsed[0].Header.FlagError || parsed[0].Header.Error != aoe.ErrUnrecognizedCommand {
		t.Fatalf("expected ErrUnrecognizedCommand, got %+v", parsed)
	}
}

func mustMarshalATA(t *testing.T, a aoe.ATAHeader) []byte {
	t.Helper()
	b, err := a.MarshalBinary()
	if err != nil {
		t.Fatalf("ATAHeader.MarshalBinary: %v", err)
	}
	return b
}

func mustMarshalConfig(t *testing.T, c aoe.ConfigHeader) []byte {
	t.Helper()
	b, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("ConfigHeader.MarshalBinary: %v", err)
	}
	return b
}
