package server // import "github.com/chronos-tachyon/aoe-cas/server"

import (
	"context"
	"net"

	"github.com/mdlayher/raw"
)

// FrameSource is the boundary the engine reads requests from: it yields
// raw Ethernet frames with the 14-byte L2 header intact. Per spec, no
// filtering beyond destination-MAC/broadcast delivery is assumed of the
// source; EtherType and AoE-level filtering happen inside Engine via the
// aoe package.
type FrameSource interface {
	Receive(ctx context.Context) ([]byte, error)
}

// FrameSink is the boundary the engine writes responses to: it accepts a
// full raw Ethernet frame and sends it as given.
type FrameSink interface {
	Send(ctx context.Context, frame []byte) error
}

// RawConn adapts a github.com/mdlayher/raw.Conn (bound to an EtherType via
// raw.ListenPacket) into FrameSource and FrameSink, the way
// mdlayher/aoe's Server.Serve reads raw frames from a net.PacketConn.
// This binding is explicitly out of core scope per spec; it exists only
// so cmd/aoecasd has a concrete source/sink to construct an Engine with.
type RawConn struct {
	conn    *raw.Conn
	maxSize int
}

// NewRawConn wraps conn. maxSize bounds the buffer used for each read; a
// value <= 0 uses a 65535-byte buffer, large enough for any AoE frame
// this engine emits.
func NewRawConn(conn *raw.Conn, maxSize int) *RawConn {
	if maxSize <= 0 {
		maxSize = 65535
	}
	return &RawConn{conn: conn, maxSize: maxSize}
}

// Receive implements FrameSource.
func (c *RawConn) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	buf := make([]byte, c.maxSize)
	n, _, err := c.conn.ReadFrom(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Send implements FrameSink. The destination hardware address is already
// encoded in frame's Ethernet header (bytes 0-5); raw.Addr only needs to
// repeat it for the underlying AF_PACKET sendto.
func (c *RawConn) Send(ctx context.Context, frame []byte) error {
	if len(frame) < 6 {
		return nil
	}
	dst := net.HardwareAddr(frame[0:6])
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	_, err := c.conn.WriteTo(frame, &raw.Addr{HardwareAddr: dst})
	return err
}

// Close closes the underlying raw.Conn.
func (c *RawConn) Close() error {
	return c.conn.Close()
}
