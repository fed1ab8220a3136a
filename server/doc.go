// Package server implements the AoE Engine: the single-threaded frame
// loop that reads requests from a FrameSource, dispatches them through a
// target.Manager against the aoe wire-format package, and writes zero or
// more response frames to a FrameSink before reading the next request.
//
// The core depends only on the FrameSource/FrameSink interfaces; the
// concrete binding to a raw Ethernet device (RawConn, over
// github.com/mdlayher/raw) is confined to this package so that
// cmd/aoecasd is the only caller that needs a real network interface.
package server // import "github.com/chronos-tachyon/aoe-cas/server"
