// Package aoe implements the ATA-over-Ethernet wire format: frame parsing,
// header marshaling, and response-frame construction. It knows nothing
// about storage or target routing; see package server for the dispatch
// loop that drives this package against a target.Manager.
package aoe // import "github.com/chronos-tachyon/aoe-cas/aoe"
