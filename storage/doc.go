// Package storage implements the block-storage contract every backend
// must satisfy (BlockStorage), its optional archival extension
// (Archival), and two concrete backends: the content-addressed
// CASBackend and the plain FileBackend.
package storage // import "github.com/chronos-tachyon/aoe-cas/storage"
