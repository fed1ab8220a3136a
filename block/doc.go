// Package block defines the data model shared by the blobstore, merkle,
// storage, and target packages: content hashes, device identity, and the
// sector-addressing arithmetic that every backend must agree on.
package block // import "github.com/chronos-tachyon/aoe-cas/block"
