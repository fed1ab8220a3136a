// Package merkle implements the fixed-depth, content-addressed index that
// maps a logical sector index to a data-block hash via a single root hash.
// Interior "pointer blocks" hold child hashes; leaves are data-sector
// hashes. The tree is logically complete but physically sparse: zero
// hashes never descend and never allocate a blob.
package merkle // import "github.com/chronos-tachyon/aoe-cas/merkle"
