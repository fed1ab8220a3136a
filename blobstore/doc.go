// Package blobstore implements a content-addressed key/value layer: put
// is idempotent for identical content, get verifies the stored bytes
// rehash to the requested key, and exists is a cheap filesystem check.
package blobstore // import "github.com/chronos-tachyon/aoe-cas/blobstore"
