package block // import "github.com/chronos-tachyon/aoe-cas/block"

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HashSize is the length in bytes of a Hash.
const HashSize = 32

// Hash is the content address of a stored blob: the hash of its exact
// bytes. The all-zero Hash is the sentinel for "unwritten/sparse".
type Hash [HashSize]byte

// ZeroHash is the sentinel value meaning "unwritten/sparse".
var ZeroHash Hash

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String renders h as lowercase hex, used only at the external snapshot
// interface.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashBytes computes the content hash of data using a 32-byte SHAKE128
// XOF read.
func HashBytes(data []byte) Hash {
	var h Hash
	shake := sha3.NewShake128()
	shake.Write(data)
	shake.Read(h[:])
	return h
}

// ParseHash decodes the hex representation of a Hash, used only at the
// external snapshot restore-by-id contract.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, HashParseError{Input: s, Cause: fmt.Errorf("expected length %d, got length %d", HashSize*2, len(s))}
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, HashParseError{Input: s, Cause: err}
	}
	copy(h[:], raw)
	return h, nil
}

// HashParseError is returned by ParseHash when s is not a well-formed Hash.
type HashParseError struct {
	Input string
	Cause error
}

func (err HashParseError) Error() string {
	return fmt.Sprintf("block: failed to parse %q as Hash: %v", err.Input, err.Cause)
}
