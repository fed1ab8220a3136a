package storage // import "github.com/chronos-tachyon/aoe-cas/storage"

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io/ioutil"
)

// Sector-encoding discriminant: the first byte of every data block stored
// in the blob store says whether the remaining bytes are raw or
// compressed, so that the decoder needs nothing but the bytes themselves
// to recover the original sector.
const (
	discriminantRaw        byte = 0x00
	discriminantCompressed byte = 0x01
)

// encodeSector returns the bytes that should be stored for a sector's raw
// payload. If compress is true and the DEFLATE encoding of payload is
// strictly smaller than payload itself, the compressed form (with the
// compressed discriminant) is returned; otherwise the raw form is
// returned with the raw discriminant. Whichever form is returned fixes
// the sector's content hash.
func encodeSector(payload []byte, compress bool) []byte {
	if compress {
		if compressed := deflate(payload); len(compressed) < len(payload) {
			return append([]byte{discriminantCompressed}, compressed...)
		}
	}
	return append([]byte{discriminantRaw}, payload...)
}

// decodeSector reverses encodeSector, verifying the result is exactly
// sectorSize bytes.
func decodeSector(stored []byte, sectorSize uint32) ([]byte, error) {
	if len(stored) < 1 {
		return nil, fmt.Errorf("storage: stored sector is empty, missing discriminant byte")
	}
	discriminant, payload := stored[0], stored[1:]

	var raw []byte
	switch discriminant {
	case discriminantRaw:
		raw = payload
	case discriminantCompressed:
		var err error
		raw, err = inflate(payload)
		if err != nil {
			return nil, fmt.Errorf("storage: failed to decompress sector: %w", err)
		}
	default:
		return nil, fmt.Errorf("storage: unknown sector discriminant %#02x", discriminant)
	}

	if uint32(len(raw)) != sectorSize {
		return nil, fmt.Errorf("storage: decoded sector is %d bytes, want %d", len(raw), sectorSize)
	}
	return raw, nil
}

func deflate(payload []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	_, _ = w.Write(payload)
	_ = w.Close()
	return buf.Bytes()
}

func inflate(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	return ioutil.ReadAll(r)
}

// isAllZero reports whether every byte of b is zero.
func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
