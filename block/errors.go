package block // import "github.com/chronos-tachyon/aoe-cas/block"

import "fmt"

// Kind classifies a storage-layer failure for translation into an AoE
// error response, per the error taxonomy of spec section 7.
type Kind int

const (
	// KindIo is a plain I/O failure from the underlying device or
	// filesystem.
	KindIo Kind = iota
	// KindOutOfRange indicates an LBA/count that falls outside the
	// device's addressable range.
	KindOutOfRange
	// KindInvalidSectorCount indicates a sector count that is malformed
	// or exceeds the configured maximum.
	KindInvalidSectorCount
	// KindBackend is a generic backend failure (e.g. blob store
	// integrity failure) that is not classified more specifically.
	KindBackend
	// KindReadOnly indicates a write was attempted against a read-only
	// backend.
	KindReadOnly
)

func (k Kind) String() string {
	switch k {
	case KindIo:
		return "Io"
	case KindOutOfRange:
		return "OutOfRange"
	case KindInvalidSectorCount:
		return "InvalidSectorCount"
	case KindBackend:
		return "Backend"
	case KindReadOnly:
		return "ReadOnly"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the error type every storage.BlockStorage implementation
// returns on failure, carrying enough classification for the AoE engine
// to pick the right wire error code without inspecting backend-specific
// error types.
type Error struct {
	Kind  Kind
	Cause error
}

func (err Error) Error() string {
	if err.Cause == nil {
		return fmt.Sprintf("block: %v", err.Kind)
	}
	return fmt.Sprintf("block: %v: %v", err.Kind, err.Cause)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (err Error) Unwrap() error {
	return err.Cause
}

var _ error = Error{}

// NewError builds an Error of the given Kind wrapping cause.
func NewError(kind Kind, cause error) Error {
	return Error{Kind: kind, Cause: cause}
}
