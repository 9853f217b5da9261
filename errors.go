package mabipack

import "github.com/regomne/mabipack/internal/packtype"

// Sentinel errors re-exported from internal/packtype.
var (
	// ErrCorruptHeader is returned when the header signature or its
	// redundant fields do not form a valid archive header.
	ErrCorruptHeader = packtype.ErrCorruptHeader

	// ErrUnsupportedVersion is returned when the header is recognized but
	// names a format revision with no implemented strategy.
	ErrUnsupportedVersion = packtype.ErrUnsupportedVersion

	// ErrTruncatedTable is returned when the file ends before the declared
	// directory table does.
	ErrTruncatedTable = packtype.ErrTruncatedTable

	// ErrCorruptTable is returned when a table record cannot be decoded.
	ErrCorruptTable = packtype.ErrCorruptTable

	// ErrDuplicatePath is returned when two pack inputs share a relative path.
	ErrDuplicatePath = packtype.ErrDuplicatePath

	// ErrChecksumMismatch is returned when an entry's stored bytes do not
	// match its recorded checksum.
	ErrChecksumMismatch = packtype.ErrChecksumMismatch

	// ErrDecode is returned when a stored payload is structurally broken
	// and cannot be decompressed.
	ErrDecode = packtype.ErrDecode

	// ErrInvalidFilterPattern is returned when a filter pattern does not
	// compile.
	ErrInvalidFilterPattern = packtype.ErrInvalidFilterPattern
)

// EntryError records a per-entry extraction failure.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
