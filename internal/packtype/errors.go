package packtype

import "errors"

// Sentinel errors for archive operations.
var (
	// ErrCorruptHeader is returned when the header signature or its
	// redundant fields do not form a valid archive header.
	ErrCorruptHeader = errors.New("mabipack: corrupt header")

	// ErrUnsupportedVersion is returned when the header is recognized but
	// names a format revision with no implemented strategy.
	ErrUnsupportedVersion = errors.New("mabipack: unsupported format version")

	// ErrTruncatedTable is returned when the file ends before the declared
	// directory table does.
	ErrTruncatedTable = errors.New("mabipack: truncated directory table")

	// ErrCorruptTable is returned when a table record cannot be decoded.
	ErrCorruptTable = errors.New("mabipack: corrupt directory table")

	// ErrDuplicatePath is returned when two inputs share a relative path.
	ErrDuplicatePath = errors.New("mabipack: duplicate path")

	// ErrChecksumMismatch is returned when an entry's stored bytes do not
	// match its recorded checksum.
	ErrChecksumMismatch = errors.New("mabipack: checksum mismatch")

	// ErrDecode is returned when a stored payload is structurally broken
	// and cannot be decompressed.
	ErrDecode = errors.New("mabipack: decode failure")

	// ErrInvalidFilterPattern is returned when a filter pattern does not
	// compile.
	ErrInvalidFilterPattern = errors.New("mabipack: invalid filter pattern")
)
