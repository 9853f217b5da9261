// Package packtype defines shared types used across the mabipack package and
// its internal packages. This avoids circular imports between the root package
// and internal/format.
package packtype

import "time"

// Compression identifies how an entry's payload is stored.
//
// The concrete codec behind CompressionPacked depends on the archive
// revision (zlib for the classic format, zstd for v2).
type Compression uint8

const (
	CompressionRaw Compression = iota
	CompressionPacked
)

func (c Compression) String() string {
	switch c {
	case CompressionRaw:
		return "raw"
	case CompressionPacked:
		return "packed"
	default:
		return "unknown"
	}
}

// Entry represents one packed file inside an archive.
//
// Entries are immutable once placed into an archive's entry sequence.
// Paths use forward slashes in memory regardless of how the on-disk
// revision encodes them.
type Entry struct {
	// Path is the archive-internal relative path, unique per archive.
	Path string

	// Version is the content version key recorded for this entry. The
	// classic revision also derives its payload cipher seed from it.
	Version uint32

	// UncompressedSize is the decoded payload length in bytes.
	UncompressedSize uint64

	// StoredSize is the on-disk payload length in bytes.
	StoredSize uint64

	// DataOffset is the absolute byte offset of the stored payload
	// within the archive file.
	DataOffset uint64

	// Checksum is the digest over the stored bytes, or nil when the
	// record carries no checksum (archives written by the original tool).
	Checksum []byte

	// Compression indicates whether the stored payload must be decoded.
	Compression Compression

	// ModTime is the recorded modification time, or the zero value for
	// revisions that do not encode timestamps.
	ModTime time.Time
}
