package mabipack

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/regomne/mabipack/internal/format"
	"github.com/regomne/mabipack/internal/packtype"
)

// Re-export entry types so callers do not import internal packages.
type (
	// Entry represents one packed file inside an archive.
	Entry = packtype.Entry

	// Compression identifies how an entry's payload is stored.
	Compression = packtype.Compression
)

// Re-export compression constants.
const (
	CompressionRaw    = packtype.CompressionRaw
	CompressionPacked = packtype.CompressionPacked
)

// Supported format revision keys.
const (
	RevisionClassic = format.RevisionClassic
	RevisionV2      = format.RevisionV2
)

// Archive is the decoded view of one pack file.
//
// The directory table is decoded once at open time; listing and entry reads
// are served from it. Entry reads go through ReadAt and are safe to run
// concurrently for distinct entries.
type Archive struct {
	src     io.ReaderAt
	size    int64
	closer  io.Closer
	strat   format.Strategy
	header  format.Header
	entries []Entry
	byPath  map[string]int
	logger  *slog.Logger
}

// Option configures an Archive while it is being opened.
type Option func(*Archive)

// WithLogger sets the logger used for debug output. The default discards
// everything.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = l
	}
}

func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open opens the archive at path and decodes its directory table.
//
// The file handle is owned by the returned Archive and released by Close;
// it is also released when Open itself fails partway.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := NewArchive(f, info.Size(), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// NewArchive decodes an archive from an in-memory or caller-owned source.
// The source must remain valid for the lifetime of the Archive.
func NewArchive(r io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	a := &Archive{src: r, size: size}
	for _, opt := range opts {
		opt(a)
	}

	strat, err := format.Detect(r, size)
	if err != nil {
		return nil, err
	}
	a.strat = strat

	headerBuf := make([]byte, strat.HeaderSize())
	if _, err := r.ReadAt(headerBuf, 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short header", ErrCorruptHeader)
		}
		return nil, err
	}
	h, err := strat.DecodeHeader(headerBuf)
	if err != nil {
		return nil, err
	}
	a.header = h

	// size >= HeaderSize held for the header read above, so the
	// subtraction cannot wrap; comparing this way keeps a hostile
	// TableSize near 2^64 from overflowing the bound itself.
	if h.TableSize > uint64(size)-uint64(strat.HeaderSize()) {
		return nil, fmt.Errorf("%w: table of %d bytes past end of file", ErrTruncatedTable, h.TableSize)
	}
	tableBuf := make([]byte, h.TableSize)
	if h.TableSize > 0 {
		if _, err := r.ReadAt(tableBuf, strat.HeaderSize()); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: short table read", ErrTruncatedTable)
			}
			return nil, err
		}
	}
	entries, err := strat.DecodeTable(tableBuf, h)
	if err != nil {
		return nil, err
	}

	a.byPath = make(map[string]int, len(entries))
	for i, e := range entries {
		if _, dup := a.byPath[e.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate path %s", ErrCorruptTable, e.Path)
		}
		if e.DataOffset+e.StoredSize > uint64(size) {
			return nil, fmt.Errorf("%w: %s: data past end of file", ErrCorruptTable, e.Path)
		}
		a.byPath[e.Path] = i
	}
	a.entries = entries

	a.log().Debug("archive opened",
		"revision", fmt.Sprintf("%#x", h.Revision),
		"version", h.Version,
		"entries", len(entries))
	return a, nil
}

// Revision returns the archive's format revision key.
func (a *Archive) Revision() uint32 {
	return a.header.Revision
}

// Version returns the content version key recorded in the header.
func (a *Archive) Version() uint32 {
	return a.header.Version
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entries returns the entries in on-disk table order.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Lookup returns the entry with the given archive-internal path.
func (a *Archive) Lookup(path string) (Entry, bool) {
	i, ok := a.byPath[path]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// OpenEntry returns a stream over one entry's decoded content. The stream
// is finite and not restartable; call OpenEntry again to re-read.
func (a *Archive) OpenEntry(e Entry) *File {
	return &File{archive: a, entry: e}
}

// OpenPath is OpenEntry by path.
func (a *Archive) OpenPath(path string) (*File, error) {
	e, ok := a.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("mabipack: no entry %s", path)
	}
	return a.OpenEntry(e), nil
}

// ReadEntry reads one entry's content fully, verifying its checksum.
func (a *Archive) ReadEntry(path string) ([]byte, error) {
	f, err := a.OpenPath(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data := make([]byte, 0, f.entry.UncompressedSize)
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		data = append(data, buf[:n]...)
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close releases the underlying file handle, if the Archive owns one.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	c := a.closer
	a.closer = nil
	return c.Close()
}
