// Package format implements the on-disk pack revisions.
//
// Each revision is a self-contained Strategy value covering the exact byte
// layout of its header and directory table plus the payload transform for
// its stored bytes. Strategies are selected once, by revision key, when an
// archive is opened or a pack is started; the revision table is fixed at
// build time and never mutated.
package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/regomne/mabipack/internal/packtype"
)

// Magic is the little-endian u32 form of the "PACK" signature.
const Magic = 0x4b434150

// Revision keys for the implemented strategies.
const (
	RevisionClassic uint32 = 0x102
	RevisionV2      uint32 = 0x200
)

// Header is the decoded, revision-independent view of a pack header.
type Header struct {
	Revision   uint32
	Version    uint32 // content version key supplied at pack time
	EntryCount uint32
	TableSize  uint64
	DataSize   uint64
}

// Strategy is one on-disk format revision.
//
// DecodeTable returns entries with absolute data offsets; EncodeTable
// expects them the same way and converts back to the revision's relative
// encoding. Seal applies the revision's stored-byte transform in place
// after compression; OpenStored reverses the full transform incrementally.
type Strategy interface {
	Revision() uint32
	HeaderSize() int64

	DecodeHeader(b []byte) (Header, error)
	EncodeHeader(h Header) ([]byte, error)

	TableSize(entries []packtype.Entry) (uint64, error)
	DecodeTable(b []byte, h Header) ([]packtype.Entry, error)
	EncodeTable(entries []packtype.Entry, h Header) ([]byte, error)

	NewHash() hash.Hash
	Compress(raw []byte) ([]byte, error)
	Seal(stored []byte, version uint32)
	OpenStored(stored io.Reader, e *packtype.Entry) (io.ReadCloser, error)
}

var revisions = map[uint32]Strategy{
	RevisionClassic: classicStrategy{},
	RevisionV2:      v2Strategy{},
}

// Lookup returns the strategy for a revision key.
func Lookup(revision uint32) (Strategy, bool) {
	s, ok := revisions[revision]
	return s, ok
}

// Detect reads the signature of an archive and selects its strategy.
func Detect(r io.ReaderAt, size int64) (Strategy, error) {
	var sig [8]byte
	if size < int64(len(sig)) {
		return nil, fmt.Errorf("%w: %d byte file", packtype.ErrCorruptHeader, size)
	}
	if _, err := r.ReadAt(sig[:], 0); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(sig[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad signature", packtype.ErrCorruptHeader)
	}
	revision := binary.LittleEndian.Uint32(sig[4:])
	s, ok := Lookup(revision)
	if !ok {
		return nil, fmt.Errorf("%w: revision %#x", packtype.ErrUnsupportedVersion, revision)
	}
	return s, nil
}

// trackReader remembers the last error surfaced by the underlying source so
// that decoder errors can be told apart from plain I/O failures.
type trackReader struct {
	r   io.Reader
	err error
}

func (t *trackReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

// decodeReadCloser converts structural decoder errors into ErrDecode while
// letting source I/O errors pass through unchanged.
type decodeReadCloser struct {
	rc    io.ReadCloser
	track *trackReader
}

func (d *decodeReadCloser) Read(p []byte) (int, error) {
	n, err := d.rc.Read(p)
	if err != nil && err != io.EOF {
		err = classifyDecodeErr(d.track, err)
	}
	return n, err
}

func (d *decodeReadCloser) Close() error {
	return d.rc.Close()
}

func classifyDecodeErr(track *trackReader, err error) error {
	if track.err != nil && errors.Is(err, track.err) {
		return err
	}
	if errors.Is(err, packtype.ErrDecode) {
		return err
	}
	return fmt.Errorf("%w: %v", packtype.ErrDecode, err)
}
