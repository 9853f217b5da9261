package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"

	"github.com/regomne/mabipack/internal/mt19937"
	"github.com/regomne/mabipack/internal/packtype"
)

// Classic revision 0x102, the layout used by the game client.
//
// Header is 0x220 bytes. Table records are a padded name block followed by
// 0x40 bytes of fixed fields. Payloads are zlib-compressed (or raw) and
// XORed with an MT19937 keystream seeded from the entry's version key.
const (
	classicHeaderSize = 0x220
	classicRecordTail = 0x40

	cipherSeedXor = 0xa9c36de1
)

type classicStrategy struct{}

func (classicStrategy) Revision() uint32  { return RevisionClassic }
func (classicStrategy) HeaderSize() int64 { return classicHeaderSize }

func (classicStrategy) DecodeHeader(b []byte) (Header, error) {
	if len(b) < classicHeaderSize {
		return Header{}, fmt.Errorf("%w: short header", packtype.ErrCorruptHeader)
	}
	le := binary.LittleEndian
	if le.Uint32(b[0:]) != Magic || le.Uint32(b[4:]) != RevisionClassic {
		return Header{}, fmt.Errorf("%w: bad signature", packtype.ErrCorruptHeader)
	}
	count := le.Uint32(b[0xc:])
	// The count is stored twice; a mismatch means the header region was
	// overwritten or truncated mid-write.
	if le.Uint32(b[0x200:]) != count {
		return Header{}, fmt.Errorf("%w: entry count mismatch", packtype.ErrCorruptHeader)
	}
	return Header{
		Revision:   RevisionClassic,
		Version:    le.Uint32(b[0x8:]),
		EntryCount: count,
		TableSize:  uint64(le.Uint32(b[0x204:])),
		DataSize:   uint64(le.Uint32(b[0x20c:])),
	}, nil
}

func (classicStrategy) EncodeHeader(h Header) ([]byte, error) {
	if h.TableSize > math.MaxUint32 || h.DataSize > math.MaxUint32 {
		return nil, fmt.Errorf("archive too large for classic revision")
	}
	b := make([]byte, classicHeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], Magic)
	le.PutUint32(b[4:], RevisionClassic)
	le.PutUint32(b[0x8:], h.Version)
	le.PutUint32(b[0xc:], h.EntryCount)
	// Bytes 0x10..0x1f hold two archive FILETIMEs in client-written packs.
	// They stay zero here so identical inputs produce identical bytes.
	copy(b[0x20:], "data\\")
	le.PutUint32(b[0x200:], h.EntryCount)
	le.PutUint32(b[0x204:], uint32(h.TableSize))
	le.PutUint32(b[0x20c:], uint32(h.DataSize))
	return b, nil
}

// nameBlockSize returns the total padded size of a name block (lead byte and
// optional length word included) and the lead byte for a path of l bytes.
func nameBlockSize(l int) (int, byte) {
	switch {
	case l <= 14:
		return 16, 0
	case l <= 30:
		return 32, 1
	case l <= 46:
		return 48, 2
	case l <= 62:
		return 64, 3
	case l <= 94:
		return 96, 4
	default:
		return (l + 21) / 16 * 16, 5
	}
}

func (classicStrategy) TableSize(entries []packtype.Entry) (uint64, error) {
	var total uint64
	for _, e := range entries {
		block, _ := nameBlockSize(len(e.Path))
		total += uint64(block) + classicRecordTail
	}
	if total > math.MaxUint32 {
		return 0, fmt.Errorf("directory table too large for classic revision")
	}
	return total, nil
}

func (classicStrategy) DecodeTable(b []byte, h Header) ([]packtype.Entry, error) {
	le := binary.LittleEndian
	dataStart := classicHeaderSize + h.TableSize
	// The count comes from the untrusted header; every record occupies at
	// least a minimal name block plus the fixed tail, so the table length
	// bounds how many can actually be present.
	maxRecords := uint64(len(b) / (16 + classicRecordTail))
	entries := make([]packtype.Entry, 0, min(uint64(h.EntryCount), maxRecords))
	pos := 0
	for i := uint32(0); i < h.EntryCount; i++ {
		if pos >= len(b) {
			return nil, fmt.Errorf("%w: %d of %d records", packtype.ErrTruncatedTable, i, h.EntryCount)
		}
		lead := b[pos]
		pos++
		var strN int
		switch {
		case lead <= 3:
			strN = (int(lead)+1)*16 - 1
		case lead == 4:
			strN = 6*16 - 1
		case lead == 5:
			if pos+4 > len(b) {
				return nil, fmt.Errorf("%w: %d of %d records", packtype.ErrTruncatedTable, i, h.EntryCount)
			}
			strN = int(le.Uint32(b[pos:]))
			pos += 4
		default:
			return nil, fmt.Errorf("%w: record %d: name block lead %#x", packtype.ErrCorruptTable, i, lead)
		}
		if pos+strN+classicRecordTail > len(b) {
			return nil, fmt.Errorf("%w: %d of %d records", packtype.ErrTruncatedTable, i, h.EntryCount)
		}
		name := b[pos : pos+strN]
		pos += strN
		nul := bytes.IndexByte(name, 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: record %d: unterminated name", packtype.ErrCorruptTable, i)
		}
		path := string(name[:nul])
		if !utf8.ValidString(path) {
			return nil, fmt.Errorf("%w: record %d: name is not valid UTF-8", packtype.ErrCorruptTable, i)
		}

		version := le.Uint32(b[pos:])
		crc := le.Uint32(b[pos+4:])
		off := le.Uint32(b[pos+8:])
		stored := le.Uint32(b[pos+12:])
		uncompressed := le.Uint32(b[pos+16:])
		flag := le.Uint32(b[pos+20:])
		writeTime := le.Uint64(b[pos+24+24:])
		pos += classicRecordTail

		var compression packtype.Compression
		switch flag {
		case 0:
			compression = packtype.CompressionRaw
		case 1:
			compression = packtype.CompressionPacked
		default:
			return nil, fmt.Errorf("%w: record %d: compression flag %d", packtype.ErrCorruptTable, i, flag)
		}

		// A zero checksum marks records written by tools predating the
		// checksum field; verification is skipped for those entries.
		var checksum []byte
		if crc != 0 {
			checksum = make([]byte, 4)
			le.PutUint32(checksum, crc)
		}

		entries = append(entries, packtype.Entry{
			Path:             strings.ReplaceAll(path, `\`, "/"),
			Version:          version,
			UncompressedSize: uint64(uncompressed),
			StoredSize:       uint64(stored),
			DataOffset:       dataStart + uint64(off),
			Checksum:         checksum,
			Compression:      compression,
			ModTime:          filetimeToTime(writeTime),
		})
	}
	return entries, nil
}

func (s classicStrategy) EncodeTable(entries []packtype.Entry, h Header) ([]byte, error) {
	le := binary.LittleEndian
	dataStart := classicHeaderSize + h.TableSize
	var buf bytes.Buffer
	for _, e := range entries {
		name := strings.ReplaceAll(e.Path, "/", `\`)
		block, lead := nameBlockSize(len(name))
		buf.WriteByte(lead)
		used := 1
		if lead == 5 {
			var w [4]byte
			le.PutUint32(w[:], uint32(block-5))
			buf.Write(w[:])
			used += 4
		}
		buf.WriteString(name)
		used += len(name)
		for ; used < block; used++ {
			buf.WriteByte(0)
		}

		rel := e.DataOffset - dataStart
		if rel > math.MaxUint32 || e.StoredSize > math.MaxUint32 || e.UncompressedSize > math.MaxUint32 {
			return nil, fmt.Errorf("entry %s too large for classic revision", e.Path)
		}
		var crc uint32
		if len(e.Checksum) == 4 {
			crc = le.Uint32(e.Checksum)
		}
		var flag uint32
		if e.Compression == packtype.CompressionPacked {
			flag = 1
		}

		var fixed [classicRecordTail]byte
		le.PutUint32(fixed[0:], e.Version)
		le.PutUint32(fixed[4:], crc)
		le.PutUint32(fixed[8:], uint32(rel))
		le.PutUint32(fixed[12:], uint32(e.StoredSize))
		le.PutUint32(fixed[16:], uint32(e.UncompressedSize))
		le.PutUint32(fixed[20:], flag)
		// Five FILETIME slots: create, create, access, write, write. Only
		// one timestamp is carried, so it fills all of them.
		ft := timeToFiletime(e.ModTime)
		for slot := 0; slot < 5; slot++ {
			le.PutUint64(fixed[24+slot*8:], ft)
		}
		buf.Write(fixed[:])
	}
	return buf.Bytes(), nil
}

// crc32le presents a CRC32-IEEE digest in the little-endian byte order the
// classic table stores it in.
type crc32le struct {
	hash.Hash32
}

func (c crc32le) Sum(b []byte) []byte {
	s := c.Sum32()
	return append(b, byte(s), byte(s>>8), byte(s>>16), byte(s>>24))
}

func (classicStrategy) NewHash() hash.Hash {
	return crc32le{crc32.NewIEEE()}
}

func (classicStrategy) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cipherSeed(version uint32) uint32 {
	return (version << 7) ^ cipherSeedXor
}

func (classicStrategy) Seal(stored []byte, version uint32) {
	mt19937.New(cipherSeed(version)).XORKeyStream(stored, stored)
}

func (classicStrategy) OpenStored(stored io.Reader, e *packtype.Entry) (io.ReadCloser, error) {
	track := &trackReader{r: stored}
	plain := &xorReader{r: track, ks: mt19937.New(cipherSeed(e.Version))}
	if e.Compression == packtype.CompressionRaw {
		return io.NopCloser(plain), nil
	}
	zr, err := zlib.NewReader(plain)
	if err != nil {
		return nil, classifyDecodeErr(track, err)
	}
	return &decodeReadCloser{rc: zr, track: track}, nil
}

// xorReader strips the MT19937 keystream from stored bytes as they pass.
type xorReader struct {
	r  io.Reader
	ks *mt19937.Source
}

func (x *xorReader) Read(p []byte) (int, error) {
	n, err := x.r.Read(p)
	if n > 0 {
		x.ks.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// FILETIME is 100ns ticks since 1601-01-01 UTC.
const filetimeEpochDiff = 116444736000000000

func filetimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	return time.Unix(0, (int64(ft)-filetimeEpochDiff)*100).UTC()
}

func timeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + filetimeEpochDiff)
}
