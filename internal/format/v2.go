package format

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"math"
	"sync"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"

	"github.com/regomne/mabipack/internal/packtype"
)

// Revision 0x200, this port's own layout. 64-bit sizes, length-prefixed
// UTF-8 paths, zstd payloads, SHA-256 checksums, no cipher and no
// timestamps.
const (
	v2HeaderSize = 0x40

	// pathLen u16 + version u32 + flag u8 + pad[3] + offset u64 +
	// stored u64 + uncompressed u64 + sha256[32]
	v2RecordFixed = 2 + 4 + 1 + 3 + 8 + 8 + 8 + sha256.Size
)

type v2Strategy struct{}

func (v2Strategy) Revision() uint32  { return RevisionV2 }
func (v2Strategy) HeaderSize() int64 { return v2HeaderSize }

func (v2Strategy) DecodeHeader(b []byte) (Header, error) {
	if len(b) < v2HeaderSize {
		return Header{}, fmt.Errorf("%w: short header", packtype.ErrCorruptHeader)
	}
	le := binary.LittleEndian
	if le.Uint32(b[0:]) != Magic || le.Uint32(b[4:]) != RevisionV2 {
		return Header{}, fmt.Errorf("%w: bad signature", packtype.ErrCorruptHeader)
	}
	return Header{
		Revision:   RevisionV2,
		Version:    le.Uint32(b[0x8:]),
		EntryCount: le.Uint32(b[0xc:]),
		TableSize:  le.Uint64(b[0x10:]),
		DataSize:   le.Uint64(b[0x18:]),
	}, nil
}

func (v2Strategy) EncodeHeader(h Header) ([]byte, error) {
	b := make([]byte, v2HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], Magic)
	le.PutUint32(b[4:], RevisionV2)
	le.PutUint32(b[0x8:], h.Version)
	le.PutUint32(b[0xc:], h.EntryCount)
	le.PutUint64(b[0x10:], h.TableSize)
	le.PutUint64(b[0x18:], h.DataSize)
	return b, nil
}

func (v2Strategy) TableSize(entries []packtype.Entry) (uint64, error) {
	var total uint64
	for _, e := range entries {
		if len(e.Path) > math.MaxUint16 {
			return 0, fmt.Errorf("entry path too long: %d bytes", len(e.Path))
		}
		total += uint64(v2RecordFixed + len(e.Path))
	}
	return total, nil
}

func (v2Strategy) DecodeTable(b []byte, h Header) ([]packtype.Entry, error) {
	le := binary.LittleEndian
	dataStart := v2HeaderSize + h.TableSize
	// Bound the preallocation by what the table bytes can actually hold;
	// the header's count is untrusted.
	entries := make([]packtype.Entry, 0, min(uint64(h.EntryCount), uint64(len(b)/v2RecordFixed)))
	pos := 0
	for i := uint32(0); i < h.EntryCount; i++ {
		if pos+2 > len(b) {
			return nil, fmt.Errorf("%w: %d of %d records", packtype.ErrTruncatedTable, i, h.EntryCount)
		}
		pathLen := int(le.Uint16(b[pos:]))
		pos += 2
		if pos+pathLen+v2RecordFixed-2 > len(b) {
			return nil, fmt.Errorf("%w: %d of %d records", packtype.ErrTruncatedTable, i, h.EntryCount)
		}
		path := string(b[pos : pos+pathLen])
		if !utf8.ValidString(path) {
			return nil, fmt.Errorf("%w: record %d: path is not valid UTF-8", packtype.ErrCorruptTable, i)
		}
		pos += pathLen

		version := le.Uint32(b[pos:])
		flag := b[pos+4]
		off := le.Uint64(b[pos+8:])
		stored := le.Uint64(b[pos+16:])
		uncompressed := le.Uint64(b[pos+24:])
		checksum := make([]byte, sha256.Size)
		copy(checksum, b[pos+32:pos+32+sha256.Size])
		pos += v2RecordFixed - 2

		var compression packtype.Compression
		switch flag {
		case 0:
			compression = packtype.CompressionRaw
		case 1:
			compression = packtype.CompressionPacked
		default:
			return nil, fmt.Errorf("%w: record %d: compression flag %d", packtype.ErrCorruptTable, i, flag)
		}

		entries = append(entries, packtype.Entry{
			Path:             path,
			Version:          version,
			UncompressedSize: uncompressed,
			StoredSize:       stored,
			DataOffset:       dataStart + off,
			Checksum:         checksum,
			Compression:      compression,
		})
	}
	return entries, nil
}

func (v2Strategy) EncodeTable(entries []packtype.Entry, h Header) ([]byte, error) {
	le := binary.LittleEndian
	dataStart := v2HeaderSize + h.TableSize
	var buf bytes.Buffer
	for _, e := range entries {
		if len(e.Path) > math.MaxUint16 {
			return nil, fmt.Errorf("entry path too long: %s", e.Path)
		}
		if len(e.Checksum) != sha256.Size {
			return nil, fmt.Errorf("entry %s: checksum must be %d bytes", e.Path, sha256.Size)
		}
		var w [8]byte
		le.PutUint16(w[:2], uint16(len(e.Path)))
		buf.Write(w[:2])
		buf.WriteString(e.Path)

		le.PutUint32(w[:4], e.Version)
		buf.Write(w[:4])
		var flag byte
		if e.Compression == packtype.CompressionPacked {
			flag = 1
		}
		buf.WriteByte(flag)
		buf.Write([]byte{0, 0, 0})

		le.PutUint64(w[:], e.DataOffset-dataStart)
		buf.Write(w[:])
		le.PutUint64(w[:], e.StoredSize)
		buf.Write(w[:])
		le.PutUint64(w[:], e.UncompressedSize)
		buf.Write(w[:])
		buf.Write(e.Checksum)
	}
	return buf.Bytes(), nil
}

func (v2Strategy) NewHash() hash.Hash {
	return sha256.New()
}

var (
	v2EncoderOnce sync.Once
	v2Encoder     *zstd.Encoder
	v2EncoderErr  error
)

func (v2Strategy) Compress(raw []byte) ([]byte, error) {
	v2EncoderOnce.Do(func() {
		v2Encoder, v2EncoderErr = zstd.NewWriter(nil)
	})
	if v2EncoderErr != nil {
		return nil, v2EncoderErr
	}
	return v2Encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Seal is a no-op: revision 0x200 does not cipher stored bytes.
func (v2Strategy) Seal([]byte, uint32) {}

func (v2Strategy) OpenStored(stored io.Reader, e *packtype.Entry) (io.ReadCloser, error) {
	track := &trackReader{r: stored}
	if e.Compression == packtype.CompressionRaw {
		return io.NopCloser(track), nil
	}
	dec, release, err := getDecoder(track)
	if err != nil {
		return nil, classifyDecodeErr(track, err)
	}
	return &decodeReadCloser{
		rc:    &pooledDecoder{dec: dec, release: release},
		track: track,
	}, nil
}

// pooledDecoder adapts a pooled zstd decoder to io.ReadCloser, returning the
// decoder to the pool on Close instead of tearing it down.
type pooledDecoder struct {
	dec     *zstd.Decoder
	release func()
}

func (p *pooledDecoder) Read(b []byte) (int, error) {
	return p.dec.Read(b)
}

func (p *pooledDecoder) Close() error {
	if p.release != nil {
		p.release()
		p.release = nil
	}
	return nil
}
