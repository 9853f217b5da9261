package format

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regomne/mabipack/internal/packtype"
)

func TestNameBlockSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		length int
		block  int
		lead   byte
	}{
		{0, 16, 0},
		{14, 16, 0},
		{15, 32, 1},
		{30, 32, 1},
		{31, 48, 2},
		{46, 48, 2},
		{47, 64, 3},
		{62, 64, 3},
		{63, 96, 4},
		{94, 96, 4},
		{95, 112, 5},
		{200, 208, 5},
	}
	for _, tc := range cases {
		block, lead := nameBlockSize(tc.length)
		assert.Equal(t, tc.block, block, "length %d", tc.length)
		assert.Equal(t, tc.lead, lead, "length %d", tc.length)
	}
}

func TestClassicHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	s := classicStrategy{}
	h := Header{
		Revision:   RevisionClassic,
		Version:    400,
		EntryCount: 7,
		TableSize:  1234,
		DataSize:   99999,
	}
	b, err := s.EncodeHeader(h)
	require.NoError(t, err)
	require.Len(t, b, classicHeaderSize)

	assert.Equal(t, "PACK", string(b[:4]))
	assert.Equal(t, "data\\", string(b[0x20:0x25]))

	got, err := s.DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestClassicHeaderCountMismatch(t *testing.T) {
	t.Parallel()

	s := classicStrategy{}
	b, err := s.EncodeHeader(Header{Revision: RevisionClassic, EntryCount: 3})
	require.NoError(t, err)
	b[0x200] = 4

	_, err = s.DecodeHeader(b)
	require.ErrorIs(t, err, packtype.ErrCorruptHeader)
}

func classicEntries(t *testing.T, tableSize uint64) []packtype.Entry {
	t.Helper()
	dataStart := uint64(classicHeaderSize) + tableSize
	return []packtype.Entry{
		{
			Path:             "data/script/short.txt",
			Version:          400,
			UncompressedSize: 100,
			StoredSize:       60,
			DataOffset:       dataStart,
			Checksum:         []byte{0x78, 0x56, 0x34, 0x12},
			Compression:      packtype.CompressionPacked,
			ModTime:          time.Unix(1700000000, 0).UTC(),
		},
		{
			Path:             "data/" + strings.Repeat("x", 90) + ".dat",
			Version:          400,
			UncompressedSize: 10,
			StoredSize:       10,
			DataOffset:       dataStart + 60,
			Checksum:         []byte{1, 2, 3, 4},
			Compression:      packtype.CompressionRaw,
		},
	}
}

func TestClassicTableRoundTrip(t *testing.T) {
	t.Parallel()

	s := classicStrategy{}
	entries := classicEntries(t, 0)
	tableSize, err := s.TableSize(entries)
	require.NoError(t, err)
	// Recompute offsets against the real table size.
	entries = classicEntries(t, tableSize)

	h := Header{
		Revision:   RevisionClassic,
		Version:    400,
		EntryCount: uint32(len(entries)),
		TableSize:  tableSize,
	}
	b, err := s.EncodeTable(entries, h)
	require.NoError(t, err)
	require.Equal(t, tableSize, uint64(len(b)))

	got, err := s.DecodeTable(b, h)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestClassicTableTruncated(t *testing.T) {
	t.Parallel()

	s := classicStrategy{}
	entries := classicEntries(t, 0)
	tableSize, err := s.TableSize(entries)
	require.NoError(t, err)
	entries = classicEntries(t, tableSize)

	h := Header{Revision: RevisionClassic, EntryCount: 2, TableSize: tableSize}
	b, err := s.EncodeTable(entries, h)
	require.NoError(t, err)

	_, err = s.DecodeTable(b[:len(b)-8], h)
	require.ErrorIs(t, err, packtype.ErrTruncatedTable)
}

func TestClassicTableHostileCount(t *testing.T) {
	t.Parallel()

	// A header claiming 2^32-1 records must not translate into an
	// allocation sized from the count; the table bytes bound it.
	s := classicStrategy{}
	h := Header{Revision: RevisionClassic, EntryCount: 0xffffffff, TableSize: 0}
	_, err := s.DecodeTable(nil, h)
	require.ErrorIs(t, err, packtype.ErrTruncatedTable)
}

func TestClassicTableBadLeadByte(t *testing.T) {
	t.Parallel()

	s := classicStrategy{}
	entries := classicEntries(t, 0)
	tableSize, err := s.TableSize(entries)
	require.NoError(t, err)
	entries = classicEntries(t, tableSize)

	h := Header{Revision: RevisionClassic, EntryCount: 2, TableSize: tableSize}
	b, err := s.EncodeTable(entries, h)
	require.NoError(t, err)
	b[0] = 0x17

	_, err = s.DecodeTable(b, h)
	require.ErrorIs(t, err, packtype.ErrCorruptTable)
	assert.Contains(t, err.Error(), "record 0")
}

func TestClassicZeroChecksumDecodesAsNil(t *testing.T) {
	t.Parallel()

	s := classicStrategy{}
	entries := []packtype.Entry{{
		Path:             "a.txt",
		StoredSize:       4,
		UncompressedSize: 4,
		DataOffset:       classicHeaderSize + 16 + classicRecordTail,
		Compression:      packtype.CompressionRaw,
	}}
	tableSize, err := s.TableSize(entries)
	require.NoError(t, err)
	h := Header{Revision: RevisionClassic, EntryCount: 1, TableSize: tableSize}

	b, err := s.EncodeTable(entries, h)
	require.NoError(t, err)
	got, err := s.DecodeTable(b, h)
	require.NoError(t, err)
	assert.Nil(t, got[0].Checksum)
}

func TestClassicStoredRoundTrip(t *testing.T) {
	t.Parallel()

	s := classicStrategy{}
	raw := []byte(strings.Repeat("mabinogi ", 64))

	stored, err := s.Compress(raw)
	require.NoError(t, err)
	require.Less(t, len(stored), len(raw))
	s.Seal(stored, 400)

	e := packtype.Entry{
		Path:             "data/x.txt",
		Version:          400,
		UncompressedSize: uint64(len(raw)),
		StoredSize:       uint64(len(stored)),
		Compression:      packtype.CompressionPacked,
	}
	rc, err := s.OpenStored(bytes.NewReader(stored), &e)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestClassicStoredGarbageIsDecodeFailure(t *testing.T) {
	t.Parallel()

	s := classicStrategy{}
	stored := []byte("definitely not a sealed zlib stream")
	e := packtype.Entry{
		Path:        "data/x.txt",
		Version:     1,
		StoredSize:  uint64(len(stored)),
		Compression: packtype.CompressionPacked,
	}
	rc, err := s.OpenStored(bytes.NewReader(stored), &e)
	if err == nil {
		_, err = io.ReadAll(rc)
		rc.Close()
	}
	require.ErrorIs(t, err, packtype.ErrDecode)
}

func TestFiletimeRoundTrip(t *testing.T) {
	t.Parallel()

	assert.True(t, filetimeToTime(0).IsZero())
	assert.EqualValues(t, 0, timeToFiletime(time.Time{}))

	now := time.Unix(1700000000, 123456700).UTC()
	assert.Equal(t, now, filetimeToTime(timeToFiletime(now)))
}
