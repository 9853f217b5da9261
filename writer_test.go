package mabipack

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterUnsupportedRevision(t *testing.T) {
	t.Parallel()

	_, err := NewWriter(WriteOptions{Revision: 0x777})
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestWriterDuplicatePath(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(WriteOptions{Version: 1})
	require.NoError(t, err)

	sources := []Source{
		BytesSource("data/a.txt", []byte("one")),
		BytesSource(`data\a.txt`, []byte("two")), // same path, other separator
	}
	var buf bytes.Buffer
	err = w.Create(context.Background(), sources, &buf)
	require.ErrorIs(t, err, ErrDuplicatePath)
	assert.Zero(t, buf.Len(), "nothing may be written before the duplicate is rejected")
}

func TestWriterInvalidPath(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(WriteOptions{Version: 1})
	require.NoError(t, err)

	for _, p := range []string{"", "/abs/path.txt", "../escape.txt", "a/../../b"} {
		var buf bytes.Buffer
		err := w.Create(context.Background(), []Source{BytesSource(p, nil)}, &buf)
		require.Error(t, err, "path %q", p)
		assert.Zero(t, buf.Len())
	}
}

func TestWriterRawOption(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("compress me "), 100)
	pack := buildArchive(t, WriteOptions{Version: 1, Raw: true}, []testFile{{"a.txt", data}})
	a := openArchive(t, pack)

	e, ok := a.Lookup("a.txt")
	require.True(t, ok)
	assert.Equal(t, CompressionRaw, e.Compression)
	assert.Equal(t, e.UncompressedSize, e.StoredSize)

	got, err := a.ReadEntry("a.txt")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriterCancelledContext(t *testing.T) {
	t.Parallel()

	w, err := NewWriter(WriteOptions{Version: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err = w.Create(ctx, []Source{BytesSource("a.txt", []byte("x"))}, &buf)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriterEmptyPayload(t *testing.T) {
	t.Parallel()

	pack := buildArchive(t, WriteOptions{Revision: RevisionV2, Version: 1},
		[]testFile{{"empty.txt", nil}, {"full.txt", []byte("x")}})
	a := openArchive(t, pack)

	got, err := a.ReadEntry("empty.txt")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = a.ReadEntry("full.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}
