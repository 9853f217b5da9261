package mabipack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/regomne/mabipack/internal/format"
	"github.com/regomne/mabipack/internal/packtype"
)

// Source is one pending archive entry: a relative path and a way to open
// its content. Sources are consumed in the order supplied, which becomes
// the on-disk table order.
type Source struct {
	// Path is the archive-internal relative path. Both slash styles are
	// accepted; it is normalized to forward slashes.
	Path string

	// ModTime is recorded for revisions that encode timestamps. The zero
	// value writes empty time fields.
	ModTime time.Time

	// Open returns the content. It may be called at most once per Create
	// and can run concurrently with other sources' opens.
	Open func() (io.ReadCloser, error)
}

// BytesSource wraps an in-memory payload as a Source.
func BytesSource(path string, data []byte) Source {
	return Source{
		Path: path,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FileSource wraps a file on disk as a Source, capturing its current
// modification time.
func FileSource(path, fsPath string) (Source, error) {
	info, err := os.Stat(fsPath)
	if err != nil {
		return Source{}, err
	}
	return Source{
		Path:    path,
		ModTime: info.ModTime(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(fsPath)
		},
	}, nil
}

// WriteOptions configures archive creation.
type WriteOptions struct {
	// Revision selects the on-disk format. Zero means RevisionClassic.
	Revision uint32

	// Version is the content version key recorded in the header and each
	// entry. The classic revision also derives its payload cipher seed
	// from it.
	Version uint32

	// Raw stores every payload uncompressed. By default a payload is
	// compressed when that makes it smaller and stored raw otherwise.
	Raw bool

	// Workers bounds how many sources are staged (read, compressed,
	// checksummed) concurrently. Values < 1 use one worker per CPU.
	Workers int

	// Logger receives debug output. Nil discards everything.
	Logger *slog.Logger
}

// Writer builds archives from ordered sources.
type Writer struct {
	opts  WriteOptions
	strat format.Strategy
}

// NewWriter selects the strategy for the requested revision.
func NewWriter(opts WriteOptions) (*Writer, error) {
	revision := opts.Revision
	if revision == 0 {
		revision = RevisionClassic
	}
	strat, ok := format.Lookup(revision)
	if !ok {
		return nil, fmt.Errorf("%w: revision %#x", ErrUnsupportedVersion, revision)
	}
	return &Writer{opts: opts, strat: strat}, nil
}

func (w *Writer) log() *slog.Logger {
	if w.opts.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.opts.Logger
}

type stagedEntry struct {
	entry  Entry
	stored []byte
}

// Create builds a complete archive from sources and writes it to out in one
// sequential pass: header, table, then concatenated payloads.
//
// Staging (reading, compressing, sealing, checksumming) runs on a bounded
// worker pool; offsets are assigned afterwards as a prefix sum in input
// order, so the output is byte-identical across runs with the same inputs
// and options. Nothing is written to out until every source has staged, so
// a failed Create never leaves a half-written table behind a successful
// header.
func (w *Writer) Create(ctx context.Context, sources []Source, out io.Writer) error {
	if uint64(len(sources)) > math.MaxUint32 {
		return fmt.Errorf("mabipack: too many entries: %d", len(sources))
	}

	paths := make([]string, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for i, s := range sources {
		p, err := normalizePath(s.Path)
		if err != nil {
			return err
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePath, p)
		}
		seen[p] = struct{}{}
		paths[i] = p
	}

	staged := make([]stagedEntry, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	workers := w.opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)
	for i := range sources {
		g.Go(func() error {
			st, err := w.stage(gctx, sources[i], paths[i])
			if err != nil {
				return fmt.Errorf("stage %s: %w", paths[i], err)
			}
			staged[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	entries := make([]packtype.Entry, len(staged))
	for i := range staged {
		entries[i] = staged[i].entry
	}
	tableSize, err := w.strat.TableSize(entries)
	if err != nil {
		return err
	}
	dataStart := uint64(w.strat.HeaderSize()) + tableSize
	var dataSize uint64
	for i := range entries {
		entries[i].DataOffset = dataStart + dataSize
		dataSize += entries[i].StoredSize
	}

	h := format.Header{
		Revision:   w.strat.Revision(),
		Version:    w.opts.Version,
		EntryCount: uint32(len(entries)),
		TableSize:  tableSize,
		DataSize:   dataSize,
	}
	headerBytes, err := w.strat.EncodeHeader(h)
	if err != nil {
		return err
	}
	tableBytes, err := w.strat.EncodeTable(entries, h)
	if err != nil {
		return err
	}

	if _, err := out.Write(headerBytes); err != nil {
		return err
	}
	if _, err := out.Write(tableBytes); err != nil {
		return err
	}
	for i := range staged {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := out.Write(staged[i].stored); err != nil {
			return err
		}
	}
	w.log().Debug("archive written",
		"revision", fmt.Sprintf("%#x", h.Revision),
		"entries", len(entries),
		"table", tableSize,
		"data", dataSize)
	return nil
}

// stage reads one source fully and produces its stored form: compressed
// when that is smaller (unless Raw), sealed with the revision's transform,
// and checksummed over the final stored bytes.
func (w *Writer) stage(ctx context.Context, s Source, path string) (stagedEntry, error) {
	if err := ctx.Err(); err != nil {
		return stagedEntry{}, err
	}
	rc, err := s.Open()
	if err != nil {
		return stagedEntry{}, err
	}
	raw, err := io.ReadAll(rc)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return stagedEntry{}, err
	}

	stored := raw
	compression := CompressionRaw
	if !w.opts.Raw {
		packed, err := w.strat.Compress(raw)
		if err != nil {
			return stagedEntry{}, err
		}
		if len(packed) < len(raw) {
			stored = packed
			compression = CompressionPacked
		}
	}

	w.strat.Seal(stored, w.opts.Version)
	hasher := w.strat.NewHash()
	hasher.Write(stored)

	return stagedEntry{
		entry: Entry{
			Path:             path,
			Version:          w.opts.Version,
			UncompressedSize: uint64(len(raw)),
			StoredSize:       uint64(len(stored)),
			Checksum:         hasher.Sum(nil),
			Compression:      compression,
			ModTime:          s.ModTime,
		},
		stored: stored,
	}, nil
}

func normalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" || strings.HasPrefix(p, "/") || !filepathIsLocal(p) {
		return "", fmt.Errorf("mabipack: invalid entry path %q", p)
	}
	return p, nil
}

func filepathIsLocal(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
