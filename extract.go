package mabipack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/regomne/mabipack/internal/ioutil"
)

// Report aggregates the outcome of a batch extraction.
type Report struct {
	// Extracted is the number of entries written successfully.
	Extracted int

	// Skipped is the number of entries excluded by the filter.
	Skipped int

	// Failed lists entries whose content failed checksum verification or
	// decoding, in path order. Only populated in non-strict mode; strict
	// mode aborts on the first such failure instead.
	Failed []EntryError
}

// ExtractOption configures Extract.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	filter        *Filter
	workers       int
	strict        bool
	preserveTimes bool
}

// WithFilter restricts extraction to entries the filter selects.
func WithFilter(f *Filter) ExtractOption {
	return func(c *extractConfig) {
		c.filter = f
	}
}

// WithWorkers sets the number of entries processed concurrently.
// Values < 1 use one worker per CPU.
func WithWorkers(n int) ExtractOption {
	return func(c *extractConfig) {
		c.workers = n
	}
}

// WithStrict makes the first per-entry failure abort the whole extraction.
// By default failed entries are recorded in the Report and the remaining
// entries are still extracted.
func WithStrict(strict bool) ExtractOption {
	return func(c *extractConfig) {
		c.strict = strict
	}
}

// WithPreserveTimes restores recorded modification times on extracted
// files, for archives whose revision carries them.
func WithPreserveTimes(preserve bool) ExtractOption {
	return func(c *extractConfig) {
		c.preserveTimes = preserve
	}
}

// Extract writes the selected entries below destDir.
//
// Files are written atomically (temp file then rename) with parent
// directories created as needed. Entries are independent and run on a
// bounded worker pool; each worker reads its own byte range through ReadAt.
// Header and table level problems were already rejected at open time, so
// errors here are per-entry content failures, I/O failures, or
// cancellation.
func (a *Archive) Extract(ctx context.Context, destDir string, opts ...ExtractOption) (*Report, error) {
	var cfg extractConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	workers := cfg.workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	selected := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		if cfg.filter.Match(e.Path) {
			selected = append(selected, e)
		}
	}

	report := &Report{Skipped: len(a.entries) - len(selected)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, e := range selected {
		g.Go(func() error {
			err := a.extractEntry(gctx, destDir, e, cfg.preserveTimes)
			if err == nil {
				mu.Lock()
				report.Extracted++
				mu.Unlock()
				return nil
			}
			if !cfg.strict && (errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrDecode)) {
				a.log().Warn("entry failed", "path", e.Path, "err", err)
				mu.Lock()
				report.Failed = append(report.Failed, EntryError{Path: e.Path, Err: err})
				mu.Unlock()
				return nil
			}
			return &EntryError{Path: e.Path, Err: err}
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Path < report.Failed[j].Path
	})
	a.log().Debug("extraction finished",
		"extracted", report.Extracted,
		"skipped", report.Skipped,
		"failed", len(report.Failed))
	return report, nil
}

func (a *Archive) extractEntry(ctx context.Context, destDir string, e Entry, preserveTimes bool) error {
	rel := filepath.FromSlash(e.Path)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: unsafe path %s", ErrCorruptTable, e.Path)
	}
	target := filepath.Join(destDir, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	f := a.OpenEntry(e)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".mabipack-*")
	if err != nil {
		f.Close()
		return err
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	if _, err := ioutil.CopyWithContext(ctx, tmp, f, nil); err != nil {
		f.Close()
		cleanup()
		return err
	}
	// Close verifies the checksum when the copy above stopped exactly at
	// the recorded size without reaching the decoder's EOF.
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if preserveTimes && !e.ModTime.IsZero() {
		if err := os.Chtimes(target, e.ModTime, e.ModTime); err != nil {
			return err
		}
	}
	return nil
}
