package mabipack

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
	"io"
)

// File streams one entry's decoded content.
//
// The stored bytes are read with a single seek and a sequential pass; the
// checksum accumulates over them as they stream through the decoder.
// Verification happens once the stored range has been fully consumed, at
// EOF or Close, so partial reads of large entries never buffer the whole
// payload. Callers that need early failure should read to EOF before
// acting on the content.
type File struct {
	archive *Archive
	entry   Entry

	decoded   io.ReadCloser
	stored    io.Reader // section reader teed through the hasher
	hasher    hash.Hash
	remaining uint64

	initialized bool
	initErr     error
	verified    bool
	verifyErr   error
}

func (f *File) init() error {
	if f.initialized {
		return f.initErr
	}
	f.initialized = true

	section := io.NewSectionReader(f.archive.src, int64(f.entry.DataOffset), int64(f.entry.StoredSize))
	f.hasher = f.archive.strat.NewHash()
	f.stored = io.TeeReader(section, f.hasher)

	decoded, err := f.archive.strat.OpenStored(f.stored, &f.entry)
	if err != nil {
		f.initErr = f.checksumOverride(fmt.Errorf("open %s: %w", f.entry.Path, err))
		return f.initErr
	}
	f.decoded = decoded
	f.remaining = f.entry.UncompressedSize
	return nil
}

// Read implements io.Reader. The final Read returns io.EOF only after the
// checksum over the stored bytes has been verified; a mismatch surfaces as
// ErrChecksumMismatch instead.
func (f *File) Read(p []byte) (int, error) {
	if err := f.init(); err != nil {
		return 0, err
	}
	if f.verified {
		if f.verifyErr != nil {
			return 0, f.verifyErr
		}
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if f.remaining == 0 {
		return f.readExtra()
	}
	if uint64(len(p)) > f.remaining {
		p = p[:f.remaining]
	}

	n, err := f.decoded.Read(p)
	f.remaining -= uint64(n)

	if err == io.EOF {
		if f.remaining != 0 {
			return n, f.checksumOverride(fmt.Errorf("%s: %w: decoded stream ended early", f.entry.Path, ErrDecode))
		}
		if verr := f.verify(); verr != nil {
			return n, verr
		}
		return n, io.EOF
	}
	if err != nil {
		return n, f.checksumOverride(err)
	}
	return n, nil
}

// readExtra detects decoded data beyond the recorded size.
func (f *File) readExtra() (int, error) {
	var scratch [1]byte
	n, err := f.decoded.Read(scratch[:])
	if n > 0 {
		return 0, f.checksumOverride(fmt.Errorf("%s: %w: decoded stream longer than recorded size", f.entry.Path, ErrDecode))
	}
	if err == io.EOF {
		if verr := f.verify(); verr != nil {
			return 0, verr
		}
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}
	return 0, nil
}

// checksumOverride settles what a decode failure means. A flipped stored
// byte usually breaks the decoder before the deferred verification would
// run, so the remaining stored bytes are drained through the hasher and the
// checksum gets the final word: a mismatch reports the corruption as
// ErrChecksumMismatch, while a stream that hashes correctly but still fails
// to decode keeps the decode error.
func (f *File) checksumOverride(err error) error {
	if !errors.Is(err, ErrDecode) || len(f.entry.Checksum) == 0 {
		return err
	}
	if _, derr := io.Copy(io.Discard, f.stored); derr != nil {
		return err
	}
	if !bytes.Equal(f.hasher.Sum(nil), f.entry.Checksum) {
		f.verified = true
		f.verifyErr = fmt.Errorf("%s: %w", f.entry.Path, ErrChecksumMismatch)
		return f.verifyErr
	}
	return err
}

func (f *File) verify() error {
	if f.verified {
		return f.verifyErr
	}
	f.verified = true

	// The decoder may not have consumed trailing stored bytes (codec
	// framing); drain them so the checksum covers the whole stored range.
	if _, err := io.Copy(io.Discard, f.stored); err != nil {
		f.verifyErr = err
		return err
	}
	if len(f.entry.Checksum) == 0 {
		// Records written without a checksum cannot be verified.
		return nil
	}
	if !bytes.Equal(f.hasher.Sum(nil), f.entry.Checksum) {
		f.verifyErr = fmt.Errorf("%s: %w", f.entry.Path, ErrChecksumMismatch)
	}
	return f.verifyErr
}

// Close releases the decoder. If the entry has not been fully read yet, the
// remainder is drained first so the checksum still gets verified; the
// verification result is Close's return value.
func (f *File) Close() error {
	if !f.initialized {
		return nil
	}
	if f.initErr != nil {
		return f.initErr
	}
	defer func() {
		if f.decoded != nil {
			f.decoded.Close()
			f.decoded = nil
		}
	}()
	if f.verified {
		return f.verifyErr
	}

	buf := make([]byte, 32*1024)
	for {
		_, err := f.Read(buf)
		if err == io.EOF {
			return f.verifyErr
		}
		if err != nil {
			return err
		}
	}
}

// Entry returns the table record this stream was opened from.
func (f *File) Entry() Entry {
	return f.entry
}
