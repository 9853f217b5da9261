package format

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// decoderPool reuses zstd decoders across entry reads to avoid paying the
// allocation cost of a fresh decoder per entry.
var decoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil
		}
		return dec
	},
}

// getDecoder returns a decoder reading from r and a release function that
// must be called when the caller is done with it.
func getDecoder(r io.Reader) (*zstd.Decoder, func(), error) {
	if dec, ok := decoderPool.Get().(*zstd.Decoder); ok && dec != nil {
		if err := dec.Reset(r); err == nil {
			return dec, func() {
				_ = dec.Reset(nil)
				decoderPool.Put(dec)
			}, nil
		}
		dec.Close()
	}
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, nil, err
	}
	return dec, dec.Close, nil
}
