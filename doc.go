// Package mabipack reads, lists, and writes Mabinogi .pack archives.
//
// An archive is a single file holding a header, a directory table, and the
// concatenated stored payloads of its entries. Two on-disk revisions are
// supported: the classic client format (zlib payloads XORed with an MT19937
// keystream) and this port's v2 format (zstd payloads, 64-bit sizes,
// SHA-256 checksums). The revision is detected from the header when an
// archive is opened and chosen explicitly when one is written.
//
// Entry content is streamed: opening an entry performs one seek and a
// sequential read of its stored bytes, decoding incrementally. Checksums
// are verified once the stored bytes have been fully consumed, so large
// entries never need to be buffered whole.
package mabipack
