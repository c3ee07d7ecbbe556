// Pargz - a pure-Go package compressing streams in parallel, one block at a
// time
//
// Abstract
//
// This library splits a stream into fixed-size blocks, compresses every
// block on its own on a pool of goroutines, and writes the compressed blocks
// back in their original order. Each block becomes a complete, standalone
// compressed "member", and the output file is just the members one after
// the other. With the gzip codec such a file is a perfectly valid gzip file:
// a gzip-compatible decompressor is expected to decompress multiple
// consecutive gzip streams until EOF is reached, so any existing tool can
// read it.
//
// How to use
//
// Compress a stream with Compress, and get it back with Decompress or with a
// Reader:
//
//	st, err := pargz.Compress(ctx, out, in, pargz.DefaultOptions())
//	...
//	zr, err := pargz.NewReader(f, nil)
//	io.Copy(dst, zr)
//
// Options select the codec (gzip, zlib or raw deflate members), the level,
// the block size and the number of workers. Blocks are compressed without
// any shared dictionary, so the compression ratio is a little worse than a
// single-member file, in exchange for a speedup that grows with the number
// of workers.
//
// Description of the format
//
// Because members are independent, compressing them in parallel is
// trivial; the only constraint is on output: workers finish in any order,
// but member i must be written before member i+1, because the decoder finds
// members by reading them one after the other. The pipeline holds finished
// blocks until every block before them has been written.
//
// Decoding is sequential. The decoder stops exactly at the end of each
// member's trailer; whatever else it already read from the source is kept
// and becomes the beginning of the next member, so many small members are
// decoded without rereading the source.
//
// Command line tool
//
// This package contains a command line tool called "pargz", which can be
// installed with the following command:
//
//	$ go install github.com/rasky/pargz/cmd/pargz@latest
//
// To compress a file with 8 workers into file.gz, then get it back:
//
//	$ pargz -c file 8
//	$ pargz -d file.gz
package pargz
