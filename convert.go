package pargz

import (
	"bufio"
	"context"
	"io"
)

// Convert re-encodes a compressed stream made of one or more members of
// codec from into the block layout described by opts. It is the way to make
// an existing .gz (compressed as a single member) decodable in independent
// pieces, or to change the framing of a file.
func Convert(ctx context.Context, w io.Writer, r io.Reader, from Codec, opts *Options) (Stats, error) {
	opts = opts.withDefaults()
	br := bufio.NewReader(r)

	// When the target level was left to the default and the source is a
	// gzip, match the level the source was compressed with. The gzip
	// library doesn't expose the XFL header byte, so we peek at it; if the
	// header is broken, the Reader errors out just afterwards.
	if from == Gzip && opts.Level == DefaultCompression {
		if head, err := br.Peek(10); err == nil {
			switch head[8] {
			case 0x2:
				opts.Level = BestCompression
			case 0x4:
				opts.Level = BestSpeed
			}
		}
	}

	zr, err := NewReader(br, &Options{Codec: from, ReadSize: opts.ReadSize, Logger: opts.Logger})
	if err != nil {
		return Stats{}, err
	}
	defer zr.Close()

	return Compress(ctx, w, zr, opts)
}
