package pargz

import (
	"context"
	"io"
)

const DefaultPeekSize = DefaultChunkSize * 2

// Returns true if the stream is (statistically) made of many small members.
// It decodes up to peeksize bytes of raw data and reports whether it crossed
// at least one member boundary on the way. If the stream is fully exhausted
// before peeksize, it returns true as it is technically still a
// single-block stream; any corruption makes it return false.
//
// A stream with a single split near its end is technically multi-member
// too, but this is meant to tell apart files that decode in independent
// pieces from files that were compressed as a whole.
func IsProbablyMultiMember(r io.Reader, codec Codec, peeksize int64) bool {
	zr, err := NewReader(r, &Options{Codec: codec})
	if err != nil {
		return false
	}
	defer zr.Close()

	n, err := io.CopyN(io.Discard, zr, peeksize)
	if err == io.EOF && n < peeksize {
		return true
	}
	if err != nil {
		return false
	}
	return zr.Stats().Members > 0
}

// Inspect decodes the whole stream and discards the output, verifying every
// member. It returns the number of members and the compressed and raw sizes.
func Inspect(ctx context.Context, r io.Reader, opts *Options) (Stats, error) {
	return Decompress(ctx, io.Discard, r, opts)
}
