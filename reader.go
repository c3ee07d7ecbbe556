package pargz

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// cursor sits between the source and the member decoders. It owns the
// bytes that were read from the source but not consumed yet: when a member
// ends in the middle of a read, the rest of that read is the head of the
// next member and stays in carry until the next decoder asks for it.
//
// cursor implements io.ByteReader, which makes the decoders consume exactly
// the bytes of their member and never read ahead into carry.
type cursor struct {
	src      io.Reader
	buf      []byte
	carry    []byte // unconsumed tail of buf
	consumed int64  // bytes handed to decoders so far
	eof      bool
	err      error // sticky source failure, never io.EOF

	memberActive bool
}

func newCursor(src io.Reader, size int) *cursor {
	return &cursor{src: src, buf: make([]byte, size)}
}

// maxEmptyReads is how many (0, nil) reads in a row are tolerated from the
// source before giving up.
const maxEmptyReads = 100

// fill makes sure carry is not empty. It only reads the source when carry
// has been fully consumed.
func (c *cursor) fill() error {
	if len(c.carry) > 0 {
		return nil
	}
	for i := 0; i < maxEmptyReads; i++ {
		if c.err != nil {
			return c.err
		}
		if c.eof {
			return io.EOF
		}
		n, err := c.src.Read(c.buf)
		c.carry = c.buf[:n]
		if err == io.EOF {
			c.eof = true
		} else if err != nil {
			c.err = err
		}
		if n > 0 {
			return nil
		}
	}
	c.err = io.ErrNoProgress
	return c.err
}

func (c *cursor) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.fill(); err != nil {
		return 0, err
	}
	n := copy(p, c.carry)
	c.carry = c.carry[n:]
	c.consumed += int64(n)
	return n, nil
}

func (c *cursor) ReadByte() (byte, error) {
	if err := c.fill(); err != nil {
		return 0, err
	}
	ch := c.carry[0]
	c.carry = c.carry[1:]
	c.consumed++
	return ch, nil
}

// atEnd reports whether the stream is over: nothing carried and the source
// exhausted.
func (c *cursor) atEnd() (bool, error) {
	switch err := c.fill(); err {
	case nil:
		return false, nil
	case io.EOF:
		return true, nil
	default:
		return false, err
	}
}

// A Reader reconstitutes the raw stream from a concatenation of members,
// decoding one member at a time and moving to the next one as soon as the
// previous trailer has been consumed. It works on any stream of members of
// its codec, whether or not it was produced by Compress.
type Reader struct {
	codec   Codec
	cur     *cursor
	dec     Decoder
	members int64
	start   int64 // compressed offset of the current member
	raw     int64
	err     error
	log     *zap.Logger
}

// NewReader returns a Reader decoding members of opts.Codec from r. Nothing
// is read from r until the first call to Read, so an empty r is a valid
// stream of zero members.
func NewReader(r io.Reader, opts *Options) (*Reader, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Reader{
		codec: opts.Codec,
		cur:   newCursor(r, opts.ReadSize),
		log:   opts.Logger,
	}, nil
}

func (or *Reader) Read(data []byte) (int, error) {
	nread := 0
	for len(data) > 0 && or.err == nil {
		if !or.cur.memberActive {
			if err := or.nextMember(); err != nil {
				or.err = err
				break
			}
		}
		n, err := or.dec.Read(data)
		nread += n
		or.raw += int64(n)
		data = data[n:]
		if err == io.EOF {
			or.endMember()
			continue
		}
		if err != nil {
			or.err = or.fail(err)
		}
	}
	if nread > 0 && or.err == io.EOF {
		return nread, nil
	}
	return nread, or.err
}

// nextMember arms a decoder on the member at the head of the cursor, or
// returns io.EOF if there is none left.
func (or *Reader) nextMember() error {
	end, err := or.cur.atEnd()
	if err != nil {
		return or.fail(err)
	}
	if end {
		return io.EOF
	}

	or.start = or.cur.consumed
	if or.dec == nil {
		or.dec, err = or.codec.NewDecoder(or.cur)
	} else {
		err = or.dec.Reset(or.cur)
	}
	if err != nil {
		return or.fail(err)
	}
	or.cur.memberActive = true
	return nil
}

func (or *Reader) endMember() {
	or.cur.memberActive = false
	or.log.Debug("member boundary",
		zap.Int64("member", or.members),
		zap.Int64("offset", or.start),
		zap.Int64("size", or.cur.consumed-or.start),
		zap.Int("carry", len(or.cur.carry)))
	or.members++
}

// fail classifies a decoder error. The decoders cannot tell a broken
// source from a truncated member, but the cursor knows whether the source
// failed.
func (or *Reader) fail(err error) error {
	if or.cur.err != nil {
		return &Error{Op: "read", Block: or.members, Offset: or.cur.consumed, Kind: ErrIOFailure, Err: or.cur.err}
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &Error{Op: "decode", Block: or.members, Offset: or.cur.consumed, Kind: ErrCorruptStream, Err: err}
}

// Stats returns the members decoded so far and the bytes they spanned.
func (or *Reader) Stats() Stats {
	return Stats{Members: or.members, RawBytes: or.raw, CompressedBytes: or.cur.consumed}
}

// Close releases the decoder. It does not close the underlying reader.
func (or *Reader) Close() error {
	if or.dec == nil {
		return nil
	}
	d := or.dec
	or.dec = nil
	or.err = io.EOF
	return d.Close()
}

// Decompress decodes every member of r into w. It stops at the first
// corrupt member or I/O failure; raw bytes decoded before that point have
// already been written to w.
func Decompress(ctx context.Context, w io.Writer, r io.Reader, opts *Options) (Stats, error) {
	zr, err := NewReader(r, opts)
	if err != nil {
		return Stats{}, err
	}
	defer zr.Close()

	buf := make([]byte, 32*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return zr.Stats(), err
		}
		n, rerr := zr.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return zr.Stats(), &Error{Op: "write", Block: zr.members, Offset: written, Kind: ErrIOFailure, Err: err}
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return zr.Stats(), rerr
		}
	}

	st := zr.Stats()
	zr.log.Info("decompression finished",
		zap.String("codec", zr.codec.Name()),
		zap.Int64("members", st.Members),
		zap.Int64("raw_bytes", st.RawBytes),
		zap.Int64("compressed_bytes", st.CompressedBytes))
	return st, nil
}
