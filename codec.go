package pargz

import (
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Compression levels accepted by every codec. They mirror compress/flate.
const (
	HuffmanOnly        = flate.HuffmanOnly
	DefaultCompression = flate.DefaultCompression
	NoCompression      = flate.NoCompression
	BestSpeed          = flate.BestSpeed
	BestCompression    = flate.BestCompression
)

// A Codec frames one raw block as a standalone compressed member, and
// decodes members back one at a time. Members carry their own framing, so
// a stream of members needs no external index to be split again.
type Codec interface {
	// Name is the identifier used in options and on the command line.
	Name() string

	// Ext is the file suffix (without dot) of files holding this codec.
	Ext() string

	// Bound returns the largest member the codec can produce for a raw
	// block of n bytes, framing included.
	Bound(n int) int

	// NewEncoder returns an encoder at the given level. It is not safe
	// for concurrent use; every worker owns one.
	NewEncoder(level int) (Encoder, error)

	// NewDecoder starts decoding the member at the head of r. r must
	// implement io.ByteReader so that nothing past the member trailer is
	// consumed.
	NewDecoder(r flate.Reader) (Decoder, error)
}

// Encoder compresses a single raw block into a complete member.
type Encoder interface {
	Encode(dst io.Writer, raw []byte) error
}

// Decoder yields the raw bytes of one member and returns io.EOF once the
// member trailer has been consumed. Reset rearms it on the next member.
type Decoder interface {
	io.Reader
	Reset(r flate.Reader) error
	Close() error
}

var (
	Gzip    Codec = gzipCodec{}
	Zlib    Codec = zlibCodec{}
	Deflate Codec = deflateCodec{}
)

var codecs = map[string]Codec{
	Gzip.Name():    Gzip,
	Zlib.Name():    Zlib,
	Deflate.Name(): Deflate,
}

// CodecByName looks up a registered codec.
func CodecByName(name string) (Codec, error) {
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownCodec, name)
	}
	return c, nil
}

// CodecNames returns the registered codec names, sorted.
func CodecNames() []string {
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// deflateBound is the worst case size of a raw deflate stream for n input
// bytes: incompressible input falls back to stored blocks, which cost 5
// bytes per 64k plus the empty final block written on close. The shift
// terms are the conservative slack zlib's deflateBound uses when the
// window and memory parameters are not the defaults.
func deflateBound(n int) int {
	return n + ((n + 7) >> 3) + ((n + 63) >> 6) + 5*((n+0xfffe)/0xffff) + 10
}

const (
	gzipOverhead = 10 + 8 // header without name/extra, crc32 + isize trailer
	zlibOverhead = 2 + 4  // cmf/flg, adler32
)

// gzip

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }
func (gzipCodec) Ext() string { return "gz" }
func (gzipCodec) Bound(n int) int { return deflateBound(n) + gzipOverhead }

func (gzipCodec) NewEncoder(level int) (Encoder, error) {
	gz, err := gzip.NewWriterLevel(io.Discard, level)
	if err != nil {
		return nil, configError("gzip level %d: %v", level, err)
	}
	return &gzipEncoder{gz: gz}, nil
}

func (gzipCodec) NewDecoder(r flate.Reader) (Decoder, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	gz.Multistream(false)
	return &gzipDecoder{gz}, nil
}

type gzipEncoder struct {
	gz *gzip.Writer
}

func (e *gzipEncoder) Encode(dst io.Writer, raw []byte) error {
	e.gz.Reset(dst)
	if _, err := e.gz.Write(raw); err != nil {
		return err
	}
	return e.gz.Close()
}

type gzipDecoder struct {
	*gzip.Reader
}

func (d *gzipDecoder) Reset(r flate.Reader) error {
	// Reset turns multistream back on.
	if err := d.Reader.Reset(r); err != nil {
		return err
	}
	d.Reader.Multistream(false)
	return nil
}

// zlib

type zlibCodec struct{}

func (zlibCodec) Name() string { return "zlib" }
func (zlibCodec) Ext() string { return "zz" }
func (zlibCodec) Bound(n int) int { return deflateBound(n) + zlibOverhead }

func (zlibCodec) NewEncoder(level int) (Encoder, error) {
	zw, err := zlib.NewWriterLevel(io.Discard, level)
	if err != nil {
		return nil, configError("zlib level %d: %v", level, err)
	}
	return &zlibEncoder{zw: zw}, nil
}

func (zlibCodec) NewDecoder(r flate.Reader) (Decoder, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &resetDecoder{ReadCloser: zr, reset: zr.(zlib.Resetter).Reset}, nil
}

type zlibEncoder struct {
	zw *zlib.Writer
}

func (e *zlibEncoder) Encode(dst io.Writer, raw []byte) error {
	e.zw.Reset(dst)
	if _, err := e.zw.Write(raw); err != nil {
		return err
	}
	return e.zw.Close()
}

// deflate

type deflateCodec struct{}

func (deflateCodec) Name() string { return "deflate" }
func (deflateCodec) Ext() string { return "deflate" }
func (deflateCodec) Bound(n int) int { return deflateBound(n) }

func (deflateCodec) NewEncoder(level int) (Encoder, error) {
	fw, err := flate.NewWriter(io.Discard, level)
	if err != nil {
		return nil, configError("deflate level %d: %v", level, err)
	}
	return &flateEncoder{fw: fw}, nil
}

func (deflateCodec) NewDecoder(r flate.Reader) (Decoder, error) {
	fr := flate.NewReader(r)
	return &resetDecoder{ReadCloser: fr, reset: fr.(flate.Resetter).Reset}, nil
}

type flateEncoder struct {
	fw *flate.Writer
}

func (e *flateEncoder) Encode(dst io.Writer, raw []byte) error {
	e.fw.Reset(dst)
	if _, err := e.fw.Write(raw); err != nil {
		return err
	}
	return e.fw.Close()
}

// resetDecoder adapts the zlib and flate readers, which share the
// Reset(r, dict) signature.
type resetDecoder struct {
	io.ReadCloser
	reset func(r io.Reader, dict []byte) error
}

func (d *resetDecoder) Reset(r flate.Reader) error {
	return d.reset(r, nil)
}
