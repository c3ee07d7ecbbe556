package pargz

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"
	"time"

	"github.com/klauspost/pgzip"
)

// piecewiseReader returns data in reads of the given sizes, cycling over
// them, so that tests can decide where read boundaries fall.
type piecewiseReader struct {
	data  []byte
	sizes []int
	i     int
}

func (r *piecewiseReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.sizes[r.i%len(r.sizes)]
	r.i++
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestBasicReader(t *testing.T) {
	data := testData(1, 50000)
	for _, codec := range []Codec{Gzip, Zlib, Deflate} {
		opts := &Options{Codec: codec, Level: DefaultCompression, ChunkSize: 1000, Workers: 4}
		stream := compressBytes(data, opts, t).Bytes()

		zr, err := NewReader(bytes.NewReader(stream), opts)
		if err != nil {
			t.Fatal(err)
		}
		if calcHash(zr, t) != sum(data) {
			t.Errorf("%s: invalid hash for decompressed stream", codec.Name())
		}
		st := zr.Stats()
		if st.Members != 50 || st.RawBytes != 50000 || st.CompressedBytes != int64(len(stream)) {
			t.Errorf("%s: unexpected stats %+v", codec.Name(), st)
		}
		zr.Close()
	}
}

// A member's tail and the next member's head arrive in the same read, and
// reads end in the middle of members.
func TestReaderSplitReads(t *testing.T) {
	data := testData(2, 20000)
	for _, codec := range []Codec{Gzip, Zlib, Deflate} {
		opts := &Options{Codec: codec, Level: BestCompression, ChunkSize: 700, Workers: 3}
		out := compressBytes(data, opts, t)
		stream := out.Bytes()

		// Cut the source exactly in the middle of member 1.
		mid := len(out.writes[0]) + len(out.writes[1])/2
		splits := [][]int{
			{mid, len(stream)},
			{1},
			{3, 1, 7},
			{len(out.writes[0]) - 1, 2},
			{len(out.writes[0]) + 1},
			{4093},
		}
		for _, sizes := range splits {
			for _, readSize := range []int{1, 5, 256, DefaultReadSize} {
				src := &piecewiseReader{data: stream, sizes: sizes}
				got := decompressFrom(src, &Options{Codec: codec, ReadSize: readSize}, t)
				if !bytes.Equal(got, data) {
					t.Errorf("%s: sizes %v, read size %d: mismatch", codec.Name(), sizes, readSize)
				}
			}
		}

		for name, src := range map[string]io.Reader{
			"onebyte": iotest.OneByteReader(bytes.NewReader(stream)),
			"half":    iotest.HalfReader(bytes.NewReader(stream)),
			"dataerr": iotest.DataErrReader(bytes.NewReader(stream)),
		} {
			if !bytes.Equal(decompressFrom(src, &Options{Codec: codec}, t), data) {
				t.Errorf("%s: %s reader: mismatch", codec.Name(), name)
			}
		}
	}
}

func decompressFrom(r io.Reader, opts *Options, t *testing.T) []byte {
	var out bytes.Buffer
	if _, err := Decompress(context.Background(), &out, r, opts); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func TestReaderManySmallMembers(t *testing.T) {
	seed := time.Now().UnixNano()
	t.Log("using seed:", seed)
	rnd := rand.New(rand.NewSource(seed))

	data := testData(seed, 30000)
	opts := &Options{Level: BestSpeed, ChunkSize: 1 + rnd.Intn(64), Workers: 8}
	stream := compressBytes(data, opts, t).Bytes()

	// The whole stream fits in one read: every member after the first is
	// decoded from carried bytes only.
	src := &countingReader{R: bytes.NewReader(stream)}
	got := decompressFrom(src, &Options{ReadSize: len(stream) + 1}, t)
	if !bytes.Equal(got, data) {
		t.Fatal("invalid decompressed stream")
	}
	if src.reads > 2 {
		t.Errorf("source read %d times", src.reads)
	}
}

type countingReader struct {
	R     io.Reader
	reads int
}

func (r *countingReader) Read(p []byte) (int, error) {
	r.reads++
	return r.R.Read(p)
}

func TestReaderEmpty(t *testing.T) {
	zr, err := NewReader(bytes.NewReader(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := zr.Read(make([]byte, 10))
	if n != 0 || err != io.EOF {
		t.Errorf("got %d, %v from an empty stream", n, err)
	}
	if zr.Stats().Members != 0 {
		t.Error("empty stream has members")
	}
}

func TestReaderTruncated(t *testing.T) {
	data := testData(3, 9000)
	for _, codec := range []Codec{Gzip, Zlib, Deflate} {
		opts := &Options{Codec: codec, Level: DefaultCompression, ChunkSize: 4096, Workers: 2}
		out := compressBytes(data, opts, t)
		stream := out.Bytes()
		last := len(out.writes[len(out.writes)-1])

		for _, cut := range []int{1, 2, 4, 8, last / 2, last - 1} {
			_, err := Decompress(context.Background(), io.Discard, bytes.NewReader(stream[:len(stream)-cut]), opts)
			if !errors.Is(err, ErrCorruptStream) {
				t.Errorf("%s: cut %d: expected ErrCorruptStream, got %v", codec.Name(), cut, err)
				continue
			}
			var perr *Error
			if !errors.As(err, &perr) || perr.Block != int64(len(out.writes)-1) {
				t.Errorf("%s: cut %d: expected failure in the last member, got %v", codec.Name(), cut, err)
			}
		}
	}
}

func TestReaderGarbage(t *testing.T) {
	data := testData(4, 9000)
	for _, codec := range []Codec{Gzip, Zlib} {
		opts := &Options{Codec: codec, Level: DefaultCompression, ChunkSize: 4096, Workers: 2}
		stream := append(compressBytes(data, opts, t).Bytes(), "hello world"...)

		var out bytes.Buffer
		_, err := Decompress(context.Background(), &out, bytes.NewReader(stream), opts)
		if !errors.Is(err, ErrCorruptStream) {
			t.Fatalf("%s: expected ErrCorruptStream, got %v", codec.Name(), err)
		}
		var perr *Error
		if !errors.As(err, &perr) || perr.Block != 3 {
			t.Errorf("%s: expected failure at member 3, got %v", codec.Name(), err)
		}
		// Members before the garbage have been decoded.
		if !bytes.Equal(out.Bytes(), data) {
			t.Errorf("%s: %d bytes decoded before the garbage, want %d", codec.Name(), out.Len(), len(data))
		}
	}
}

func TestReaderChecksum(t *testing.T) {
	data := testData(5, 3000)
	out := compressBytes(data, &Options{Level: DefaultCompression, ChunkSize: 4096, Workers: 1}, t)
	stream := out.Bytes()
	stream[len(stream)-6] ^= 0x55 // crc32

	_, err := Decompress(context.Background(), io.Discard, bytes.NewReader(stream), nil)
	if !errors.Is(err, ErrCorruptStream) {
		t.Fatalf("expected ErrCorruptStream, got %v", err)
	}
}

func TestReaderIOFailure(t *testing.T) {
	data := testData(6, 9000)
	stream := compressBytes(data, &Options{Level: DefaultCompression, ChunkSize: 4096, Workers: 2}, t).Bytes()

	src := io.MultiReader(bytes.NewReader(stream[:len(stream)/2]), iotest.ErrReader(errBoom))
	_, err := Decompress(context.Background(), io.Discard, src, nil)
	if !errors.Is(err, ErrIOFailure) || !errors.Is(err, errBoom) {
		t.Fatalf("expected ErrIOFailure wrapping errBoom, got %v", err)
	}
	if errors.Is(err, ErrCorruptStream) {
		t.Error("source failure reported as corruption")
	}
}

func TestDecompressCanceled(t *testing.T) {
	stream := compressBytes(testData(7, 5000), nil, t).Bytes()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Decompress(ctx, io.Discard, bytes.NewReader(stream), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// Any concatenation of gzip members decodes, not just ours.
func TestReaderForeignMembers(t *testing.T) {
	var stream bytes.Buffer
	var want []byte
	for i := 0; i < 3; i++ {
		part := testData(int64(i), 100000+i)
		want = append(want, part...)
		gz := pgzip.NewWriter(&stream)
		if _, err := gz.Write(part); err != nil {
			t.Fatal(err)
		}
		if err := gz.Close(); err != nil {
			t.Fatal(err)
		}
	}

	zr, err := NewReader(&stream, nil)
	if err != nil {
		t.Fatal(err)
	}
	if calcHash(zr, t) != sum(want) {
		t.Error("invalid hash for decompressed stream")
	}
	if zr.Stats().Members != 3 {
		t.Errorf("got %d members, want 3", zr.Stats().Members)
	}
}
