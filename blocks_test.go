package pargz

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
	"testing/iotest"
)

func readAllBlocks(br *blockReader, size int, t *testing.T) []Block {
	var blocks []Block
	for {
		buf := make([]byte, size)
		b, err := br.next(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, b)
	}
	if _, err := br.next(make([]byte, size)); err != io.EOF {
		t.Errorf("expected io.EOF after the end, got %v", err)
	}
	return blocks
}

func TestFixedBlocks(t *testing.T) {
	for _, tc := range []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{1}},
		{4096, []int{4096}},
		{8192, []int{4096, 4096}},
		{10000, []int{4096, 4096, 1808}},
	} {
		data := testData(int64(tc.n), tc.n)
		// One byte per read: chunks are still full.
		br := newBlockReader(iotest.OneByteReader(bytes.NewReader(data)), false)
		blocks := readAllBlocks(br, 4096, t)
		if len(blocks) != len(tc.want) {
			t.Fatalf("%d bytes: got %d blocks, want %d", tc.n, len(blocks), len(tc.want))
		}
		var off int64
		for i, b := range blocks {
			if b.Index != int64(i) || b.Offset != off || len(b.Raw) != tc.want[i] {
				t.Errorf("%d bytes: block %d is {%d, %d, len %d}", tc.n, i, b.Index, b.Offset, len(b.Raw))
			}
			off += int64(len(b.Raw))
		}
		if br.count() != int64(len(tc.want)) {
			t.Errorf("%d bytes: count %d", tc.n, br.count())
		}
	}
}

// After a short chunk the source is not read again.
func TestFixedBlocksShortReadIsTerminal(t *testing.T) {
	src := &countingReader{R: bytes.NewReader(make([]byte, 100))}
	br := newBlockReader(src, false)
	if _, err := br.next(make([]byte, 4096)); err != nil {
		t.Fatal(err)
	}
	reads := src.reads
	if _, err := br.next(make([]byte, 4096)); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if src.reads != reads {
		t.Error("source read again after a short chunk")
	}
}

func TestBlockReaderError(t *testing.T) {
	src := io.MultiReader(bytes.NewReader(make([]byte, 5000)), iotest.ErrReader(errBoom))
	br := newBlockReader(src, false)
	if _, err := br.next(make([]byte, 4096)); err != nil {
		t.Fatal(err)
	}
	_, err := br.next(make([]byte, 4096))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != ErrIOFailure || perr.Block != 1 || perr.Offset != 5000 {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := br.next(make([]byte, 4096)); err != io.EOF {
		t.Errorf("expected io.EOF after a failure, got %v", err)
	}
}

func TestRsyncableBlocks(t *testing.T) {
	data := make([]byte, 1<<20)
	rand.New(rand.NewSource(1)).Read(data)

	const size = 16 * 1024
	blocks := readAllBlocks(newBlockReader(bytes.NewReader(data), true), size, t)
	var joined []byte
	short := 0
	for i, b := range blocks {
		if len(b.Raw) == 0 || len(b.Raw) > size {
			t.Errorf("block %d has %d bytes", i, len(b.Raw))
		}
		if len(b.Raw) < size {
			short++
		}
		joined = append(joined, b.Raw...)
	}
	if !bytes.Equal(joined, data) {
		t.Fatal("blocks do not add up to the input")
	}
	if short < 2 {
		t.Errorf("only %d content-defined cuts", short)
	}
}
