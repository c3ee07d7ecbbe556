package pargz

import (
	"bufio"
	"io"
)

// Block is the unit of independent compression: a slice of at most
// ChunkSize bytes of the input, identified by its position in the stream.
type Block struct {
	Index  int64 // position in the stream, from 0
	Offset int64 // offset of Raw[0] in the raw input
	Raw    []byte

	// Compressed is the member encoding Raw, valid once the block has
	// been compressed and until it has been written.
	Compressed []byte
}

// A chunker fills buf with the next chunk of the input and returns its
// length, or io.EOF once the input is exhausted. It never returns an
// empty chunk with a nil error.
type chunker interface {
	next(buf []byte) (int, error)
}

// fixedChunker cuts the input every len(buf) bytes. A short read means the
// source is exhausted, so the following call returns io.EOF without
// touching the source again.
type fixedChunker struct {
	r   io.Reader
	eof bool
}

func (c *fixedChunker) next(buf []byte) (int, error) {
	if c.eof {
		return 0, io.EOF
	}
	n, err := io.ReadFull(c.r, buf)
	switch err {
	case nil:
		return n, nil
	case io.ErrUnexpectedEOF:
		c.eof = true
		return n, nil
	case io.EOF:
		c.eof = true
		return 0, io.EOF
	default:
		return n, err
	}
}

// blockReader turns the chunks of a chunker into indexed blocks.
type blockReader struct {
	chunks chunker
	index  int64
	offset int64
	done   bool
}

func newBlockReader(r io.Reader, rsyncable bool) *blockReader {
	var c chunker
	if rsyncable {
		c = &rsyncChunker{r: bufio.NewReader(r)}
	} else {
		c = &fixedChunker{r: r}
	}
	return &blockReader{chunks: c}
}

// next reads the next block into buf. It returns io.EOF once the input is
// exhausted, and keeps returning it afterwards.
func (br *blockReader) next(buf []byte) (Block, error) {
	if br.done {
		return Block{}, io.EOF
	}
	n, err := br.chunks.next(buf)
	if err == io.EOF {
		br.done = true
		return Block{}, io.EOF
	}
	if err != nil {
		br.done = true
		return Block{}, &Error{Op: "read", Block: br.index, Offset: br.offset + int64(n), Kind: ErrIOFailure, Err: err}
	}
	b := Block{Index: br.index, Offset: br.offset, Raw: buf[:n]}
	br.index++
	br.offset += int64(n)
	return b, nil
}

// count is the number of blocks handed out so far.
func (br *blockReader) count() int64 {
	return br.index
}

type countWriter struct {
	io.Writer
	off int64
}

func (cw *countWriter) Write(data []byte) (int, error) {
	n, err := cw.Writer.Write(data)
	cw.off += int64(n)
	return n, err
}
