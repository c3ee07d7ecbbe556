package pargz

import (
	"bufio"
	"io"
)

const cWINDOW_SIZE = 4096

// rsyncChunker segments the input in a way to be efficient when the
// compressed file is transferred over rsync with slight differences in the
// uncompressed stream.
//
// It keeps a rolling sum of the last cWINDOW_SIZE bytes and cuts a chunk
// whenever the sum is a multiple of the window size, which is the same
// algorithm as "gzip --rsyncable". Boundaries depend only on nearby content,
// so the member layout resynchronizes shortly after a localized change.
// Chunks are still capped at the buffer size.
type rsyncChunker struct {
	r      *bufio.Reader
	window [cWINDOW_SIZE]byte
	idx    int
	sum    int
}

func (c *rsyncChunker) next(buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		ch, err := c.r.ReadByte()
		if err == io.EOF {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if err != nil {
			return n, err
		}
		buf[n] = ch
		n++

		pos := c.idx % cWINDOW_SIZE
		if c.idx >= cWINDOW_SIZE {
			c.sum -= int(c.window[pos])
		}
		c.window[pos] = ch
		c.sum += int(ch)
		c.idx++

		if c.idx > cWINDOW_SIZE && c.sum%cWINDOW_SIZE == 0 {
			c.sum = 0
			c.idx = 0
			return n, nil
		}
	}
	return n, nil
}
