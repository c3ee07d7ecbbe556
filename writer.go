package pargz

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Stats summarizes a compression, decompression or inspection run.
type Stats struct {
	Members         int64 // compressed members, one per block
	RawBytes        int64
	CompressedBytes int64
}

// Compress reads r until EOF, splits it into blocks of opts.ChunkSize bytes,
// compresses the blocks in parallel on opts.Workers goroutines and writes
// the resulting members to w in input order. The output is a plain
// concatenation of members that NewReader (or, with the gzip codec, any
// gzip tool) decodes back to the input.
//
// An empty input produces an empty output. On error, members already
// written to w are left in place.
func Compress(ctx context.Context, w io.Writer, r io.Reader, opts *Options) (Stats, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return Stats{}, err
	}

	p, err := newPool(ctx, opts)
	if err != nil {
		return Stats{}, err
	}

	pl := &pipeline{
		ctx:    ctx,
		pool:   p,
		blocks: newBlockReader(r, opts.Rsyncable),
		out:    &countWriter{Writer: w},
		log:    opts.Logger,
	}
	runErr := pl.run()
	if err := p.close(); err != nil {
		// A failed worker cancels the pool, so runErr is only a
		// consequence.
		runErr = err
	}

	st := Stats{Members: pl.writeID, RawBytes: pl.rawBytes, CompressedBytes: pl.out.off}
	if runErr != nil {
		return st, runErr
	}
	opts.Logger.Info("compression finished",
		zap.String("codec", opts.Codec.Name()),
		zap.Int("workers", opts.Workers),
		zap.Int64("blocks", st.Members),
		zap.Int64("raw_bytes", st.RawBytes),
		zap.Int64("compressed_bytes", st.CompressedBytes))
	return st, nil
}

// pipeline coordinates the block reader, the pool and the ordered writer.
// It runs on the caller's goroutine and is the only writer to out.
//
// Blocks are dispatched in index order, so the oldest outstanding slot is
// always the one holding block writeID. Waiting on that slot alone is what
// keeps the output ordered: a later block that completes first simply
// stays Completed until everything before it has been written.
type pipeline struct {
	ctx    context.Context
	pool   *pool
	blocks *blockReader
	out    *countWriter
	log    *zap.Logger

	pending  []*slot // dispatched, in index order
	writeID  int64
	rawBytes int64
}

func (pl *pipeline) run() error {
	for {
		if err := pl.ctx.Err(); err != nil {
			return err
		}
		if err := pl.fill(); err != nil {
			return err
		}
		if len(pl.pending) == 0 {
			break
		}
		if err := pl.flushHead(); err != nil {
			return err
		}
	}

	if pl.writeID != pl.blocks.count() {
		return fmt.Errorf("pargz: wrote %d blocks but read %d", pl.writeID, pl.blocks.count())
	}
	return nil
}

// fill assigns blocks to idle slots until either runs out.
func (pl *pipeline) fill() error {
	for !pl.blocks.done {
		s := pl.pool.acquire()
		if s == nil {
			return nil
		}
		b, err := pl.blocks.next(s.in)
		if err != nil {
			pl.pool.release(s)
			if err == io.EOF {
				pl.log.Debug("input exhausted", zap.Int64("blocks", pl.blocks.count()))
				return nil
			}
			return err
		}
		pl.log.Debug("dispatch", zap.Int64("block", b.Index), zap.Int("slot", s.id), zap.Int("size", len(b.Raw)))
		pl.pool.dispatch(s, b)
		pl.pending = append(pl.pending, s)
	}
	return nil
}

// flushHead waits for the block at writeID, writes it and frees its slot.
func (pl *pipeline) flushHead() error {
	s := pl.pending[0]
	if err := pl.pool.join(s); err != nil {
		return err
	}
	if s.block.Index != pl.writeID {
		return fmt.Errorf("pargz: slot %d holds block %d, expected %d", s.id, s.block.Index, pl.writeID)
	}

	off := pl.out.off
	if _, err := pl.out.Write(s.block.Compressed); err != nil {
		return &Error{Op: "write", Block: s.block.Index, Offset: off, Kind: ErrIOFailure, Err: err}
	}
	pl.log.Debug("flush", zap.Int64("block", s.block.Index), zap.Int("slot", s.id), zap.Int("size", len(s.block.Compressed)))

	pl.rawBytes += int64(len(s.block.Raw))
	pl.writeID++
	pl.pending = pl.pending[1:]
	pl.pool.release(s)
	return nil
}
