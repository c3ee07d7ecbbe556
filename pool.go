package pargz

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type slotState int

const (
	slotIdle slotState = iota
	slotRunning
	slotCompleted
)

func (s slotState) String() string {
	switch s {
	case slotIdle:
		return "idle"
	case slotRunning:
		return "running"
	case slotCompleted:
		return "completed"
	default:
		return fmt.Sprintf("slotState(%d)", int(s))
	}
}

// boundedBuffer is a write buffer that refuses to grow past the capacity
// it was created with.
type boundedBuffer struct {
	buf []byte
}

func newBoundedBuffer(capacity int) boundedBuffer {
	return boundedBuffer{buf: make([]byte, 0, capacity)}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if len(b.buf)+len(p) > cap(b.buf) {
		return 0, ErrOutputBufferTooSmall
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedBuffer) Reset()        { b.buf = b.buf[:0] }
func (b *boundedBuffer) Bytes() []byte { return b.buf }

// slot is one member of the worker pool. Between dispatch and the receive
// on done, its buffers belong to the worker goroutine that picked it up;
// the rest of the time they belong to the coordinator. state is only
// touched by the coordinator.
type slot struct {
	id    int
	state slotState
	block Block
	in    []byte
	out   boundedBuffer
	enc   Encoder
	done  chan error
}

func (s *slot) compress() error {
	s.out.Reset()
	if err := s.enc.Encode(&s.out, s.block.Raw); err != nil {
		kind := ErrInvalidConfig
		if errors.Is(err, ErrOutputBufferTooSmall) {
			kind = ErrOutputBufferTooSmall
		}
		return &Error{Op: "compress", Block: s.block.Index, Offset: s.block.Offset, Kind: kind, Err: err}
	}
	s.block.Compressed = s.out.Bytes()
	return nil
}

// pool is a fixed set of slots served by as many worker goroutines. Slots
// are handed to the workers through a queue that can hold every slot at
// once, so dispatching never blocks.
type pool struct {
	ctx   context.Context
	g     *errgroup.Group
	tasks chan *slot
	idle  []*slot
	log   *zap.Logger
}

func newPool(ctx context.Context, opts *Options) (*pool, error) {
	capacity := opts.capacity()
	slots := make([]*slot, opts.Workers)
	for i := range slots {
		enc, err := opts.Codec.NewEncoder(opts.Level)
		if err != nil {
			return nil, err
		}
		slots[i] = &slot{
			id:   i,
			in:   make([]byte, opts.ChunkSize),
			out:  newBoundedBuffer(capacity),
			enc:  enc,
			done: make(chan error, 1),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	p := &pool{
		ctx:   gctx,
		g:     g,
		tasks: make(chan *slot, len(slots)),
		log:   opts.Logger,
	}
	// Popped from the tail, so reverse to hand out slot 0 first.
	for i := len(slots) - 1; i >= 0; i-- {
		p.idle = append(p.idle, slots[i])
	}
	for i := range slots {
		i := i
		g.Go(func() error { return p.work(i) })
	}
	return p, nil
}

func (p *pool) work(id int) error {
	for s := range p.tasks {
		if err := p.ctx.Err(); err != nil {
			s.done <- err
			continue
		}
		err := s.compress()
		s.done <- err
		if err != nil {
			p.log.Debug("worker failed", zap.Int("worker", id), zap.Int64("block", s.block.Index), zap.Error(err))
			return err
		}
	}
	return nil
}

// acquire takes an idle slot, or returns nil if all slots are busy.
func (p *pool) acquire() *slot {
	if len(p.idle) == 0 {
		return nil
	}
	s := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return s
}

// release returns a slot whose result has been consumed, or that was
// never dispatched, to the idle set.
func (p *pool) release(s *slot) {
	s.state = slotIdle
	s.block = Block{}
	p.idle = append(p.idle, s)
}

func (p *pool) dispatch(s *slot, b Block) {
	s.block = b
	s.state = slotRunning
	p.tasks <- s
}

// join waits until the worker holding s is done with it. After a nil
// return the worker's writes to the slot are visible and the slot is
// Completed.
func (p *pool) join(s *slot) error {
	select {
	case err := <-s.done:
		if err != nil {
			return err
		}
		s.state = slotCompleted
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// close stops the workers and returns the first error any of them hit.
func (p *pool) close() error {
	close(p.tasks)
	return p.g.Wait()
}
