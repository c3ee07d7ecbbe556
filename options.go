package pargz

import (
	"runtime"

	"go.uber.org/zap"
)

// DefaultChunkSize is the size of the raw blocks that are compressed
// independently. Smaller blocks parallelize better and cost more framing.
const DefaultChunkSize = 4096

// DefaultReadSize is how many compressed bytes the decoder pulls from its
// source per read.
const DefaultReadSize = 16 * 1024

// MaxChunkSize bounds ChunkSize so that a slot's buffers stay reasonable.
const MaxChunkSize = 64 << 20

// Options configures compression and decompression. The zero value of a
// field selects its default, except Level, which is handed to the codec
// unchanged (zero is NoCompression, as in compress/flate); use
// DefaultOptions to start from sane values.
type Options struct {
	// Codec frames every member. Defaults to Gzip.
	Codec Codec

	// Level is the compression level, from HuffmanOnly to BestCompression.
	Level int

	// ChunkSize is the maximum raw size of a block.
	ChunkSize int

	// Workers is the size of the compression pool. Defaults to the number
	// of CPUs.
	Workers int

	// Rsyncable cuts blocks at content-defined offsets, so that a local
	// change in the input only changes the surrounding members.
	Rsyncable bool

	// ReadSize is the decoder's source read size.
	ReadSize int

	// Logger receives debug events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultOptions returns options using the gzip codec at the default level.
func DefaultOptions() *Options {
	return &Options{
		Codec:     Gzip,
		Level:     DefaultCompression,
		ChunkSize: DefaultChunkSize,
		Workers:   runtime.NumCPU(),
		ReadSize:  DefaultReadSize,
	}
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		o = DefaultOptions()
	}
	opts := *o
	if opts.Codec == nil {
		opts.Codec = Gzip
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ReadSize == 0 {
		opts.ReadSize = DefaultReadSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &opts
}

func (o *Options) validate() error {
	if o.ChunkSize < 1 || o.ChunkSize > MaxChunkSize {
		return configError("chunk size %d out of range [1, %d]", o.ChunkSize, MaxChunkSize)
	}
	if o.Workers < 1 {
		return configError("worker count %d must be at least 1", o.Workers)
	}
	if o.ReadSize < 1 {
		return configError("read size %d must be at least 1", o.ReadSize)
	}
	if o.Level < HuffmanOnly || o.Level > BestCompression {
		return configError("compression level %d out of range [%d, %d]", o.Level, HuffmanOnly, BestCompression)
	}
	return nil
}

// capacity is the output capacity of a worker slot.
func (o *Options) capacity() int {
	return o.Codec.Bound(o.ChunkSize)
}
