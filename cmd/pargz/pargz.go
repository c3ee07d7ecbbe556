package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rasky/pargz"

	"github.com/djherbis/atime"
	"github.com/klauspost/pgzip"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const VERSION = "1.0"

var flagCompress = pflag.BoolP("compress", "c", false, "compress FILE, using NUMWORKERS workers")
var flagDecompress = pflag.BoolP("decompress", "d", false, "decompress")
var flagStdout = pflag.Bool("stdout", false, "write on standard output")
var flagForce = pflag.BoolP("force", "f", false, "force overwrite of output file")
var flagHelp = pflag.BoolP("help", "h", false, "give this help")
var flagLicense = pflag.BoolP("license", "L", false, "display software license")
var flagList = pflag.BoolP("list", "l", false, "list compressed file contents")
var flagTest = pflag.BoolP("test", "t", false, "test compressed file integrity")
var flagVerbose = pflag.CountP("verbose", "v", "verbose mode (twice for per-block events)")
var flagVersion = pflag.BoolP("version", "V", false, "display version number")
var flagCodec = pflag.String("codec", "gzip", "member framing: "+strings.Join(pargz.CodecNames(), ", "))
var flagBlockSize = pflag.IntP("block-size", "b", pargz.DefaultChunkSize, "size of each independently compressed block")
var flagWorkers = pflag.IntP("workers", "w", 0, "number of compression workers (default: number of CPUs)")
var flagConfig = pflag.String("config", "", "read options from a YAML file")
var flagL0 = pflag.Bool("0", false, "")
var flagL1 = pflag.BoolP("fast", "1", false, "compress faster")
var flagL2 = pflag.Bool("2", false, "")
var flagL3 = pflag.Bool("3", false, "")
var flagL4 = pflag.Bool("4", false, "")
var flagL5 = pflag.Bool("5", false, "")
var flagL6 = pflag.Bool("6", false, "")
var flagL7 = pflag.Bool("7", false, "")
var flagL8 = pflag.Bool("8", false, "")
var flagL9 = pflag.BoolP("best", "9", false, "compress better")
var flagRsyncable = pflag.Bool("rsyncable", false, "make rsync-friendly archive")

const (
	ModeCompress = iota
	ModeDecompress
	ModeTest
	ModeList
)

var Mode = -1
var Level int = 6
var OutFn string
var IsStdinTerm bool = term.IsTerminal(int(os.Stdin.Fd()))
var IsStdoutTerm bool = term.IsTerminal(int(os.Stdout.Fd()))
var Log = zap.NewNop()

func main() {
	// Report bad flags ourselves, with the same exit status as any other
	// usage error.
	pflag.CommandLine.Init(os.Args[0], pflag.ContinueOnError)
	pflag.CommandLine.SetOutput(io.Discard)
	if err := pflag.CommandLine.Parse(os.Args[1:]); err != nil {
		fatal(err)
		Usage()
		os.Exit(1)
	}
	if *flagHelp {
		Usage()
		return
	}
	if *flagVersion {
		fmt.Println("pargz", VERSION)
		return
	}
	if *flagLicense {
		License()
		return
	}

	switch {
	case *flagL0:
		Level = 0
	case *flagL1:
		Level = 1
	case *flagL2:
		Level = 2
	case *flagL3:
		Level = 3
	case *flagL4:
		Level = 4
	case *flagL5:
		Level = 5
	case *flagL6:
		Level = 6
	case *flagL7:
		Level = 7
	case *flagL8:
		Level = 8
	case *flagL9:
		Level = 9
	}

	switch {
	case *flagCompress:
		Mode = ModeCompress
	case *flagDecompress:
		Mode = ModeDecompress
	case *flagTest:
		Mode = ModeTest
	case *flagList:
		Mode = ModeList
	}

	args := pflag.Args()
	if !validArgs(Mode, args) {
		Usage()
		os.Exit(1)
	}

	Log = newLogger(*flagVerbose)
	defer Log.Sync()

	opts, err := buildOptions(args)
	if err != nil {
		fatal(err)
		os.Exit(1)
	}

	SetSignalHandler()
	if Mode == ModeTest || Mode == ModeList {
		os.Exit(inspect(args, opts))
	}
	if !processFile(args[0], opts) {
		os.Exit(1)
	}
}

// validArgs checks the positional arguments against the mode: compression
// takes a file and an optional worker count, decompression one file, test
// and list any number of files.
func validArgs(mode int, args []string) bool {
	switch mode {
	case ModeCompress:
		return len(args) == 1 || len(args) == 2
	case ModeDecompress:
		return len(args) == 1
	case ModeTest, ModeList:
		return len(args) >= 1
	default:
		return false
	}
}

func buildOptions(args []string) (*pargz.Options, error) {
	opts := pargz.DefaultOptions()
	opts.Level = Level
	opts.ChunkSize = *flagBlockSize
	opts.Rsyncable = *flagRsyncable
	opts.Logger = Log
	if *flagWorkers != 0 {
		opts.Workers = *flagWorkers
	}
	c, err := pargz.CodecByName(*flagCodec)
	if err != nil {
		return nil, err
	}
	opts.Codec = c

	if *flagConfig != "" {
		cfg, err := loadConfig(*flagConfig)
		if err != nil {
			return nil, err
		}
		if err := cfg.apply(opts, pflag.CommandLine.Changed); err != nil {
			return nil, err
		}
	}

	if Mode == ModeCompress && len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid number of workers %q", args[1])
		}
		opts.Workers = n
	}
	return opts, nil
}

func newLogger(verbose int) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	switch {
	case verbose >= 2:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case verbose == 1:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func SetSignalHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	go func() {
		<-ch
		if OutFn != "" {
			os.Remove(OutFn)
		}
		os.Exit(1)
	}()
}

func CopyStat(w *os.File, f *os.File) {
	fi, err := f.Stat()
	if err == nil {
		w.Chmod(fi.Mode())
		if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
			w.Chown(int(sys.Uid), int(sys.Gid))
			os.Chtimes(w.Name(), atime.Get(fi), fi.ModTime())
		}
	}
}

func fatal(args ...interface{}) {
	fmt.Fprint(os.Stderr, "pargz: ")
	fmt.Fprintln(os.Stderr, args...)
}

// outputName is the file written for fn in the given mode: compression
// appends the codec suffix, decompression strips it, or appends ".uc" if
// fn doesn't carry it.
func outputName(fn string, mode int, codec pargz.Codec) string {
	suffix := "." + codec.Ext()
	switch mode {
	case ModeCompress:
		return fn + suffix
	case ModeDecompress:
		if strings.HasSuffix(fn, suffix) && len(fn) > len(suffix) {
			return strings.TrimSuffix(fn, suffix)
		}
		return fn + ".uc"
	}
	return ""
}

func processFile(fn string, opts *pargz.Options) bool {
	var f *os.File
	var w *os.File

	outStdout := *flagStdout
	if fn == "-" {
		f = os.Stdin
		outStdout = true
	} else {
		var err error
		f, err = os.Open(fn)
		if err != nil {
			fatal(err)
			return false
		}
		defer f.Close()
	}

	if outStdout {
		w = os.Stdout
		if Mode == ModeCompress && IsStdoutTerm && !*flagForce {
			fatal("cannot compress to terminal (use -f to force)")
			return false
		}
	} else {
		outfn := outputName(fn, Mode, opts.Codec)

		if !*flagForce {
			if _, err := os.Stat(outfn); err == nil {
				if !IsStdinTerm {
					fatal(outfn, "already exists; not overwritten")
					return false
				}
				fmt.Printf("pargz: %s already exists; do you wish to overwrite (y or n)? ", outfn)
				reader := bufio.NewReader(os.Stdin)
				input, _ := reader.ReadString('\n')
				if len(input) == 0 || input[0] != 'y' {
					fmt.Println("\tnot overwritten")
					return true
				}
			}
		}

		var err error
		w, err = os.Create(outfn)
		if err != nil {
			fatal(err)
			return false
		}
		// Setup the global used by the signal handler, so that if we
		// interrupt before the compression/decompression is finished,
		// the partial file will be deleted
		OutFn = outfn
		defer func() {
			if OutFn != "" {
				os.Remove(OutFn)
			}
		}()
		defer w.Close()
	}

	// Buffer the sink: members are small, and the pipeline writes them
	// one by one.
	bw := bufio.NewWriterSize(w, 256*1024)

	var st pargz.Stats
	var err error
	switch Mode {
	case ModeCompress:
		st, err = pargz.Compress(context.Background(), bw, f, opts)
	case ModeDecompress:
		st, err = pargz.Decompress(context.Background(), bw, f, opts)
	}
	if err != nil {
		bw.Flush()
		fatal(err)
		return false
	}
	if err := bw.Flush(); err != nil {
		fatal(err)
		return false
	}

	Log.Info("done",
		zap.String("input", fn),
		zap.Int64("members", st.Members),
		zap.Int64("raw_bytes", st.RawBytes),
		zap.Int64("compressed_bytes", st.CompressedBytes))

	if !outStdout {
		CopyStat(w, f)
		if err := w.Close(); err != nil {
			fatal(err)
			return false
		}
		OutFn = ""
	}
	return true
}

// inspect implements --test and --list over every file in args.
func inspect(args []string, opts *pargz.Options) int {
	if Mode == ModeList {
		fmt.Printf("%10s %12s %12s %6s  %s\n", "members", "compressed", "uncompressed", "ratio", "uncompressed_name")
	}
	ret := 0
	for _, fn := range args {
		st, err := inspectFile(fn, opts)
		if err != nil {
			fatal(fn+":", err)
			ret = 1
			continue
		}
		switch Mode {
		case ModeList:
			fmt.Printf("%10d %12d %12d %5.1f%%  %s\n", st.Members, st.CompressedBytes, st.RawBytes,
				ratio(st), outputName(fn, ModeDecompress, opts.Codec))
		case ModeTest:
			if *flagVerbose > 0 {
				fmt.Printf("%s:\tOK\n", fn)
			}
		}
	}
	return ret
}

func inspectFile(fn string, opts *pargz.Options) (pargz.Stats, error) {
	var f *os.File
	if fn == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(fn)
		if err != nil {
			return pargz.Stats{}, err
		}
		defer f.Close()
	}

	st, err := pargz.Inspect(context.Background(), bufio.NewReader(f), opts)
	if err != nil {
		return st, err
	}

	// A gzip file must also be readable by a standard multistream gzip
	// decoder; check it with an independent implementation when the input
	// can be rewound.
	if Mode == ModeTest && opts.Codec == pargz.Gzip && st.Members > 0 {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			if err := checkGzip(f, st.RawBytes); err != nil {
				return st, err
			}
		}
	}
	return st, nil
}

func checkGzip(r io.Reader, want int64) error {
	zr, err := pgzip.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()
	n, err := io.Copy(io.Discard, zr)
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("gzip decoder produced %d bytes, expected %d", n, want)
	}
	return nil
}

func ratio(st pargz.Stats) float64 {
	if st.RawBytes == 0 {
		return 0
	}
	return 100 * (1 - float64(st.CompressedBytes)/float64(st.RawBytes))
}

func Usage() {
	// We prefer not to use pflag.Usage for the following reason:
	// 1) It orders by longname option, which is confusing for this option set
	// 2) It shows "[=false]" next to all boolean options
	fmt.Print(`Usage: pargz -c [OPTION]... FILE [NUMWORKERS]
  or:  pargz -d [OPTION]... FILE
  or:  pargz -t|-l [OPTION]... FILE...
Compress FILE in parallel into FILE.gz, made of independently compressed
blocks, or decompress such a file.

Mandatory arguments to long options are mandatory for short options too.

  -c, --compress        compress FILE using NUMWORKERS workers
  -d, --decompress      decompress
      --stdout          write on standard output, keep original files unchanged
  -f, --force           force overwrite of output file
  -h, --help            give this help
  -l, --list            list compressed file contents
  -L, --license         display software license
  -t, --test            test compressed file integrity
  -v, --verbose         verbose mode (repeat for per-block events)
  -V, --version         display version number
  -1, --fast            compress faster
  -9, --best            compress better
  -b, --block-size=N    size of each independently compressed block (default 4096)
  -w, --workers=N       number of compression workers (default: number of CPUs)
      --codec=NAME      member framing: deflate, gzip, zlib (default gzip)
      --rsyncable       make rsync-friendly archive
      --config=FILE     read options from a YAML file

With FILE -, read standard input and write standard output.

Report bugs to <rasky@develer.com>.

`)
}

func License() {
	fmt.Println("pargz", VERSION)
	fmt.Println("Copyright (C) 2015 Giovanni Bajo.")
	fmt.Println(`
Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.`)
}
