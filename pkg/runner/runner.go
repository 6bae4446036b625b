// Package runner holds what every job command shares: flags, logging,
// tracing, scratch storage, input feeding and output writing.
package runner

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bektastalayoglu/MapReduce/mapreduce"
	"github.com/bektastalayoglu/MapReduce/mapreduce/storage/bbolt"
	"github.com/bektastalayoglu/MapReduce/pkg/tracer"
)

type Options struct {
	In           string
	Out          string
	Mappers      int
	Reducers     int
	CombineBatch int
	SpillDir     string
	LogLevel     string
	OTLPEndpoint string
}

// Flags registers the shared flags on fs.
func Flags(fs *flag.FlagSet) *Options {
	o := &Options{}
	fs.StringVar(&o.In, "in", "-", "input file, - for stdin")
	fs.StringVar(&o.Out, "out", "-", "output file, - for stdout")
	fs.IntVar(&o.Mappers, "mappers", 0, "number of mappers (default GOMAXPROCS)")
	fs.IntVar(&o.Reducers, "reducers", 0, "number of reducers (default GOMAXPROCS)")
	fs.IntVar(&o.CombineBatch, "combine-batch", 0, "map emissions per combine batch (0 = one batch per mapper)")
	fs.StringVar(&o.SpillDir, "spill-dir", "", "keep shuffle groups in a bbolt file in this directory instead of memory")
	fs.StringVar(&o.LogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.StringVar(&o.OTLPEndpoint, "otlp-endpoint", "", "export traces over OTLP/HTTP to this host:port")
	return o
}

// NewLogger returns a JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// Run executes job over the configured input and writes its output. No
// output is written if the job fails.
func Run(ctx context.Context, job mapreduce.Job, o *Options) (err error) {
	logger, err := NewLogger(os.Stderr, o.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if o.OTLPEndpoint != "" {
		shutdown, err := tracer.Init(o.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("runner: tracer shutdown", "err", err)
			}
		}()
	}

	cfg := mapreduce.Config{
		Mappers:      o.Mappers,
		Reducers:     o.Reducers,
		CombineBatch: o.CombineBatch,
		Logger:       logger.With("job", job.Name()),
	}

	if o.SpillDir != "" {
		storage, err := bbolt.New(filepath.Join(o.SpillDir, "shuffle-"+uuid.NewString()+".db"))
		if err != nil {
			return err
		}
		defer storage.Destroy()
		cfg.Storage = storage
	}

	pipeline, err := mapreduce.NewJob(cfg, job)
	if err != nil {
		return err
	}

	in, closeIn, err := openIn(o.In)
	if err != nil {
		return err
	}
	defer closeIn()

	recs, err := run(ctx, pipeline, in)
	if err != nil {
		return err
	}

	out, closeOut, err := openOut(o.Out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return mapreduce.WriteRecords(out, recs)
}

func run(ctx context.Context, pipeline *mapreduce.Pipeline, r io.Reader) ([]mapreduce.Record, error) {
	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan mapreduce.KeyVal)

	g.Go(func() error {
		return mapreduce.ReadLines(ctx, r, lines)
	})

	var res *mapreduce.Result
	g.Go(func() error {
		var err error
		res, err = pipeline.Run(ctx, lines)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return res.Records, nil
}

func openIn(path string) (io.Reader, func() error, error) {
	if path == "-" || path == "" {
		return os.Stdin, func() error { return nil }, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}

	return f, f.Close, nil
}

func openOut(path string) (io.Writer, func() error, error) {
	if path == "-" || path == "" {
		return os.Stdout, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}

	return f, f.Close, nil
}
