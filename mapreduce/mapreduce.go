package mapreduce

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bektastalayoglu/MapReduce/mapreduce/storage/inmemory"
	"github.com/bektastalayoglu/MapReduce/pkg/caller"
	"github.com/bektastalayoglu/MapReduce/pkg/tracer"
)

const (
	DefaultSpillThreshold = 1024

	transportBuffer = 64
)

// Config tunes a Pipeline. Zero values select defaults.
type Config struct {
	// Mappers and Reducers default to GOMAXPROCS.
	Mappers  int
	Reducers int

	// CombineBatch is the number of map emissions a mapper collects before
	// running the combiner. 0 means one batch per mapper per stage.
	CombineBatch int

	// SpillThreshold is the number of values a reducer buffers before
	// appending them to Storage.
	SpillThreshold int

	// Storage holds shuffle groups. Defaults to an in-memory store.
	Storage Storage

	Logger *slog.Logger
	Tracer trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.Mappers <= 0 {
		c.Mappers = runtime.GOMAXPROCS(0)
	}
	if c.Reducers <= 0 {
		c.Reducers = runtime.GOMAXPROCS(0)
	}
	if c.CombineBatch < 0 {
		c.CombineBatch = 0
	}
	if c.SpillThreshold <= 0 {
		c.SpillThreshold = DefaultSpillThreshold
	}
	if c.Storage == nil {
		c.Storage = inmemory.New()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = tracer.DefaultTracer
	}

	return c
}

// Pipeline runs an ordered list of stages, feeding each stage's output
// records to the next one.
type Pipeline struct {
	cfg       Config
	stages    []Stage
	partition PartitionFunc
}

func New(cfg Config, stages ...Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}

	for i, st := range stages {
		if err := st.validate(); err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, stageName(i, st), err)
		}
	}

	cfg = cfg.withDefaults()

	return &Pipeline{
		cfg:       cfg,
		stages:    slices.Clone(stages),
		partition: HashPartition(cfg.Reducers),
	}, nil
}

// NewJob builds a pipeline from a job's stages.
func NewJob(cfg Config, job Job) (*Pipeline, error) {
	p, err := New(cfg, job.Stages()...)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name(), err)
	}

	return p, nil
}

// Result is the output of one Run.
type Result struct {
	RunID string

	// Records are the final stage's emissions sorted by key, then value.
	Records []Record

	// Stats has one entry per executed stage.
	Stats []*Stats
}

// Run consumes in until it is closed and runs every stage in order. The
// first failure aborts the run, no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, in <-chan KeyVal) (*Result, error) {
	runID := uuid.NewString()
	log := p.cfg.Logger.With("run", runID)

	ctx, span := p.cfg.Tracer.Start(ctx, caller.Name(), trace.WithAttributes(
		attribute.String("run", runID),
		attribute.Int("stages", len(p.stages)),
	))
	defer span.End()

	res := &Result{RunID: runID}
	src := channelSource(in)

	for i, st := range p.stages {
		recs, stats, err := p.runStage(ctx, runID, i, st, src, log)
		res.Stats = append(res.Stats, stats)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error("pipeline: run failed", "err", err)
			return nil, err
		}

		res.Records = recs
		src = sliceSource(recs)
	}

	slices.SortFunc(res.Records, compareRecords)

	log.Info("pipeline: run finished", "records", len(res.Records))

	return res, nil
}

// source pushes a stage's input records through send.
type source func(ctx context.Context, send func(Record) error) error

func channelSource(in <-chan KeyVal) source {
	return func(ctx context.Context, send func(Record) error) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case kv, open := <-in:
				if !open {
					return nil
				}

				rec, err := EncodeKeyVal(kv)
				if err != nil {
					return err
				}

				if err := send(rec); err != nil {
					return err
				}
			}
		}
	}
}

func sliceSource(recs []Record) source {
	return func(ctx context.Context, send func(Record) error) error {
		for _, rec := range recs {
			if err := send(rec); err != nil {
				return err
			}
		}

		return nil
	}
}

func (p *Pipeline) runStage(ctx context.Context, runID string, idx int, st Stage, src source, log *slog.Logger) ([]Record, *Stats, error) {
	name := stageName(idx, st)
	stats := &Stats{Stage: name}
	log = log.With("stage", name)

	ctx, span := p.cfg.Tracer.Start(ctx, caller.Name(), trace.WithAttributes(
		attribute.Int("stage.index", idx),
		attribute.String("stage.name", name),
	))
	defer span.End()

	env := &stageEnv{index: idx, name: name, stage: st, stats: stats, log: log}
	g, gctx := errgroup.WithContext(ctx)

	mappers, reducers := p.cfg.Mappers, p.cfg.Reducers
	direct := st.Reduce == nil

	inTrans := newTransport[Record](1, mappers, transportBuffer)
	var middleTrans, outTrans transport[Record]
	if direct {
		outTrans = newTransport[Record](mappers, 1, transportBuffer)
	} else {
		middleTrans = newTransport[Record](mappers, reducers, transportBuffer)
		outTrans = newTransport[Record](reducers, 1, transportBuffer)
	}

	g.Go(func() error {
		defer inTrans.Close()

		next := 0
		err := src(gctx, func(rec Record) error {
			id := next % mappers
			next++
			return inTrans.Send(gctx, id, rec)
		})
		if err != nil && gctx.Err() == nil {
			return env.fail(PhaseInput, err)
		}

		return err
	})

	for id := range mappers {
		m := &mapper{
			id:           id,
			env:          env,
			partitionFn:  p.partition,
			combineBatch: p.cfg.CombineBatch,
			direct:       direct,
			in:           inTrans,
			out:          outTrans,
		}
		if !direct {
			m.out = middleTrans
		}

		g.Go(func() error { return m.run(gctx) })
	}

	if !direct {
		for id := range reducers {
			r := &reducer{
				id:      id,
				env:     env,
				storage: p.cfg.Storage,
				bucket:  fmt.Sprintf("%s/%d/%d", runID, idx, id),
				spill:   p.cfg.SpillThreshold,
				in:      middleTrans,
				out:     outTrans,
			}

			g.Go(func() error { return r.run(gctx) })
		}
	}

	var out []Record
	g.Go(func() error {
		for {
			rec, open := outTrans.Recv(gctx, 0)
			if !open {
				return gctx.Err()
			}
			out = append(out, rec)
		}
	})

	log.Info("pipeline: stage started", "mappers", mappers, "reducers", reducers, "direct", direct)

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, stats, err
	}

	span.SetAttributes(
		attribute.Int64("map.in", int64(stats.MapIn.Load())),
		attribute.Int64("map.out", int64(stats.MapOut.Load())),
		attribute.Int64("reduce.groups", int64(stats.Groups.Load())),
		attribute.Int("out", len(out)),
	)
	log.Info("pipeline: stage finished", "stats", stats.String())

	return out, stats, nil
}

func compareRecords(a, b Record) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}

	return bytes.Compare(a.Val, b.Val)
}
