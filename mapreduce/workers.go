package mapreduce

import (
	"context"
	"fmt"
	"log/slog"
)

// stageEnv is what every worker of one stage shares.
type stageEnv struct {
	index int
	name  string
	stage Stage
	stats *Stats
	log   *slog.Logger
}

func (e *stageEnv) fail(phase Phase, err error) error {
	return &StageError{Index: e.index, Name: e.name, Phase: phase, Err: err}
}

type mapper struct {
	id           int
	env          *stageEnv
	partitionFn  PartitionFunc
	combineBatch int

	// direct is set when the stage has no reduce: output goes straight
	// to the collector instead of being partitioned.
	direct bool

	in  transport[Record]
	out transport[Record]

	pending []Record
}

func (m *mapper) run(ctx context.Context) error {
	defer m.out.Close()

	for {
		in, open := m.in.Recv(ctx, m.id)
		if !open {
			break
		}
		m.env.stats.MapIn.Add(1)

		out, err := m.apply(ctx, in)
		if err != nil {
			return err
		}

		for _, rec := range out {
			if err := m.emit(ctx, rec); err != nil {
				return err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.env.log.Debug("mapper: transport closed, flushing", "id", m.id, "pending", len(m.pending))

	return m.flush(ctx)
}

func (m *mapper) apply(ctx context.Context, in Record) ([]Record, error) {
	if m.env.stage.Map == nil {
		return []Record{in}, nil
	}

	kvs, err := m.env.stage.Map(ctx, in.Key, in.Val)
	if err != nil {
		return nil, m.env.fail(PhaseMap, fmt.Errorf("record %s: %w", in, err))
	}

	recs, err := encodeAll(kvs)
	if err != nil {
		return nil, m.env.fail(PhaseMap, err)
	}

	return recs, nil
}

func (m *mapper) emit(ctx context.Context, rec Record) error {
	m.env.stats.MapOut.Add(1)

	if m.env.stage.Combine == nil {
		return m.send(ctx, rec)
	}

	m.pending = append(m.pending, rec)
	if m.combineBatch > 0 && len(m.pending) >= m.combineBatch {
		return m.flush(ctx)
	}

	return nil
}

// flush runs the combiner over the pending batch, one call per key.
func (m *mapper) flush(ctx context.Context) error {
	if len(m.pending) == 0 {
		return nil
	}

	batch := m.pending
	m.pending = nil
	m.env.stats.CombineIn.Add(uint64(len(batch)))

	for _, g := range groupRecords(batch) {
		kvs, err := m.env.stage.Combine(ctx, g.Key, g.Vals)
		if err != nil {
			return m.env.fail(PhaseCombine, fmt.Errorf("key %s: %w", g.Key, err))
		}

		recs, err := encodeAll(kvs)
		if err != nil {
			return m.env.fail(PhaseCombine, err)
		}

		for _, rec := range recs {
			m.env.stats.CombineOut.Add(1)
			if err := m.send(ctx, rec); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *mapper) send(ctx context.Context, rec Record) error {
	id := 0
	if !m.direct {
		id = m.partitionFn(rec.Key)
	}

	return m.out.Send(ctx, id, rec)
}

type reducer struct {
	id      int
	env     *stageEnv
	storage Storage
	bucket  string
	spill   int

	in  transport[Record]
	out transport[Record]

	buffered int
	buffer   map[string][][]byte
	order    []string
}

func (r *reducer) run(ctx context.Context) (err error) {
	defer r.out.Close()
	defer func() {
		dropErr := r.storage.Drop(context.WithoutCancel(ctx), r.bucket)
		if dropErr != nil && err == nil {
			err = r.env.fail(PhaseShuffle, fmt.Errorf("drop bucket %s: %w", r.bucket, dropErr))
		}
	}()

	r.buffer = make(map[string][][]byte)

	for {
		in, open := r.in.Recv(ctx, r.id)
		if !open {
			// mapping phase is over
			// move on to reduce phase
			break
		}
		r.env.stats.ReduceIn.Add(1)

		if err := r.add(ctx, in); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.spillBuffer(ctx); err != nil {
		return err
	}

	r.env.log.Debug("reducer: transport closed, starting reduce phase", "id", r.id)

	keys, err := r.storage.Keys(ctx, r.bucket)
	if err != nil {
		return r.env.fail(PhaseShuffle, err)
	}

	for _, key := range keys {
		if err := r.reduce(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

func (r *reducer) add(ctx context.Context, in Record) error {
	key := string(in.Key)
	if _, ok := r.buffer[key]; !ok {
		r.order = append(r.order, key)
	}
	r.buffer[key] = append(r.buffer[key], in.Val)
	r.buffered++

	if r.buffered >= r.spill {
		return r.spillBuffer(ctx)
	}

	return nil
}

func (r *reducer) spillBuffer(ctx context.Context) error {
	for _, key := range r.order {
		if err := r.storage.Append(ctx, r.bucket, key, r.buffer[key]); err != nil {
			return r.env.fail(PhaseShuffle, err)
		}
	}

	clear(r.buffer)
	r.order = r.order[:0]
	r.buffered = 0

	return nil
}

func (r *reducer) reduce(ctx context.Context, key string) error {
	raw, err := r.storage.Get(ctx, r.bucket, key)
	if err != nil {
		return r.env.fail(PhaseShuffle, err)
	}

	vals := make([]Datum, len(raw))
	for i, v := range raw {
		vals[i] = Datum(v)
	}
	r.env.stats.Groups.Add(1)

	kvs, err := r.env.stage.Reduce(ctx, Datum(key), vals)
	if err != nil {
		return r.env.fail(PhaseReduce, fmt.Errorf("key %s: %w", key, err))
	}

	recs, err := encodeAll(kvs)
	if err != nil {
		return r.env.fail(PhaseReduce, err)
	}

	for _, rec := range recs {
		if err := r.out.Send(ctx, 0, rec); err != nil {
			return err
		}
		r.env.stats.ReduceOut.Add(1)
	}

	return nil
}

func encodeAll(kvs []KeyVal) ([]Record, error) {
	recs := make([]Record, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := EncodeKeyVal(kv)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, nil
}
