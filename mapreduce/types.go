package mapreduce

import "context"

// MapFunc is called once per input record. Raw input lines arrive with a
// null key and the line as a JSON string value.
type MapFunc func(ctx context.Context, key, val Datum) ([]KeyVal, error)

// CombineFunc pre-aggregates a partition-local subset of one key's values.
// It must be associative and commutative with respect to the stage's
// reduce: combining any split of a group and combining the results must
// equal combining the whole group. The engine may call it on any
// partitioning of the map output, including not at all.
type CombineFunc func(ctx context.Context, key Datum, vals []Datum) ([]KeyVal, error)

// ReduceFunc is called exactly once per distinct key with the full group.
type ReduceFunc func(ctx context.Context, key Datum, vals []Datum) ([]KeyVal, error)

// PartitionFunc maps an encoded key to a reducer id in [0, reducers).
type PartitionFunc func(key Datum) int

// KeyVal is an emission as produced by user functions. Key and Val may be
// any JSON-encodable value, or an already encoded Datum.
type KeyVal struct {
	Key any
	Val any
}

// Record is an encoded emission. Records are what flows between phases
// and between stages.
type Record struct {
	Key Datum
	Val Datum
}

func (r Record) String() string {
	return r.Key.String() + "\t" + r.Val.String()
}

// Group holds every value emitted under one key within a stage.
type Group struct {
	Key  Datum
	Vals []Datum
}

// Job is a named pipeline topology.
type Job interface {
	Name() string
	Stages() []Stage
}
