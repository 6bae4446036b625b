package mapreduce

import (
	"context"
	"fmt"
)

// Stage is one map/combine/shuffle/reduce pass. Every function is
// optional but at least one must be set.
//
// Without Map, input records keep their key and are grouped directly, so
// the previous stage's emissions are regrouped by their emitted key.
// Without Reduce, map (and combine) output is the stage output.
type Stage struct {
	Name    string
	Map     MapFunc
	Combine CombineFunc
	Reduce  ReduceFunc
}

func (s Stage) validate() error {
	if s.Map == nil && s.Combine == nil && s.Reduce == nil {
		return ErrEmptyStage
	}

	return nil
}

// RegroupAll returns a stage that moves every incoming value under key
// before reducing, so a single reduce call sees all partial results of
// the previous stage.
func RegroupAll(name string, key any, reduce ReduceFunc) Stage {
	return Stage{
		Name: name,
		Map: func(_ context.Context, _, val Datum) ([]KeyVal, error) {
			return []KeyVal{{Key: key, Val: val}}, nil
		},
		Reduce: reduce,
	}
}

// IdentityReduce re-emits each value under its key.
func IdentityReduce(_ context.Context, key Datum, vals []Datum) ([]KeyVal, error) {
	out := make([]KeyVal, len(vals))
	for i, v := range vals {
		out[i] = KeyVal{Key: key, Val: v}
	}

	return out, nil
}

func stageName(idx int, s Stage) string {
	if s.Name != "" {
		return s.Name
	}

	return fmt.Sprintf("stage-%d", idx)
}
