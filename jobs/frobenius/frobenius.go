// Package frobenius computes the Frobenius norm of a matrix given as
// whitespace-separated rows.
package frobenius

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/bektastalayoglu/MapReduce/mapreduce"
)

// Label is the key of the single output record.
const Label = "Frobenius Norm"

// Job sums the squares of all elements under the universal (null) key,
// then regroups the partial sums and takes the square root.
type Job struct{}

func New() *Job {
	return &Job{}
}

func (j *Job) Name() string { return "frobenius" }

func (j *Job) Stages() []mapreduce.Stage {
	return []mapreduce.Stage{
		{
			Name:    "squares",
			Map:     squareElements,
			Combine: sumSquares,
			Reduce:  sumSquares,
		},
		mapreduce.RegroupAll("norm", nil, norm),
	}
}

// ParseRow parses one matrix row.
func ParseRow(line string) ([]float64, error) {
	fields := strings.Fields(line)
	row := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, &mapreduce.MalformedRecordError{Record: line, Reason: fmt.Sprintf("element %d: %v", i, err)}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &mapreduce.MalformedRecordError{Record: line, Reason: fmt.Sprintf("element %d: %q is not finite", i, f)}
		}
		row[i] = v
	}

	return row, nil
}

func squareElements(_ context.Context, _, val mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	var line string
	if err := val.Decode(&line); err != nil {
		return nil, err
	}

	row, err := ParseRow(line)
	if err != nil {
		return nil, err
	}

	kvs := make([]mapreduce.KeyVal, len(row))
	for i, v := range row {
		kvs[i] = mapreduce.KeyVal{Val: v * v}
	}

	return kvs, nil
}

func sumSquares(_ context.Context, key mapreduce.Datum, vals []mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	total, err := sum(vals)
	if err != nil {
		return nil, err
	}

	return []mapreduce.KeyVal{{Key: key, Val: total}}, nil
}

func norm(_ context.Context, _ mapreduce.Datum, vals []mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	total, err := sum(vals)
	if err != nil {
		return nil, err
	}

	return []mapreduce.KeyVal{{Key: Label, Val: math.Sqrt(total)}}, nil
}

func sum(vals []mapreduce.Datum) (float64, error) {
	squares, err := mapreduce.DecodeAll[float64](vals)
	if err != nil {
		return 0, err
	}

	// partials arrive in scheduling order; sum in a fixed one
	slices.Sort(squares)

	var total float64
	for _, s := range squares {
		total += s
	}

	return total, nil
}
