// Package knn classifies unlabelled samples by a majority vote of their K
// nearest labelled neighbours.
package knn

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/bektastalayoglu/MapReduce/mapreduce"
)

const DefaultK = 15

// Config is the labelled data the classifier compares against. It is
// loaded before the pipeline starts.
type Config struct {
	// K defaults to DefaultK.
	K int

	// Known are the labelled samples, already scaled.
	Known []Sample

	// Scaler, if set, is applied to every input sample before distances
	// are computed. It should be the one Known was scaled with.
	Scaler *Scaler
}

// Job emits, for every unknown input sample, its distance to every known
// sample, and reduces those to the majority label of the K nearest.
type Job struct {
	k      int
	known  []Sample
	scaler *Scaler
	dims   int
}

func New(cfg Config) (*Job, error) {
	if cfg.K == 0 {
		cfg.K = DefaultK
	}
	if cfg.K < 0 {
		return nil, fmt.Errorf("k must be positive, got %d", cfg.K)
	}
	if len(cfg.Known) == 0 {
		return nil, errors.New("no known samples")
	}

	dims := len(cfg.Known[0].Features)
	for _, s := range cfg.Known {
		if !s.Known() {
			return nil, fmt.Errorf("sample %s has no label", s.ID)
		}
		if len(s.Features) != dims {
			return nil, fmt.Errorf("sample %s: want %d features, got %d", s.ID, dims, len(s.Features))
		}
	}

	return &Job{
		k:      cfg.K,
		known:  cfg.Known,
		scaler: cfg.Scaler,
		dims:   dims,
	}, nil
}

func (j *Job) Name() string { return "knn" }

func (j *Job) Stages() []mapreduce.Stage {
	return []mapreduce.Stage{
		{Name: "classify", Map: j.mapDistances, Reduce: j.reduceVote},
	}
}

// Neighbor is one known sample as seen from an unknown one.
type Neighbor struct {
	Distance float64 `json:"distance"`
	Label    string  `json:"label"`
}

func (j *Job) mapDistances(_ context.Context, _, val mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	var line string
	if err := val.Decode(&line); err != nil {
		return nil, err
	}

	sample, ok, err := ParseLine(line)
	if err != nil || !ok || sample.Known() {
		return nil, err
	}

	if len(sample.Features) != j.dims {
		return nil, &mapreduce.MalformedRecordError{
			Record: line,
			Reason: fmt.Sprintf("want %d features, got %d", j.dims, len(sample.Features)),
		}
	}

	features := sample.Features
	if j.scaler != nil {
		features = j.scaler.Apply(features)
	}

	kvs := make([]mapreduce.KeyVal, len(j.known))
	for i, known := range j.known {
		kvs[i] = mapreduce.KeyVal{
			Key: sample.ID,
			Val: Neighbor{Distance: Distance(features, known.Features), Label: known.Label},
		}
	}

	return kvs, nil
}

func (j *Job) reduceVote(_ context.Context, key mapreduce.Datum, vals []mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	neighbors, err := mapreduce.DecodeAll[Neighbor](vals)
	if err != nil {
		return nil, err
	}

	return []mapreduce.KeyVal{{Key: key, Val: Vote(neighbors, j.k)}}, nil
}

// Vote returns the majority label among the k nearest neighbors.
//
// Neighbors are ordered by distance, then label, so equal distances do not
// depend on arrival order. A tie in the vote goes to the tied label whose
// nearest member comes first in that order.
func Vote(neighbors []Neighbor, k int) string {
	slices.SortFunc(neighbors, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	counts := make(map[string]int)
	var order []string
	for _, n := range neighbors {
		if counts[n.Label] == 0 {
			order = append(order, n.Label)
		}
		counts[n.Label]++
	}

	best := ""
	for _, label := range order {
		if best == "" || counts[label] > counts[best] {
			best = label
		}
	}

	return best
}

// Distance is the Euclidean distance between two feature vectors of the
// same length.
func Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	return math.Sqrt(sum)
}
