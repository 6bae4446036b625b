// Package graph reverses the edges of a directed graph given as an edge
// list, producing for every node the list of nodes linking to it.
package graph

import (
	"context"
	"slices"
	"strings"

	"github.com/bektastalayoglu/MapReduce/mapreduce"
)

// Job is a map-only stage emitting target -> source, followed by a
// reduce-only stage collecting all sources per target.
//
// There is no combiner: concatenating partial source lists early would
// not shrink what the shuffle has to move.
type Job struct{}

func New() *Job {
	return &Job{}
}

func (j *Job) Name() string { return "reversegraph" }

func (j *Job) Stages() []mapreduce.Stage {
	return []mapreduce.Stage{
		{Name: "reverse", Map: reverseEdge},
		{Name: "collect", Reduce: collectSources},
	}
}

// ParseEdge splits a "source target" line. Comment lines (starting with
// '#') and blank lines report ok == false.
func ParseEdge(line string) (source, target string, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false, nil
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", false, &mapreduce.MalformedRecordError{Record: line, Reason: "want source and target node"}
	}

	return fields[0], fields[1], true, nil
}

func reverseEdge(_ context.Context, _, val mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	var line string
	if err := val.Decode(&line); err != nil {
		return nil, err
	}

	source, target, ok, err := ParseEdge(line)
	if err != nil || !ok {
		return nil, err
	}

	return []mapreduce.KeyVal{{Key: target, Val: source}}, nil
}

func collectSources(_ context.Context, key mapreduce.Datum, vals []mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	sources, err := mapreduce.DecodeAll[string](vals)
	if err != nil {
		return nil, err
	}
	slices.Sort(sources)

	return []mapreduce.KeyVal{{Key: key, Val: sources}}, nil
}
