package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bektastalayoglu/MapReduce/mapreduce"
)

func reverse(t *testing.T, cfg mapreduce.Config, lines ...string) map[string][]string {
	t.Helper()

	mr, err := mapreduce.NewJob(cfg, New())
	require.NoError(t, err)

	res, err := mr.Run(context.Background(), mapreduce.Lines(lines...))
	require.NoError(t, err)

	out := make(map[string][]string)
	for _, rec := range res.Records {
		var target string
		var sources []string
		require.NoError(t, rec.Key.Decode(&target))
		require.NoError(t, rec.Val.Decode(&sources))
		out[target] = sources
	}

	return out
}

func TestReverse(t *testing.T) {
	got := reverse(t, mapreduce.Config{Mappers: 2, Reducers: 2}, "1\t2", "3\t2")

	require.Len(t, got, 1)
	require.ElementsMatch(t, []string{"1", "3"}, got["2"])
}

func TestReverse_CommentsAndBlankLines(t *testing.T) {
	got := reverse(t, mapreduce.Config{},
		"# Directed graph (each unordered pair of nodes is saved once): web-Google.txt",
		"# FromNodeId\tToNodeId",
		"0\t11342",
		"",
		"0 824020",
		"11342\t0",
		"824020\t0",
	)

	require.Equal(t, map[string][]string{
		"0":      {"11342", "824020"},
		"11342":  {"0"},
		"824020": {"0"},
	}, got)
}

func TestReverse_EveryEdgeKept(t *testing.T) {
	var lines []string
	for src := range 20 {
		for dst := range 20 {
			if src != dst && (src+dst)%3 == 0 {
				lines = append(lines, fmt.Sprintf("%d\t%d", src, dst))
			}
		}
	}

	got := reverse(t, mapreduce.Config{Mappers: 4, Reducers: 3}, lines...)

	edges := 0
	for target, sources := range got {
		for _, src := range sources {
			require.Contains(t, lines, src+"\t"+target)
		}
		edges += len(sources)
	}
	require.Equal(t, len(lines), edges)
}

func TestReverse_MalformedLine(t *testing.T) {
	mr, err := mapreduce.NewJob(mapreduce.Config{}, New())
	require.NoError(t, err)

	_, err = mr.Run(context.Background(), mapreduce.Lines("1\t2", "lonely"))

	var malformed *mapreduce.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "lonely", malformed.Record)

	var stageErr *mapreduce.StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, "reverse", stageErr.Name)
}
