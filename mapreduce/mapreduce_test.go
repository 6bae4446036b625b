package mapreduce

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bektastalayoglu/MapReduce/mapreduce/storage/bbolt"
	"github.com/bektastalayoglu/MapReduce/mapreduce/storage/inmemory"
)

func countMap(_ context.Context, _, val Datum) ([]KeyVal, error) {
	var text string
	if err := val.Decode(&text); err != nil {
		return nil, err
	}

	wordCount := make(map[string]int)

	for _, word := range strings.Split(text, " ") {
		if len(word) == 0 {
			continue
		}

		wordCount[strings.ToLower(word)] += 1
	}

	kvs := make([]KeyVal, 0, len(wordCount))
	for word, count := range wordCount {
		kvs = append(kvs, KeyVal{Key: word, Val: count})
	}

	return kvs, nil
}

func countReduce(_ context.Context, key Datum, vals []Datum) ([]KeyVal, error) {
	counts, err := DecodeAll[int](vals)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	return []KeyVal{{Key: key, Val: total}}, nil
}

func sentences(seed uint64, n int) []string {
	faker := gofakeit.New(seed)

	out := make([]string, n)
	for i := range out {
		out[i] = faker.Sentence(faker.IntRange(10, 40))
	}

	return out
}

func expectedCounts(lines []string) map[string]int {
	want := make(map[string]int)
	for _, line := range lines {
		for _, word := range strings.Split(line, " ") {
			if len(word) == 0 {
				continue
			}
			want[strings.ToLower(word)]++
		}
	}

	return want
}

func toCounts(t *testing.T, recs []Record) map[string]int {
	t.Helper()

	got := make(map[string]int, len(recs))
	for _, rec := range recs {
		var word string
		var count int
		require.NoError(t, rec.Key.Decode(&word))
		require.NoError(t, rec.Val.Decode(&count))

		_, dup := got[word]
		require.False(t, dup, "word %q emitted twice", word)
		got[word] = count
	}

	return got
}

func TestWordCount(t *testing.T) {
	lines := sentences(1, 50)

	mr, err := New(Config{Mappers: 4, Reducers: 3}, Stage{Name: "count", Map: countMap, Reduce: countReduce})
	require.NoError(t, err)

	res, err := mr.Run(context.Background(), Lines(lines...))
	require.NoError(t, err)

	require.Equal(t, expectedCounts(lines), toCounts(t, res.Records))
	require.Len(t, res.Stats, 1)
	require.EqualValues(t, len(lines), res.Stats[0].MapIn.Load())
	require.EqualValues(t, len(res.Records), res.Stats[0].Groups.Load())
}

func TestWordCount_Bbolt(t *testing.T) {
	lines := sentences(2, 30)

	storage, err := bbolt.New(filepath.Join(t.TempDir(), "shuffle.db"))
	require.NoError(t, err)
	defer storage.Destroy()

	mr, err := New(Config{
		Mappers:        3,
		Reducers:       2,
		SpillThreshold: 7,
		Storage:        storage,
	}, Stage{Map: countMap, Reduce: countReduce})
	require.NoError(t, err)

	res, err := mr.Run(context.Background(), Lines(lines...))
	require.NoError(t, err)

	require.Equal(t, expectedCounts(lines), toCounts(t, res.Records))
}

func TestCombineTransparency(t *testing.T) {
	lines := sentences(3, 80)
	want := expectedCounts(lines)

	for _, mappers := range []int{1, 4} {
		for _, batch := range []int{0, 1, 3, 17} {
			t.Run(fmt.Sprintf("mappers=%d/batch=%d", mappers, batch), func(t *testing.T) {
				mr, err := New(Config{Mappers: mappers, Reducers: 2, CombineBatch: batch},
					Stage{Map: countMap, Combine: CombineFunc(countReduce), Reduce: countReduce})
				require.NoError(t, err)

				res, err := mr.Run(context.Background(), Lines(lines...))
				require.NoError(t, err)
				require.Equal(t, want, toCounts(t, res.Records))

				stats := res.Stats[0]
				require.Equal(t, stats.MapOut.Load(), stats.CombineIn.Load())
				require.LessOrEqual(t, stats.CombineOut.Load(), stats.CombineIn.Load())
				require.Equal(t, stats.CombineOut.Load(), stats.ReduceIn.Load())
			})
		}
	}
}

func TestMultiStage_NoMapRegroupsByEmittedKey(t *testing.T) {
	// stage 1 is map only, stage 2 reduce only: the reduce must see
	// stage 1's emissions grouped by the key stage 1 emitted
	words := func(_ context.Context, _, val Datum) ([]KeyVal, error) {
		var line string
		if err := val.Decode(&line); err != nil {
			return nil, err
		}

		var kvs []KeyVal
		for _, w := range strings.Fields(line) {
			kvs = append(kvs, KeyVal{Key: w, Val: 1})
		}
		return kvs, nil
	}

	mr, err := New(Config{Mappers: 2, Reducers: 2},
		Stage{Name: "split", Map: words},
		Stage{Name: "sum", Reduce: countReduce},
	)
	require.NoError(t, err)

	res, err := mr.Run(context.Background(), Lines("a b a", "b c", "a"))
	require.NoError(t, err)

	require.Equal(t, map[string]int{"a": 3, "b": 2, "c": 1}, toCounts(t, res.Records))
	require.Len(t, res.Stats, 2)
	require.Zero(t, res.Stats[0].Groups.Load())
	require.EqualValues(t, 6, res.Stats[0].MapOut.Load())
}

func TestRegroupAll_Idempotent(t *testing.T) {
	regroup := RegroupAll("regroup", nil, IdentityReduce)

	mr, err := New(Config{Mappers: 3, Reducers: 3}, regroup)
	require.NoError(t, err)

	in := make(chan KeyVal, 1)
	in <- KeyVal{Val: 25.0}
	close(in)

	first, err := mr.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, first.Records, 1)
	require.Equal(t, "null", first.Records[0].Key.String())
	require.Equal(t, "25", first.Records[0].Val.String())

	again := make(chan KeyVal, 1)
	again <- KeyVal{Key: first.Records[0].Key, Val: first.Records[0].Val}
	close(again)

	second, err := mr.Run(context.Background(), again)
	require.NoError(t, err)
	require.Equal(t, first.Records, second.Records)
}

func TestRegroupAll_CollectsEveryPartial(t *testing.T) {
	partials := func(_ context.Context, _, val Datum) ([]KeyVal, error) {
		var line string
		if err := val.Decode(&line); err != nil {
			return nil, err
		}
		return []KeyVal{{Key: line, Val: len(line)}}, nil
	}

	var calls int
	var mu sync.Mutex
	total := func(ctx context.Context, key Datum, vals []Datum) ([]KeyVal, error) {
		mu.Lock()
		calls++
		mu.Unlock()

		if !key.IsNull() {
			return nil, fmt.Errorf("want null key, got %s", key)
		}
		return countReduce(ctx, key, vals)
	}

	mr, err := New(Config{Mappers: 4, Reducers: 4},
		Stage{Map: partials, Reduce: countReduce},
		RegroupAll("total", nil, total),
	)
	require.NoError(t, err)

	res, err := mr.Run(context.Background(), Lines("a", "bb", "ccc", "dddd"))
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Len(t, res.Records, 1)
	require.Equal(t, "10", res.Records[0].Val.String())
}

func TestReduce_OncePerKey(t *testing.T) {
	mod := func(_ context.Context, _, val Datum) ([]KeyVal, error) {
		var n int
		if err := val.Decode(&n); err != nil {
			return nil, err
		}
		return []KeyVal{{Key: n % 5, Val: n}}, nil
	}

	var mu sync.Mutex
	calls := make(map[string]int)
	sizes := make(map[string]int)
	reduce := func(_ context.Context, key Datum, vals []Datum) ([]KeyVal, error) {
		mu.Lock()
		defer mu.Unlock()
		calls[key.String()]++
		sizes[key.String()] += len(vals)
		return nil, nil
	}

	mr, err := New(Config{Mappers: 4, Reducers: 3, SpillThreshold: 3}, Stage{Map: mod, Reduce: reduce})
	require.NoError(t, err)

	in := make(chan KeyVal)
	go func() {
		for i := range 100 {
			in <- KeyVal{Val: i}
		}
		close(in)
	}()

	res, err := mr.Run(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, res.Records)

	require.Equal(t, map[string]int{"0": 1, "1": 1, "2": 1, "3": 1, "4": 1}, calls)
	require.Equal(t, map[string]int{"0": 20, "1": 20, "2": 20, "3": 20, "4": 20}, sizes)
}

func TestRun_MalformedRecordAborts(t *testing.T) {
	strict := func(_ context.Context, _, val Datum) ([]KeyVal, error) {
		var line string
		if err := val.Decode(&line); err != nil {
			return nil, err
		}
		if line == "bad" {
			return nil, &MalformedRecordError{Record: line, Reason: "bad line"}
		}
		return []KeyVal{{Key: line, Val: 1}}, nil
	}

	mr, err := New(Config{Mappers: 2, Reducers: 2}, Stage{Name: "strict", Map: strict, Reduce: countReduce})
	require.NoError(t, err)

	res, err := mr.Run(context.Background(), Lines("ok", "bad", "ok"))
	require.Error(t, err)
	require.Nil(t, res)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, 0, stageErr.Index)
	require.Equal(t, "strict", stageErr.Name)
	require.Equal(t, PhaseMap, stageErr.Phase)

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "bad", malformed.Record)
}

func TestRun_UnsupportedKeyAborts(t *testing.T) {
	badKey := func(_ context.Context, _, _ Datum) ([]KeyVal, error) {
		return []KeyVal{{Key: func() {}, Val: 1}}, nil
	}

	mr, err := New(Config{}, Stage{Map: badKey, Reduce: countReduce})
	require.NoError(t, err)

	_, err = mr.Run(context.Background(), Lines("x"))

	var keyErr *UnsupportedKeyError
	require.ErrorAs(t, err, &keyErr)
}

func TestRun_LossyKeyAborts(t *testing.T) {
	type tuple struct{ genre, word string }
	lossyKey := func(_ context.Context, _, val Datum) ([]KeyVal, error) {
		var line string
		if err := val.Decode(&line); err != nil {
			return nil, err
		}
		return []KeyVal{{Key: tuple{"Drama", line}, Val: 1}}, nil
	}

	mr, err := New(Config{}, Stage{Name: "lossy", Map: lossyKey, Reduce: countReduce})
	require.NoError(t, err)

	_, err = mr.Run(context.Background(), Lines("toy", "war"))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, PhaseMap, stageErr.Phase)

	var keyErr *UnsupportedKeyError
	require.ErrorAs(t, err, &keyErr)
	require.ErrorContains(t, err, "unexported field genre")
}

func TestRun_UnsupportedInputKey(t *testing.T) {
	mr, err := New(Config{}, Stage{Reduce: IdentityReduce})
	require.NoError(t, err)

	in := make(chan KeyVal, 1)
	in <- KeyVal{Key: make(chan int), Val: 1}
	close(in)

	_, err = mr.Run(context.Background(), in)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, PhaseInput, stageErr.Phase)

	var keyErr *UnsupportedKeyError
	require.ErrorAs(t, err, &keyErr)
}

func TestRun_ReduceErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	failing := func(context.Context, Datum, []Datum) ([]KeyVal, error) {
		return nil, boom
	}

	mr, err := New(Config{Mappers: 2, Reducers: 2},
		Stage{Map: countMap, Reduce: countReduce},
		Stage{Name: "fail", Reduce: failing},
	)
	require.NoError(t, err)

	_, err = mr.Run(context.Background(), Lines(sentences(4, 10)...))
	require.ErrorIs(t, err, boom)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, 1, stageErr.Index)
	require.Equal(t, PhaseReduce, stageErr.Phase)
}

func TestRun_Cancelled(t *testing.T) {
	mr, err := New(Config{Mappers: 2, Reducers: 2}, Stage{Map: countMap, Reduce: countReduce})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	// never closed: only cancellation can end the run
	in := make(chan KeyVal)

	_, err = mr.Run(ctx, in)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_DropsShuffleBuckets(t *testing.T) {
	storage := inmemory.New()

	mr, err := New(Config{Mappers: 2, Reducers: 4, Storage: storage},
		Stage{Map: countMap, Combine: CombineFunc(countReduce), Reduce: countReduce},
		Stage{Reduce: IdentityReduce},
	)
	require.NoError(t, err)

	_, err = mr.Run(context.Background(), Lines(sentences(5, 20)...))
	require.NoError(t, err)
	require.Zero(t, storage.Len())
}

func TestRun_Deterministic(t *testing.T) {
	lines := sentences(6, 40)

	var first []Record
	for i := range 5 {
		mr, err := New(Config{Mappers: 1 + i, Reducers: 5 - i}, Stage{Map: countMap, Reduce: countReduce})
		require.NoError(t, err)

		res, err := mr.Run(context.Background(), Lines(lines...))
		require.NoError(t, err)

		if first == nil {
			first = res.Records
			continue
		}
		require.Equal(t, first, res.Records)
	}
}

func TestRun_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	mr, err := New(Config{Tracer: provider.Tracer("test")},
		Stage{Map: countMap, Reduce: countReduce},
		Stage{Reduce: IdentityReduce},
	)
	require.NoError(t, err)

	_, err = mr.Run(context.Background(), Lines("a b", "c"))
	require.NoError(t, err)

	names := make(map[string]int)
	for _, span := range recorder.Ended() {
		names[span.Name()]++
	}
	require.Equal(t, 1, names["Pipeline.Run"])
	require.Equal(t, 2, names["Pipeline.runStage"])
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNoStages)

	_, err = New(Config{}, Stage{Map: countMap}, Stage{Name: "empty"})
	require.ErrorIs(t, err, ErrEmptyStage)
	require.ErrorContains(t, err, "stage 1 (empty)")
}
