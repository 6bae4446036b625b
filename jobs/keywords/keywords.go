// Package keywords counts title keywords per movie genre and keeps the
// most frequent ones for every genre.
package keywords

import (
	"cmp"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/bektastalayoglu/MapReduce/mapreduce"
)

const (
	DefaultTopN = 10

	headerField = "movieId"
	noGenres    = "(no genres listed)"
)

var (
	// wordRe finds whole Unicode words; only the purely ASCII-letter ones
	// become keywords, so "Amélie" yields nothing rather than "lie".
	wordRe    = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	keywordRe = regexp.MustCompile(`^[a-zA-Z]+$`)
)

// Job is the two-stage keyword counter. Stage one counts every
// (genre, keyword) pair, stage two keeps the TopN keywords per genre.
type Job struct {
	TopN int
}

func New() *Job {
	return &Job{TopN: DefaultTopN}
}

func (j *Job) Name() string { return "keywords" }

func (j *Job) Stages() []mapreduce.Stage {
	return []mapreduce.Stage{
		{
			Name:    "count",
			Map:     j.mapKeywords,
			Combine: sumCounts,
			Reduce:  j.reduceCount,
		},
		{
			Name:   "top",
			Reduce: j.reduceTop,
		},
	}
}

// Count is one keyword with its frequency. It is encoded as a
// ["keyword", count] pair.
type Count struct {
	Keyword string
	Count   int
}

func (c Count) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{c.Keyword, c.Count})
}

func (c *Count) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}

	if err := json.Unmarshal(pair[0], &c.Keyword); err != nil {
		return err
	}

	return json.Unmarshal(pair[1], &c.Count)
}

// Tokenize returns the lowercased words of title that are not stop words.
func Tokenize(title string) []string {
	var words []string
	for _, word := range wordRe.FindAllString(title, -1) {
		if !keywordRe.MatchString(word) {
			continue
		}
		word = strings.ToLower(word)
		if _, stop := stopwords[word]; stop {
			continue
		}
		words = append(words, word)
	}

	return words
}

func (j *Job) mapKeywords(_ context.Context, _, val mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	var line string
	if err := val.Decode(&line); err != nil {
		return nil, err
	}

	if strings.TrimSpace(line) == "" {
		return nil, nil
	}

	row, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return nil, &mapreduce.MalformedRecordError{Record: line, Reason: err.Error()}
	}

	if row[0] == headerField {
		return nil, nil
	}

	if len(row) < 3 {
		return nil, &mapreduce.MalformedRecordError{
			Record: line,
			Reason: fmt.Sprintf("want 3 fields, got %d", len(row)),
		}
	}

	words := Tokenize(row[1])

	var kvs []mapreduce.KeyVal
	for _, genre := range strings.Split(row[2], "|") {
		if genre == noGenres {
			continue
		}

		for _, word := range words {
			kvs = append(kvs, mapreduce.KeyVal{Key: [2]string{genre, word}, Val: 1})
		}
	}

	return kvs, nil
}

func sumCounts(_ context.Context, key mapreduce.Datum, vals []mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	total, err := sum(vals)
	if err != nil {
		return nil, err
	}

	return []mapreduce.KeyVal{{Key: key, Val: total}}, nil
}

func (j *Job) reduceCount(_ context.Context, key mapreduce.Datum, vals []mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	var genreWord [2]string
	if err := key.Decode(&genreWord); err != nil {
		return nil, err
	}

	total, err := sum(vals)
	if err != nil {
		return nil, err
	}

	return []mapreduce.KeyVal{{
		Key: genreWord[0],
		Val: Count{Keyword: genreWord[1], Count: total},
	}}, nil
}

func (j *Job) reduceTop(_ context.Context, key mapreduce.Datum, vals []mapreduce.Datum) ([]mapreduce.KeyVal, error) {
	counts, err := mapreduce.DecodeAll[Count](vals)
	if err != nil {
		return nil, err
	}

	return []mapreduce.KeyVal{{Key: key, Val: Top(counts, j.TopN)}}, nil
}

// Top sorts counts by frequency, most frequent first, and keeps the first
// n. Equal counts are ordered by keyword so the result does not depend on
// the order the shuffle delivered them in.
func Top(counts []Count, n int) []Count {
	slices.SortFunc(counts, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Keyword, b.Keyword)
	})

	if n >= 0 && len(counts) > n {
		counts = counts[:n]
	}

	return counts
}

func sum(vals []mapreduce.Datum) (int, error) {
	counts, err := mapreduce.DecodeAll[int](vals)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	return total, nil
}
