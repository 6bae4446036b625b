package knn

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/bektastalayoglu/MapReduce/mapreduce"
)

// headerField is the first field of the dataset's header row.
const headerField = "Id"

// Sample is one row of the dataset. An empty Label marks an unknown
// sample, one that has to be classified.
type Sample struct {
	ID       string
	Features []float64
	Label    string
}

func (s Sample) Known() bool {
	return s.Label != ""
}

// ParseSample parses an "Id,f1,...,fn,Label" row. The header row reports
// ok == false.
func ParseSample(row []string) (sample Sample, ok bool, err error) {
	record := strings.Join(row, ",")

	if len(row) > 0 && row[0] == headerField {
		return Sample{}, false, nil
	}

	if len(row) < 3 {
		return Sample{}, false, &mapreduce.MalformedRecordError{
			Record: record,
			Reason: fmt.Sprintf("want id, at least one feature and a label, got %d fields", len(row)),
		}
	}

	features := make([]float64, len(row)-2)
	for i, f := range row[1 : len(row)-1] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Sample{}, false, &mapreduce.MalformedRecordError{Record: record, Reason: fmt.Sprintf("feature %d: %v", i, err)}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, false, &mapreduce.MalformedRecordError{Record: record, Reason: fmt.Sprintf("feature %d: %q is not finite", i, f)}
		}
		features[i] = v
	}

	return Sample{
		ID:       row[0],
		Features: features,
		Label:    strings.TrimSpace(row[len(row)-1]),
	}, true, nil
}

// ParseLine parses a single CSV line with ParseSample.
func ParseLine(line string) (Sample, bool, error) {
	if strings.TrimSpace(line) == "" {
		return Sample{}, false, nil
	}

	row, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return Sample{}, false, &mapreduce.MalformedRecordError{Record: line, Reason: err.Error()}
	}

	return ParseSample(row)
}

// Dataset is a set of labelled and unlabelled samples.
type Dataset struct {
	Samples []Sample
}

// ReadDataset reads a CSV dataset, skipping its header row.
func ReadDataset(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	ds := &Dataset{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}

		sample, ok, err := ParseSample(row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if len(ds.Samples) > 0 && len(sample.Features) != len(ds.Samples[0].Features) {
			return nil, &mapreduce.MalformedRecordError{
				Record: strings.Join(row, ","),
				Reason: fmt.Sprintf("want %d features, got %d", len(ds.Samples[0].Features), len(sample.Features)),
			}
		}

		ds.Samples = append(ds.Samples, sample)
	}

	return ds, nil
}

// Split returns the labelled and the unlabelled samples.
func (d *Dataset) Split() (known, unknown []Sample) {
	for _, s := range d.Samples {
		if s.Known() {
			known = append(known, s)
		} else {
			unknown = append(unknown, s)
		}
	}

	return known, unknown
}

// Normalize fits a min-max scaler on every sample and returns a copy of
// the dataset scaled with it, together with the scaler.
func (d *Dataset) Normalize() (*Dataset, *Scaler) {
	scaler := FitScaler(d.Samples)

	out := &Dataset{Samples: make([]Sample, len(d.Samples))}
	for i, s := range d.Samples {
		s.Features = scaler.Apply(s.Features)
		out.Samples[i] = s
	}

	return out, scaler
}

// Scaler maps every feature onto [0, 1] using the per-feature minimum and
// maximum it was fitted on.
type Scaler struct {
	Min []float64
	Max []float64
}

func FitScaler(samples []Sample) *Scaler {
	if len(samples) == 0 {
		return &Scaler{}
	}

	n := len(samples[0].Features)
	s := &Scaler{
		Min: append([]float64(nil), samples[0].Features...),
		Max: append([]float64(nil), samples[0].Features...),
	}

	for _, sample := range samples[1:] {
		for i := 0; i < n && i < len(sample.Features); i++ {
			s.Min[i] = min(s.Min[i], sample.Features[i])
			s.Max[i] = max(s.Max[i], sample.Features[i])
		}
	}

	return s
}

// Apply scales features. A feature with no spread scales to 0.
func (s *Scaler) Apply(features []float64) []float64 {
	out := make([]float64, len(features))
	for i, v := range features {
		if i >= len(s.Min) {
			out[i] = v
			continue
		}

		spread := s.Max[i] - s.Min[i]
		if spread == 0 {
			continue
		}
		out[i] = (v - s.Min[i]) / spread
	}

	return out
}
