package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/bektastalayoglu/MapReduce/jobs/knn"
	"github.com/bektastalayoglu/MapReduce/pkg/runner"
)

func main() {
	opts := runner.Flags(flag.CommandLine)
	dataPath := flag.String("data", "", "labelled dataset (CSV with an Id header); defaults to -in")
	k := flag.Int("k", knn.DefaultK, "number of neighbours")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *dataPath == "" {
		*dataPath = opts.In
	}

	job, err := newJob(*dataPath, *k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "knn: %v\n", err)
		os.Exit(1)
	}

	if err := runner.Run(ctx, job, opts); err != nil {
		fmt.Fprintf(os.Stderr, "knn: %v\n", err)
		os.Exit(1)
	}
}

func newJob(path string, k int) (*knn.Job, error) {
	if path == "" || path == "-" {
		return nil, fmt.Errorf("-data is required when reading input from stdin")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := knn.ReadDataset(f)
	if err != nil {
		return nil, err
	}

	normalized, scaler := ds.Normalize()
	known, _ := normalized.Split()

	return knn.New(knn.Config{K: k, Known: known, Scaler: scaler})
}
