package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/bektastalayoglu/MapReduce/jobs/keywords"
	"github.com/bektastalayoglu/MapReduce/pkg/runner"
)

func main() {
	opts := runner.Flags(flag.CommandLine)
	topN := flag.Int("top", keywords.DefaultTopN, "keywords kept per genre")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	job := keywords.New()
	job.TopN = *topN

	if err := runner.Run(ctx, job, opts); err != nil {
		fmt.Fprintf(os.Stderr, "keywords: %v\n", err)
		os.Exit(1)
	}
}
