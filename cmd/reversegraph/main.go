package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/bektastalayoglu/MapReduce/jobs/graph"
	"github.com/bektastalayoglu/MapReduce/pkg/runner"
)

func main() {
	opts := runner.Flags(flag.CommandLine)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := runner.Run(ctx, graph.New(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "reversegraph: %v\n", err)
		os.Exit(1)
	}
}
