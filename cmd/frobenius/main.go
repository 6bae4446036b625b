package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/bektastalayoglu/MapReduce/jobs/frobenius"
	"github.com/bektastalayoglu/MapReduce/pkg/runner"
)

func main() {
	opts := runner.Flags(flag.CommandLine)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := runner.Run(ctx, frobenius.New(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "frobenius: %v\n", err)
		os.Exit(1)
	}
}
