// Command audiotab-bench drives a graph document directly (no command
// server involved) by repeatedly triggering a named source node, and
// prints a per-node latency/throughput report once done.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/audiotab-dev/audiotab"

	_ "github.com/audiotab-dev/audiotab/nodes"
)

func main() {
	var (
		graphPath  = flag.String("graph", "", "Path to a graph JSON document")
		sourceNode = flag.String("source", "", "ID of the source node to trigger repeatedly")
		iterations = flag.Int("n", 1000, "Number of Trigger calls to run")
		timeout    = flag.Duration("timeout", 30*time.Second, "Overall run timeout")
	)
	flag.Parse()

	if *graphPath == "" || *sourceNode == "" {
		fmt.Fprintln(os.Stderr, "usage: audiotab-bench -graph <path> -source <node-id> [-n 1000]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*graphPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read graph: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pipeline, err := audiotab.NewPipelineFromJSON(ctx, "bench", data, audiotab.DefaultCatalog())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build pipeline: %v\n", err)
		os.Exit(1)
	}

	if err := pipeline.Start(ctx, nil); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start pipeline: %v\n", err)
		os.Exit(1)
	}
	defer pipeline.Stop(context.Background())

	start := time.Now()
	for i := 0; i < *iterations; i++ {
		if err := pipeline.Trigger(ctx, *sourceNode); err != nil {
			fmt.Fprintf(os.Stderr, "trigger %d failed: %v\n", i, err)
			break
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("ran %d iterations in %s (%.1f frames/sec)\n", *iterations, elapsed, float64(*iterations)/elapsed.Seconds())

	monitor := audiotab.NewPipelineMonitor(pipeline.Metrics())
	monitor.Report(os.Stdout)
}
