package main

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"table_router/pkg/graph"
	"table_router/pkg/routing"
)

var logger = log.With("component", "benchmark")

func main() {
	var (
		graphPath string
		numTables int
		tableSize int
		seed      int64
		algorithm string
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Benchmark table queries against a routing data bundle",
		Long: "Loads a routing binary, snaps randomly sampled road nodes and runs " +
			"repeated table queries, reporting latency percentiles. With " +
			"--algorithm both, every query runs on both engines and their " +
			"durations are cross-checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(graphPath, numTables, tableSize, seed, algorithm)
		},
	}

	cmd.Flags().StringVar(&graphPath, "graph", "routing.bin", "path to preprocessed routing binary")
	cmd.Flags().IntVar(&numTables, "tables", 100, "number of table queries")
	cmd.Flags().IntVar(&tableSize, "size", 10, "coordinates per table query")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&algorithm, "algorithm", "both", `engine to benchmark: "ch", "mld" or "both"`)

	if err := cmd.Execute(); err != nil {
		logger.Error("benchmark failed", "err", err)
		os.Exit(1)
	}
}

func run(graphPath string, numTables, tableSize int, seed int64, algorithm string) error {
	logger.Info("loading routing data", "path", graphPath)
	data, err := graph.ReadBinary(graphPath)
	if err != nil {
		return fmt.Errorf("load routing data: %w", err)
	}

	var facades []routing.Facade
	var names []string
	switch algorithm {
	case "ch":
		facades = []routing.Facade{data.Contracted}
		names = []string{"ch"}
	case "mld":
		mlg := data.MLD()
		if mlg == nil {
			return fmt.Errorf("routing data carries no partition; re-run preprocess without --skip-mld")
		}
		facades = []routing.Facade{mlg}
		names = []string{"mld"}
	case "both":
		mlg := data.MLD()
		if mlg == nil {
			return fmt.Errorf("routing data carries no partition; re-run preprocess without --skip-mld")
		}
		facades = []routing.Facade{data.Contracted, mlg}
		names = []string{"ch", "mld"}
	default:
		return fmt.Errorf("unknown algorithm %q", algorithm)
	}

	logger.Info("building spatial index")
	snapper := routing.NewSnapper(data.Base)

	rng := rand.New(rand.NewSource(seed))
	g := data.Base

	latencies := make([][]time.Duration, len(facades))
	wd := &routing.EngineWorkingData{}
	mismatches := 0

	for q := 0; q < numTables; q++ {
		phantoms := make([]routing.PhantomNode, 0, tableSize)
		for len(phantoms) < tableSize {
			n := graph.NodeID(rng.Intn(int(g.NumNodes)))
			snap, err := snapper.Snap(g.NodeLat[n], g.NodeLon[n])
			if err != nil {
				continue
			}
			phantoms = append(phantoms, snapper.Phantom(snap))
		}

		var prev []graph.EdgeDuration
		for fi, facade := range facades {
			start := time.Now()
			durations := routing.ManyToManySearch(wd, facade, phantoms, nil, nil)
			latencies[fi] = append(latencies[fi], time.Since(start))

			if fi > 0 {
				for i := range durations {
					if durations[i] != prev[i] {
						mismatches++
						break
					}
				}
			}
			prev = durations
		}
	}

	for fi, name := range names {
		ls := latencies[fi]
		sort.Slice(ls, func(i, j int) bool { return ls[i] < ls[j] })
		logger.Info("results",
			"engine", name,
			"tables", numTables,
			"size", tableSize,
			"p50", percentile(ls, 50),
			"p95", percentile(ls, 95),
			"p99", percentile(ls, 99))
	}
	if len(facades) > 1 {
		if mismatches > 0 {
			logger.Warn("engines disagree", "tables", mismatches)
		} else {
			logger.Info("engines agree on every table")
		}
	}
	return nil
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}
