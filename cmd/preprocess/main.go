package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"table_router/pkg/ch"
	"table_router/pkg/graph"
	"table_router/pkg/mld"
	osmparser "table_router/pkg/osm"
)

var logger = log.With("component", "preprocess")

func main() {
	var (
		input     string
		output    string
		bbox      string
		singapore bool
		kl        bool
		skipMLD   bool
		numLevels int
		bitsPer   int
	)

	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Build the routing data bundle from an OSM extract",
		Long: "Parses an .osm.pbf extract, builds the road graph, contracts it and " +
			"computes the multi-level partition with its cell tables, then writes " +
			"everything to a single binary file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return fmt.Errorf("--input is required")
			}
			opts, err := parseBBoxFlags(bbox, singapore, kl)
			if err != nil {
				return err
			}
			cfg := mld.Config{NumLevels: numLevels, BitsPerLevel: bitsPer}
			return run(input, output, opts, skipMLD, cfg)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "path to .osm.pbf file")
	cmd.Flags().StringVar(&output, "output", "routing.bin", "output binary file path")
	cmd.Flags().StringVar(&bbox, "bbox", "", "bounding box filter: minLat,minLng,maxLat,maxLng")
	cmd.Flags().BoolVar(&singapore, "singapore", false, "shortcut for the Singapore bounding box")
	cmd.Flags().BoolVar(&kl, "kl", false, "shortcut for the Selangor + Kuala Lumpur bounding box")
	cmd.Flags().BoolVar(&skipMLD, "skip-mld", false, "skip partitioning and cell customization")
	cmd.Flags().IntVar(&numLevels, "levels", mld.DefaultConfig.NumLevels, "number of partition levels")
	cmd.Flags().IntVar(&bitsPer, "bits-per-level", mld.DefaultConfig.BitsPerLevel, "cell bits per partition level")

	if err := cmd.Execute(); err != nil {
		logger.Error("preprocess failed", "err", err)
		os.Exit(1)
	}
}

func parseBBoxFlags(bbox string, singapore, kl bool) (osmparser.ParseOptions, error) {
	var opts osmparser.ParseOptions
	switch {
	case kl:
		opts.BBox = osmparser.BBox{MinLat: 2.75, MaxLat: 3.5, MinLng: 101.2, MaxLng: 102.0}
	case singapore:
		opts.BBox = osmparser.BBox{MinLat: 1.15, MaxLat: 1.48, MinLng: 103.6, MaxLng: 104.1}
	case bbox != "":
		var minLat, minLng, maxLat, maxLng float64
		if _, err := fmt.Sscanf(bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
			return opts, fmt.Errorf("invalid bbox format (expected minLat,minLng,maxLat,maxLng): %w", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
	}
	if !opts.BBox.IsZero() {
		logger.Info("bounding box filter",
			"min_lat", opts.BBox.MinLat, "max_lat", opts.BBox.MaxLat,
			"min_lng", opts.BBox.MinLng, "max_lng", opts.BBox.MaxLng)
	}
	return opts, nil
}

func run(input, output string, opts osmparser.ParseOptions, skipMLD bool, cfg mld.Config) error {
	start := time.Now()

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	logger.Info("parsing OSM data", "input", input)
	parseResult, err := osmparser.Parse(context.Background(), f, opts)
	if err != nil {
		return fmt.Errorf("parse OSM data: %w", err)
	}

	logger.Info("building graph")
	g := graph.Build(parseResult)
	logger.Info("graph built", "nodes", g.NumNodes, "edges", g.NumEdges)

	logger.Info("extracting largest connected component")
	componentNodes := graph.LargestComponent(g)
	logger.Info("largest component",
		"nodes", len(componentNodes),
		"share", fmt.Sprintf("%.1f%%", float64(len(componentNodes))/float64(g.NumNodes)*100))
	g = graph.FilterToComponent(g, componentNodes)

	logger.Info("contracting graph")
	cg := ch.Contract(g)
	logger.Info("contraction complete", "overlay_edges", len(cg.Head))

	data := &graph.RoutingData{Base: g, Contracted: cg}

	if !skipMLD {
		logger.Info("partitioning graph", "levels", cfg.NumLevels, "bits_per_level", cfg.BitsPerLevel)
		partition := mld.Partition(g, cfg)

		logger.Info("customizing cells")
		cells := mld.Customize(g, partition)

		data.Partition = partition
		data.Cells = cells
	}

	logger.Info("writing binary", "output", output)
	if err := graph.WriteBinary(output, data); err != nil {
		return fmt.Errorf("write binary: %w", err)
	}

	info, _ := os.Stat(output)
	logger.Info("done",
		"elapsed", time.Since(start).Round(time.Second),
		"size_mb", fmt.Sprintf("%.1f", float64(info.Size())/(1024*1024)))
	return nil
}
