package mld

import (
	"sort"

	"github.com/charmbracelet/log"

	"table_router/pkg/graph"
)

var logger = log.With("component", "partition")

// Config controls the multi-level partition shape.
type Config struct {
	NumLevels    int // partition levels above the base graph, >= 1
	BitsPerLevel int // each level splits a cell into up to 1<<BitsPerLevel children
}

// DefaultConfig matches metropolitan-sized extracts.
var DefaultConfig = Config{NumLevels: 4, BitsPerLevel: 4}

// Partition cuts the graph into nested cells by recursive coordinate
// bisection: every split halves a node set at the median of its wider
// geographic dimension. The finest level keeps all split bits, coarser
// levels drop bits from the bottom, and the topmost level always collapses
// into a single cell.
func Partition(g *graph.Graph, cfg Config) *graph.MultiLevelPartition {
	n := g.NumNodes
	levels := cfg.NumLevels
	if levels < 1 {
		levels = 1
	}

	totalBits := (levels - 1) * cfg.BitsPerLevel
	paths := make([]uint32, n)

	order := make([]graph.NodeID, n)
	for i := range order {
		order[i] = graph.NodeID(i)
	}
	bisect(g, order, paths, 0, totalBits)

	cells := make([][]graph.CellID, levels)
	numCells := make([]uint32, levels)
	for l := 1; l <= levels; l++ {
		shift := uint32((l - 1) * cfg.BitsPerLevel)
		assignment := make([]graph.CellID, n)
		dense := make(map[uint32]graph.CellID)
		for i := graph.NodeID(0); i < n; i++ {
			raw := paths[i] >> shift
			id, ok := dense[raw]
			if !ok {
				id = graph.CellID(len(dense))
				dense[raw] = id
			}
			assignment[i] = id
		}
		cells[l-1] = assignment
		numCells[l-1] = uint32(len(dense))
		logger.Info("partition level", "level", l, "cells", numCells[l-1])
	}

	return graph.NewMultiLevelPartition(cells, numCells)
}

// bisect splits nodes at the median of the wider coordinate dimension,
// appending one path bit per split until all bits are assigned.
func bisect(g *graph.Graph, nodes []graph.NodeID, paths []uint32, depth, totalBits int) {
	if depth == totalBits || len(nodes) <= 1 {
		return
	}

	minLat, maxLat := g.NodeLat[nodes[0]], g.NodeLat[nodes[0]]
	minLon, maxLon := g.NodeLon[nodes[0]], g.NodeLon[nodes[0]]
	for _, n := range nodes[1:] {
		if g.NodeLat[n] < minLat {
			minLat = g.NodeLat[n]
		}
		if g.NodeLat[n] > maxLat {
			maxLat = g.NodeLat[n]
		}
		if g.NodeLon[n] < minLon {
			minLon = g.NodeLon[n]
		}
		if g.NodeLon[n] > maxLon {
			maxLon = g.NodeLon[n]
		}
	}

	byLat := maxLat-minLat >= maxLon-minLon
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if byLat {
			if g.NodeLat[a] != g.NodeLat[b] {
				return g.NodeLat[a] < g.NodeLat[b]
			}
		} else {
			if g.NodeLon[a] != g.NodeLon[b] {
				return g.NodeLon[a] < g.NodeLon[b]
			}
		}
		return a < b
	})

	half := len(nodes) / 2
	bit := uint32(1) << uint32(totalBits-depth-1)
	for _, n := range nodes[half:] {
		paths[n] |= bit
	}

	bisect(g, nodes[:half], paths, depth+1, totalBits)
	bisect(g, nodes[half:], paths, depth+1, totalBits)
}
