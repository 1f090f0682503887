package mld

import (
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table_router/pkg/graph"
	osmparser "table_router/pkg/osm"
)

// buildLineGraph creates a bidirectional chain of six nodes spread west to
// east, so coordinate bisection splits it into contiguous halves.
func buildLineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 10, Duration: 10, Forward: true, Backward: true},
			{FromNodeID: 2, ToNodeID: 3, Weight: 10, Duration: 10, Forward: true, Backward: true},
			{FromNodeID: 3, ToNodeID: 4, Weight: 10, Duration: 10, Forward: true, Backward: true},
			{FromNodeID: 4, ToNodeID: 5, Weight: 10, Duration: 10, Forward: true, Backward: true},
			{FromNodeID: 5, ToNodeID: 6, Weight: 10, Duration: 10, Forward: true, Backward: true},
		},
		NodeLat: map[osm.NodeID]float64{1: 1.30, 2: 1.30, 3: 1.30, 4: 1.30, 5: 1.30, 6: 1.30},
		NodeLon: map[osm.NodeID]float64{1: 103.80, 2: 103.81, 3: 103.82, 4: 103.83, 5: 103.84, 6: 103.85},
	}
	return graph.Build(result)
}

func TestPartitionShape(t *testing.T) {
	g := buildLineGraph(t)
	p := Partition(g, Config{NumLevels: 3, BitsPerLevel: 1})

	require.Equal(t, graph.LevelID(3), p.NumLevels())

	// The topmost level always collapses into a single cell.
	assert.Equal(t, uint32(1), p.NumCells(3))

	// Every assignment stays within the level's cell count.
	for l := graph.LevelID(1); l <= p.NumLevels(); l++ {
		numCells := p.NumCells(l)
		assert.GreaterOrEqual(t, numCells, uint32(1))
		for n := graph.NodeID(0); n < g.NumNodes; n++ {
			assert.Less(t, p.Cell(l, n), graph.CellID(numCells), "level %d node %d", l, n)
		}
	}
}

func TestPartitionNesting(t *testing.T) {
	g := buildLineGraph(t)
	p := Partition(g, Config{NumLevels: 3, BitsPerLevel: 1})

	// Nodes sharing a cell at level l share a cell at every level above.
	for l := graph.LevelID(1); l < p.NumLevels(); l++ {
		for a := graph.NodeID(0); a < g.NumNodes; a++ {
			for b := a + 1; b < g.NumNodes; b++ {
				if p.Cell(l, a) == p.Cell(l, b) {
					assert.Equal(t, p.Cell(l+1, a), p.Cell(l+1, b),
						"nodes %d and %d share level %d but split at level %d", a, b, l, l+1)
				}
			}
		}
	}
}

func TestPartitionBalancedSplit(t *testing.T) {
	g := buildLineGraph(t)
	p := Partition(g, Config{NumLevels: 2, BitsPerLevel: 1})

	require.Equal(t, uint32(2), p.NumCells(1))

	// Median bisection on six nodes gives a 3/3 split.
	counts := make(map[graph.CellID]int)
	for n := graph.NodeID(0); n < g.NumNodes; n++ {
		counts[p.Cell(1, n)]++
	}
	assert.Equal(t, 3, counts[0])
	assert.Equal(t, 3, counts[1])
}

func TestHighestDifferentLevel(t *testing.T) {
	g := buildLineGraph(t)
	p := Partition(g, Config{NumLevels: 2, BitsPerLevel: 1})

	for a := graph.NodeID(0); a < g.NumNodes; a++ {
		assert.Equal(t, graph.LevelID(0), p.HighestDifferentLevel(a, a))
		for b := graph.NodeID(0); b < g.NumNodes; b++ {
			hdl := p.HighestDifferentLevel(a, b)
			assert.Equal(t, hdl, p.HighestDifferentLevel(b, a))
			if a != b && p.Cell(1, a) != p.Cell(1, b) {
				// They agree at the single top cell, so level 1 is the answer.
				assert.Equal(t, graph.LevelID(1), hdl)
			}
		}
	}
}

func TestPartitionSingleLevel(t *testing.T) {
	g := buildLineGraph(t)
	p := Partition(g, Config{NumLevels: 1, BitsPerLevel: 4})

	require.Equal(t, graph.LevelID(1), p.NumLevels())
	assert.Equal(t, uint32(1), p.NumCells(1))
}
