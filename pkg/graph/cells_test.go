package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellStorageViews(t *testing.T) {
	// One level, one cell: sources {1, 4}, dests {2, 4, 7}.
	cd := CellData{
		Source: []NodeID{1, 4},
		Dest:   []NodeID{2, 4, 7},
		OutWeight: []EdgeWeight{
			10, 20, 30,
			40, 0, 60,
		},
		OutDuration: []EdgeDuration{
			11, 21, 31,
			41, 0, 61,
		},
	}
	cs := NewCellStorage([][]CellData{{cd}})

	view := cs.Cell(1, 0)
	require.Equal(t, []NodeID{1, 4}, view.SourceNodes())
	require.Equal(t, []NodeID{2, 4, 7}, view.DestinationNodes())

	assert.Equal(t, []EdgeWeight{10, 20, 30}, view.OutWeight(1))
	assert.Equal(t, []EdgeWeight{40, 0, 60}, view.OutWeight(4))
	assert.Equal(t, []EdgeDuration{41, 0, 61}, view.OutDuration(4))

	// In-views are the transpose, aligned with SourceNodes.
	assert.Equal(t, []EdgeWeight{10, 40}, view.InWeight(2))
	assert.Equal(t, []EdgeWeight{20, 0}, view.InWeight(4))
	assert.Equal(t, []EdgeWeight{30, 60}, view.InWeight(7))
	assert.Equal(t, []EdgeDuration{21, 0}, view.InDuration(4))

	// Non-boundary nodes get nil rows.
	assert.Nil(t, view.OutWeight(9))
	assert.Nil(t, view.InWeight(1))
}
