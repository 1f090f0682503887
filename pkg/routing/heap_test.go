package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table_router/pkg/graph"
)

func TestQueryHeapOrdering(t *testing.T) {
	h := NewQueryHeap[int](10)

	h.Insert(4, 30, 0)
	h.Insert(7, 10, 0)
	h.Insert(1, 20, 0)

	assert.Equal(t, graph.EdgeWeight(10), h.MinKey())
	assert.Equal(t, graph.NodeID(7), h.DeleteMin())
	assert.Equal(t, graph.NodeID(1), h.DeleteMin())
	assert.Equal(t, graph.NodeID(4), h.DeleteMin())
	assert.True(t, h.Empty())
}

func TestQueryHeapTieBreaksOnNodeID(t *testing.T) {
	// Equal keys settle in node id order regardless of insertion order.
	h := NewQueryHeap[int](10)
	h.Insert(9, 5, 0)
	h.Insert(2, 5, 0)
	h.Insert(6, 5, 0)

	assert.Equal(t, graph.NodeID(2), h.DeleteMin())
	assert.Equal(t, graph.NodeID(6), h.DeleteMin())
	assert.Equal(t, graph.NodeID(9), h.DeleteMin())
}

func TestQueryHeapDataSurvivesDeleteMin(t *testing.T) {
	h := NewQueryHeap[string](4)
	h.Insert(3, 10, "payload")

	require.Equal(t, graph.NodeID(3), h.DeleteMin())

	// Settled entries stay addressable.
	assert.True(t, h.WasInserted(3))
	assert.Equal(t, graph.EdgeWeight(10), h.GetKey(3))
	assert.Equal(t, "payload", *h.GetData(3))
}

func TestQueryHeapGetDataMutable(t *testing.T) {
	h := NewQueryHeap[[]int](4)
	h.Insert(0, 1, nil)

	data := h.GetData(0)
	*data = append(*data, 42)

	assert.Equal(t, []int{42}, *h.GetData(0))
}

func TestQueryHeapDecreaseKey(t *testing.T) {
	h := NewQueryHeap[int](4)
	h.Insert(0, 100, 0)
	h.Insert(1, 50, 0)

	h.DecreaseKey(0, 10)
	assert.Equal(t, graph.NodeID(0), h.DeleteMin())
	assert.Equal(t, graph.EdgeWeight(10), h.GetKey(0))

	// Lowering a settled node puts it back in the queue.
	h.DecreaseKey(0, 5)
	assert.Equal(t, graph.NodeID(0), h.DeleteMin())
	assert.Equal(t, graph.NodeID(1), h.DeleteMin())
	assert.True(t, h.Empty())
}

func TestQueryHeapDecreaseKeyLargerPanics(t *testing.T) {
	h := NewQueryHeap[int](4)
	h.Insert(0, 10, 0)

	assert.PanicsWithValue(t, "routing: DecreaseKey with larger key", func() {
		h.DecreaseKey(0, 20)
	})
}

func TestQueryHeapDeleteMinEmptyPanics(t *testing.T) {
	h := NewQueryHeap[int](4)

	assert.PanicsWithValue(t, "routing: DeleteMin on empty heap", func() {
		h.DeleteMin()
	})
}

func TestQueryHeapClear(t *testing.T) {
	h := NewQueryHeap[int](8)
	h.Insert(2, 10, 7)
	h.Insert(5, 20, 8)
	h.DeleteMin()

	h.Clear()

	assert.True(t, h.Empty())
	assert.False(t, h.WasInserted(2))
	assert.False(t, h.WasInserted(5))

	// Reusable after Clear.
	h.Insert(2, 3, 9)
	assert.True(t, h.WasInserted(2))
	assert.Equal(t, 9, *h.GetData(2))
	assert.Equal(t, graph.NodeID(2), h.DeleteMin())
}
