package routing

import "table_router/pkg/graph"

// heapNode is one inserted node with its key and search payload. Entries
// stay addressable after DeleteMin so a later step can read the settled key.
type heapNode[D any] struct {
	node graph.NodeID
	key  graph.EdgeWeight
	data D
}

// QueryHeap is an addressable binary min-heap keyed by edge weight with one
// payload of type D per inserted node. The node index array is allocated
// once for the full graph and reset through a touched list, so a heap can be
// cleared and reused across many searches without reallocation.
//
// Ties on the key break toward the smaller node id, which keeps search
// order independent of insertion history.
type QueryHeap[D any] struct {
	nodeIndex []int32 // per node: index into inserted, -1 when absent
	touched   []graph.NodeID
	inserted  []heapNode[D]
	heap      []int32 // inserted indices, heap-ordered
	heapPos   []int32 // per inserted index: position in heap, -1 once removed
}

// NewQueryHeap creates a heap for graphs with numNodes nodes.
func NewQueryHeap[D any](numNodes uint32) *QueryHeap[D] {
	nodeIndex := make([]int32, numNodes)
	for i := range nodeIndex {
		nodeIndex[i] = -1
	}
	return &QueryHeap[D]{
		nodeIndex: nodeIndex,
		inserted:  make([]heapNode[D], 0, 256),
		heap:      make([]int32, 0, 256),
		heapPos:   make([]int32, 0, 256),
	}
}

// Clear resets the heap for the next search, touching only what the
// previous search touched.
func (h *QueryHeap[D]) Clear() {
	for _, n := range h.touched {
		h.nodeIndex[n] = -1
	}
	h.touched = h.touched[:0]
	h.inserted = h.inserted[:0]
	h.heap = h.heap[:0]
	h.heapPos = h.heapPos[:0]
}

// Empty reports whether no unsettled entries remain.
func (h *QueryHeap[D]) Empty() bool { return len(h.heap) == 0 }

// WasInserted reports whether node was ever inserted since the last Clear,
// settled or not.
func (h *QueryHeap[D]) WasInserted(node graph.NodeID) bool {
	return h.nodeIndex[node] >= 0
}

// GetKey returns the current key of an inserted node.
func (h *QueryHeap[D]) GetKey(node graph.NodeID) graph.EdgeWeight {
	return h.inserted[h.nodeIndex[node]].key
}

// GetData returns a mutable reference to the payload of an inserted node.
func (h *QueryHeap[D]) GetData(node graph.NodeID) *D {
	return &h.inserted[h.nodeIndex[node]].data
}

// less orders inserted entries by key, then node id.
func (h *QueryHeap[D]) less(a, b int32) bool {
	na, nb := &h.inserted[a], &h.inserted[b]
	if na.key != nb.key {
		return na.key < nb.key
	}
	return na.node < nb.node
}

// Insert adds a node that was not inserted since the last Clear.
func (h *QueryHeap[D]) Insert(node graph.NodeID, key graph.EdgeWeight, data D) {
	idx := int32(len(h.inserted))
	h.inserted = append(h.inserted, heapNode[D]{node: node, key: key, data: data})
	h.nodeIndex[node] = idx
	h.touched = append(h.touched, node)
	h.heapPos = append(h.heapPos, int32(len(h.heap)))
	h.heap = append(h.heap, idx)
	h.siftUp(len(h.heap) - 1)
}

// DecreaseKey lowers the key of an inserted node. Panics when the new key
// is larger than the current one.
func (h *QueryHeap[D]) DecreaseKey(node graph.NodeID, key graph.EdgeWeight) {
	idx := h.nodeIndex[node]
	if key > h.inserted[idx].key {
		panic("routing: DecreaseKey with larger key")
	}
	h.inserted[idx].key = key
	if pos := h.heapPos[idx]; pos >= 0 {
		h.siftUp(int(pos))
	} else {
		// Node was already settled; put it back for re-expansion.
		h.heapPos[idx] = int32(len(h.heap))
		h.heap = append(h.heap, idx)
		h.siftUp(len(h.heap) - 1)
	}
}

// DeleteMin removes and returns the node with the smallest key. Its key and
// payload stay readable through GetKey and GetData. Panics when empty.
func (h *QueryHeap[D]) DeleteMin() graph.NodeID {
	if len(h.heap) == 0 {
		panic("routing: DeleteMin on empty heap")
	}
	top := h.heap[0]
	h.heapPos[top] = -1
	last := len(h.heap) - 1
	if last > 0 {
		h.heap[0] = h.heap[last]
		h.heapPos[h.heap[0]] = 0
	}
	h.heap = h.heap[:last]
	if last > 1 {
		h.siftDown(0)
	}
	return h.inserted[top].node
}

// MinKey returns the smallest key without removing it. Panics when empty.
func (h *QueryHeap[D]) MinKey() graph.EdgeWeight {
	return h.inserted[h.heap[0]].key
}

// siftUp uses hole-sift: saves the floating entry and does 1 assignment per
// level instead of 3 (swap).
func (h *QueryHeap[D]) siftUp(i int) {
	entry := h.heap[i]
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(entry, h.heap[parent]) {
			break
		}
		h.heap[i] = h.heap[parent]
		h.heapPos[h.heap[i]] = int32(i)
		i = parent
	}
	h.heap[i] = entry
	h.heapPos[entry] = int32(i)
}

func (h *QueryHeap[D]) siftDown(i int) {
	n := len(h.heap)
	entry := h.heap[i]
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if right := child + 1; right < n && h.less(h.heap[right], h.heap[child]) {
			child = right
		}
		if !h.less(h.heap[child], entry) {
			break
		}
		h.heap[i] = h.heap[child]
		h.heapPos[h.heap[i]] = int32(i)
		i = child
	}
	h.heap[i] = entry
	h.heapPos[entry] = int32(i)
}
