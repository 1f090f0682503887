package routing

import "table_router/pkg/graph"

// SegmentID names the graph node through which a phantom enters or leaves
// the network in one travel direction. Enabled is false when the underlying
// edge cannot be traversed in that direction.
type SegmentID struct {
	ID      graph.NodeID
	Enabled bool
}

// PhantomNode is a coordinate snapped onto an edge of the road graph. The
// forward segment is the edge tail with the cost already driven from the
// edge start to the snapped point; the reverse segment is the edge head with
// the remaining cost to the edge end. Offsets are pre-paid: searches seed
// them negated on the source side and as-is on the target side, so matrix
// sums come out relative to the snapped point rather than the graph nodes.
type PhantomNode struct {
	ForwardSegment SegmentID
	ReverseSegment SegmentID

	ForwardWeightOffset   graph.EdgeWeight
	ReverseWeightOffset   graph.EdgeWeight
	ForwardDurationOffset graph.EdgeDuration
	ReverseDurationOffset graph.EdgeDuration

	// Snapped location, kept for geometry output.
	Lat float64
	Lon float64
}

// NodePhantom returns a phantom sitting exactly on node n, reachable and
// leavable in both directions with zero offsets.
func NodePhantom(n graph.NodeID, lat, lon float64) PhantomNode {
	return PhantomNode{
		ForwardSegment: SegmentID{ID: n, Enabled: true},
		ReverseSegment: SegmentID{ID: n, Enabled: true},
		Lat:            lat,
		Lon:            lon,
	}
}

// seedEntry inserts one phantom segment, merging with an already-seeded
// entry on the same node (both segments of a node phantom share the node).
func seedEntry[D any](h *QueryHeap[D], n graph.NodeID, key graph.EdgeWeight, data D) {
	if h.WasInserted(n) {
		if key < h.GetKey(n) {
			*h.GetData(n) = data
			h.DecreaseKey(n, key)
		}
		return
	}
	h.Insert(n, key, data)
}

// insertSourceInHeap seeds a forward search with the source phantom. Keys
// are the negated pre-paid offsets, one entry per enabled direction.
func insertSourceInHeap[D any](h *QueryHeap[D], ph *PhantomNode, mk func(n graph.NodeID, w graph.EdgeWeight, d graph.EdgeDuration) D) {
	if ph.ForwardSegment.Enabled {
		w, d := -ph.ForwardWeightOffset, -ph.ForwardDurationOffset
		seedEntry(h, ph.ForwardSegment.ID, w, mk(ph.ForwardSegment.ID, w, d))
	}
	if ph.ReverseSegment.Enabled {
		w, d := -ph.ReverseWeightOffset, -ph.ReverseDurationOffset
		seedEntry(h, ph.ReverseSegment.ID, w, mk(ph.ReverseSegment.ID, w, d))
	}
}

// insertTargetInHeap seeds a backward search with the target phantom. Keys
// are the pre-paid offsets themselves, one entry per enabled direction.
func insertTargetInHeap[D any](h *QueryHeap[D], ph *PhantomNode, mk func(n graph.NodeID, w graph.EdgeWeight, d graph.EdgeDuration) D) {
	if ph.ForwardSegment.Enabled {
		w, d := ph.ForwardWeightOffset, ph.ForwardDurationOffset
		seedEntry(h, ph.ForwardSegment.ID, w, mk(ph.ForwardSegment.ID, w, d))
	}
	if ph.ReverseSegment.Enabled {
		w, d := ph.ReverseWeightOffset, ph.ReverseDurationOffset
		seedEntry(h, ph.ReverseSegment.ID, w, mk(ph.ReverseSegment.ID, w, d))
	}
}
