package routing

import "table_router/pkg/graph"

// chHeapData is the per-node search payload of the table search on the
// contracted graph.
type chHeapData struct {
	parent   graph.NodeID
	duration graph.EdgeDuration
}

// nodeBucket records that the backward search of one target settled a node.
// The forward searches read these to stitch both half-paths together.
type nodeBucket struct {
	column   uint32 // index of the target in the result row
	weight   graph.EdgeWeight
	duration graph.EdgeDuration
}

type chHeap = QueryHeap[chHeapData]

// stallAtNode checks whether a settled label is dominated through an edge of
// the opposite direction. A stalled node keeps its bucket entries but is not
// expanded further.
func stallAtNode(cg *graph.ContractedGraph, node graph.NodeID, weight graph.EdgeWeight, forward bool, heap *chHeap) bool {
	start, end := cg.AdjacentEdges(node)
	for e := start; e < end; e++ {
		data := cg.EdgeData(e)
		reverse := data.Backward
		if !forward {
			reverse = data.Forward
		}
		if !reverse {
			continue
		}
		to := cg.Target(e)
		if heap.WasInserted(to) && heap.GetKey(to)+data.Weight < weight {
			return true
		}
	}
	return false
}

// relaxOutgoingEdges expands a settled node along edges matching the search
// direction.
func relaxOutgoingEdges(cg *graph.ContractedGraph, node graph.NodeID, weight graph.EdgeWeight, duration graph.EdgeDuration, forward bool, heap *chHeap) {
	start, end := cg.AdjacentEdges(node)
	for e := start; e < end; e++ {
		data := cg.EdgeData(e)
		dir := data.Forward
		if !forward {
			dir = data.Backward
		}
		if !dir {
			continue
		}
		to := cg.Target(e)
		toWeight := weight + data.Weight
		toDuration := duration + data.Duration

		if !heap.WasInserted(to) {
			heap.Insert(to, toWeight, chHeapData{parent: node, duration: toDuration})
		} else if toWeight < heap.GetKey(to) {
			*heap.GetData(to) = chHeapData{parent: node, duration: toDuration}
			heap.DecreaseKey(to, toWeight)
		}
	}
}

// backwardRoutingStep settles one node of a target's backward search and
// records it in the bucket index under that target's column.
func backwardRoutingStep(cg *graph.ContractedGraph, column uint32, heap *chHeap, buckets map[graph.NodeID][]nodeBucket) {
	node := heap.DeleteMin()
	weight := heap.GetKey(node)
	duration := heap.GetData(node).duration

	buckets[node] = append(buckets[node], nodeBucket{column: column, weight: weight, duration: duration})

	if stallAtNode(cg, node, weight, false, heap) {
		return
	}
	relaxOutgoingEdges(cg, node, weight, duration, false, heap)
}

// forwardRoutingStep settles one node of a source's forward search, joins it
// against every bucket left by the backward searches, then expands it.
// Buckets are consumed before the stall check: a stalled node still closes
// paths that meet there.
func forwardRoutingStep(cg *graph.ContractedGraph, row, numTargets uint32, heap *chHeap, buckets map[graph.NodeID][]nodeBucket, weights []graph.EdgeWeight, durations []graph.EdgeDuration) {
	node := heap.DeleteMin()
	sourceWeight := heap.GetKey(node)
	sourceDuration := heap.GetData(node).duration

	for _, bucket := range buckets[node] {
		idx := row*numTargets + bucket.column
		currentWeight := weights[idx]
		currentDuration := durations[idx]

		newWeight := sourceWeight + bucket.weight
		newDuration := sourceDuration + bucket.duration

		if newWeight < 0 {
			// The phantom offsets over-discounted this meeting; the loop
			// shortcut stored at this node can repay the difference.
			loopWeight := cg.LoopWeight(node, false)
			if loopWeight != graph.InvalidEdgeWeight {
				newWeightWithLoop := newWeight + loopWeight
				if newWeightWithLoop >= 0 {
					loopDuration := cg.LoopWeight(node, true)
					newDurationWithLoop := newDuration + loopDuration
					// Weight and duration minimize independently here.
					if newWeightWithLoop < currentWeight {
						weights[idx] = newWeightWithLoop
					}
					if newDurationWithLoop < currentDuration {
						durations[idx] = newDurationWithLoop
					}
				}
			}
		} else if newWeight < currentWeight {
			weights[idx] = newWeight
			durations[idx] = newDuration
		}
	}

	if stallAtNode(cg, node, sourceWeight, true, heap) {
		return
	}
	relaxOutgoingEdges(cg, node, sourceWeight, sourceDuration, true, heap)
}

// manyToManySearchCH computes the weight and duration tables over the
// contracted graph. One backward search per target fills the bucket index,
// then one forward search per source fills its result row; all backward
// searches complete before the first forward search starts.
func manyToManySearchCH(wd *EngineWorkingData, cg *graph.ContractedGraph, phantoms []PhantomNode, sourceIndices, targetIndices []uint32) ([]graph.EdgeWeight, []graph.EdgeDuration) {
	numSources := uint32(len(sourceIndices))
	numTargets := uint32(len(targetIndices))

	weights := make([]graph.EdgeWeight, numSources*numTargets)
	durations := make([]graph.EdgeDuration, numSources*numTargets)
	for i := range weights {
		weights[i] = graph.InvalidEdgeWeight
		durations[i] = graph.MaximalEdgeDuration
	}

	buckets := make(map[graph.NodeID][]nodeBucket)
	heap := wd.chHeap(cg.NumberOfNodes())

	mk := func(n graph.NodeID, w graph.EdgeWeight, d graph.EdgeDuration) chHeapData {
		return chHeapData{parent: n, duration: d}
	}

	for column, phantomIdx := range targetIndices {
		heap.Clear()
		insertTargetInHeap(heap, &phantoms[phantomIdx], mk)
		for !heap.Empty() {
			backwardRoutingStep(cg, uint32(column), heap, buckets)
		}
	}

	for row, phantomIdx := range sourceIndices {
		heap.Clear()
		insertSourceInHeap(heap, &phantoms[phantomIdx], mk)
		for !heap.Empty() {
			forwardRoutingStep(cg, uint32(row), numTargets, heap, buckets, weights, durations)
		}
	}

	return weights, durations
}
