package routing

import "table_router/pkg/graph"

// mldHeapData is the per-node payload of the table search on the multi-level
// graph. The query level rides along so a node popped deep inside a cell
// does not re-derive it from scratch; fromCliqueArc suppresses immediate
// re-entry into the clique a node was just lifted over.
type mldHeapData struct {
	parent        graph.NodeID
	duration      graph.EdgeDuration
	level         graph.LevelID
	fromCliqueArc bool
}

type mldHeap = QueryHeap[mldHeapData]

// parentCell is the smallest cell that contains the search origin together
// with every phantom on the opposite side of the table. The whole search
// stays inside it.
type parentCell struct {
	level graph.LevelID
	cell  graph.CellID
}

// getParentCell finds the highest level at which the search phantom differs
// from any opposite-side phantom, over every enabled segment combination,
// and returns the cell one level above, anchored on the phantom's forward
// node. The topmost level has a single cell, so that level is always
// addressable.
func getParentCell(p *graph.MultiLevelPartition, search *PhantomNode, phantoms []PhantomNode, otherIndices []uint32) parentCell {
	searchSegs := [2]SegmentID{search.ForwardSegment, search.ReverseSegment}
	highest := graph.LevelID(0)
	for _, idx := range otherIndices {
		other := &phantoms[idx]
		otherSegs := [2]SegmentID{other.ForwardSegment, other.ReverseSegment}
		for _, a := range searchSegs {
			if !a.Enabled {
				continue
			}
			for _, b := range otherSegs {
				if !b.Enabled {
					continue
				}
				if l := p.HighestDifferentLevel(a.ID, b.ID); l > highest {
					highest = l
				}
			}
		}
	}
	level := highest + 1
	return parentCell{level: level, cell: p.Cell(level, search.ForwardSegment.ID)}
}

// nodeQueryLevel lifts the stored level across the boundary just crossed
// between the node and its search parent.
func nodeQueryLevel(p *graph.MultiLevelPartition, node graph.NodeID, data *mldHeapData) graph.LevelID {
	level := p.HighestDifferentLevel(data.parent, node)
	if data.level > level {
		level = data.level
	}
	return level
}

// relaxOutgoingEdgesMLD expands a settled node: clique arcs of its cell at
// the query level, then boundary edges of that level, both confined to the
// parent cell.
func relaxOutgoingEdgesMLD(mlg *graph.MultiLevelGraph, node graph.NodeID, weight graph.EdgeWeight, duration graph.EdgeDuration, forward bool, heap *mldHeap, parent parentCell, wd *EngineWorkingData) {
	data := heap.GetData(node)
	level := nodeQueryLevel(mlg.Partition, node, data)

	update := func(to graph.NodeID, toWeight graph.EdgeWeight, toDuration graph.EdgeDuration, fromClique bool) {
		payload := mldHeapData{parent: node, duration: toDuration, level: level, fromCliqueArc: fromClique}
		if !heap.WasInserted(to) {
			heap.Insert(to, toWeight, payload)
		} else if toWeight < heap.GetKey(to) {
			*heap.GetData(to) = payload
			heap.DecreaseKey(to, toWeight)
		}
	}

	if level >= 1 && !data.fromCliqueArc {
		cell := mlg.Cells.Cell(level, mlg.Partition.Cell(level, node))
		if forward {
			dests := cell.DestinationNodes()
			durs := cell.OutDuration(node)
			for i, shortcutWeight := range cell.OutWeight(node) {
				to := dests[i]
				if shortcutWeight == graph.InvalidEdgeWeight || to == node {
					continue
				}
				update(to, weight+shortcutWeight, duration+durs[i], true)
			}
		} else {
			sources := cell.SourceNodes()
			durs := cell.InDuration(node)
			for i, shortcutWeight := range cell.InWeight(node) {
				to := sources[i]
				if shortcutWeight == graph.InvalidEdgeWeight || to == node {
					continue
				}
				update(to, weight+shortcutWeight, duration+durs[i], true)
			}
		}
	}

	wd.borderBuf = mlg.BorderEdges(level, node, wd.borderBuf[:0])
	for _, e := range wd.borderBuf {
		dir := mlg.Flags[e]&graph.FlagForward != 0
		if !forward {
			dir = mlg.Flags[e]&graph.FlagBackward != 0
		}
		if !dir {
			continue
		}
		to := mlg.Head[e]
		if mlg.Partition.Cell(parent.level, to) != parent.cell {
			continue
		}
		update(to, weight+mlg.Weight[e], duration+mlg.Duration[e], false)
	}
}

// backwardRoutingStepMLD settles one node of a target's backward search and
// records it in the bucket index.
func backwardRoutingStepMLD(mlg *graph.MultiLevelGraph, column uint32, heap *mldHeap, buckets map[graph.NodeID][]nodeBucket, parent parentCell, wd *EngineWorkingData) {
	node := heap.DeleteMin()
	weight := heap.GetKey(node)
	duration := heap.GetData(node).duration

	buckets[node] = append(buckets[node], nodeBucket{column: column, weight: weight, duration: duration})

	relaxOutgoingEdgesMLD(mlg, node, weight, duration, false, heap, parent, wd)
}

// forwardRoutingStepMLD settles one node of a source's forward search, joins
// it against the buckets, then expands it. Negative sums cannot be repaired
// on the flat multi-level graph, so they are discarded.
func forwardRoutingStepMLD(mlg *graph.MultiLevelGraph, row, numTargets uint32, heap *mldHeap, buckets map[graph.NodeID][]nodeBucket, weights []graph.EdgeWeight, durations []graph.EdgeDuration, parent parentCell, wd *EngineWorkingData) {
	node := heap.DeleteMin()
	sourceWeight := heap.GetKey(node)
	sourceDuration := heap.GetData(node).duration

	for _, bucket := range buckets[node] {
		idx := row*numTargets + bucket.column
		newWeight := sourceWeight + bucket.weight
		newDuration := sourceDuration + bucket.duration
		if newWeight >= 0 && newWeight < weights[idx] {
			weights[idx] = newWeight
			durations[idx] = newDuration
		}
	}

	relaxOutgoingEdgesMLD(mlg, node, sourceWeight, sourceDuration, true, heap, parent, wd)
}

// manyToManySearchMLD computes the weight and duration tables over the
// multi-level graph, same two-phase bucket scheme as the contracted search.
func manyToManySearchMLD(wd *EngineWorkingData, mlg *graph.MultiLevelGraph, phantoms []PhantomNode, sourceIndices, targetIndices []uint32) ([]graph.EdgeWeight, []graph.EdgeDuration) {
	numSources := uint32(len(sourceIndices))
	numTargets := uint32(len(targetIndices))

	weights := make([]graph.EdgeWeight, numSources*numTargets)
	durations := make([]graph.EdgeDuration, numSources*numTargets)
	for i := range weights {
		weights[i] = graph.InvalidEdgeWeight
		durations[i] = graph.MaximalEdgeDuration
	}

	buckets := make(map[graph.NodeID][]nodeBucket)
	heap := wd.mldHeap(mlg.NumberOfNodes())

	mk := func(n graph.NodeID, w graph.EdgeWeight, d graph.EdgeDuration) mldHeapData {
		return mldHeapData{parent: n, duration: d}
	}

	for column, phantomIdx := range targetIndices {
		heap.Clear()
		insertTargetInHeap(heap, &phantoms[phantomIdx], mk)
		parent := getParentCell(mlg.Partition, &phantoms[phantomIdx], phantoms, sourceIndices)
		for !heap.Empty() {
			backwardRoutingStepMLD(mlg, uint32(column), heap, buckets, parent, wd)
		}
	}

	for row, phantomIdx := range sourceIndices {
		heap.Clear()
		insertSourceInHeap(heap, &phantoms[phantomIdx], mk)
		parent := getParentCell(mlg.Partition, &phantoms[phantomIdx], phantoms, targetIndices)
		for !heap.Empty() {
			forwardRoutingStepMLD(mlg, uint32(row), numTargets, heap, buckets, weights, durations, parent, wd)
		}
	}

	return weights, durations
}
