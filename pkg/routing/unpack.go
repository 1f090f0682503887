package routing

import "table_router/pkg/graph"

const maxUnpackDepth = 200

const noNode = ^uint32(0) // sentinel for "no node"

// unpackOverlayPath takes a sequence of overlay-level nodes and unpacks all
// shortcut hops into original-graph node sequences.
func unpackOverlayPath(cg *graph.ContractedGraph, overlayNodes []graph.NodeID) []graph.NodeID {
	if len(overlayNodes) < 2 {
		return overlayNodes
	}

	var result []graph.NodeID
	result = append(result, overlayNodes[0])

	for i := 0; i < len(overlayNodes)-1; i++ {
		unpacked := unpackHop(cg, overlayNodes[i], overlayNodes[i+1])
		// Skip first node (already in result) to avoid duplication.
		if len(unpacked) > 1 {
			result = append(result, unpacked[1:]...)
		}
	}

	return result
}

// unpackHop iteratively unpacks a single overlay hop from→to into a sequence
// of original-graph nodes. Uses an explicit stack to avoid recursion.
func unpackHop(cg *graph.ContractedGraph, from, to graph.NodeID) []graph.NodeID {
	type item struct {
		from, to graph.NodeID
		depth    int
	}

	stack := []item{{from, to, 0}}
	var result []graph.NodeID

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > maxUnpackDepth {
			continue // safety bound
		}

		middle := findMiddle(cg, it.from, it.to)
		if middle == graph.InvalidNodeID {
			// Original edge, append its endpoints.
			if len(result) == 0 || result[len(result)-1] != it.from {
				result = append(result, it.from)
			}
			result = append(result, it.to)
			continue
		}

		// Push right half first (middle→to), then left half (from→middle),
		// so left is processed first (LIFO).
		stack = append(stack, item{middle, it.to, it.depth + 1})
		stack = append(stack, item{it.from, middle, it.depth + 1})
	}

	return result
}

// findMiddle looks up the middle (contracted) node for the directed overlay
// edge from→to. Returns graph.InvalidNodeID if the edge is an original road
// segment rather than a shortcut.
//
// A directed edge a→b is stored at its lower-ranked endpoint: with
// FlagForward when stored at a, with FlagBackward when stored at b. Parallel
// entries can coexist, so the cheapest matching entry wins.
func findMiddle(cg *graph.ContractedGraph, from, to graph.NodeID) graph.NodeID {
	middle := graph.InvalidNodeID
	best := graph.InvalidEdgeWeight
	found := false

	start, end := cg.AdjacentEdges(from)
	for e := start; e < end; e++ {
		if cg.Head[e] == to && cg.Flags[e]&graph.FlagForward != 0 {
			if !found || cg.Weight[e] < best {
				best = cg.Weight[e]
				middle = cg.Middle[e]
				found = true
			}
		}
	}

	start, end = cg.AdjacentEdges(to)
	for e := start; e < end; e++ {
		if cg.Head[e] == from && cg.Flags[e]&graph.FlagBackward != 0 {
			if !found || cg.Weight[e] < best {
				best = cg.Weight[e]
				middle = cg.Middle[e]
				found = true
			}
		}
	}

	return middle
}
