package ch

import (
	"math"
	"testing"

	"github.com/paulmach/osm"

	"table_router/pkg/graph"
	osmparser "table_router/pkg/osm"
)

// buildTestGraph creates a small graph for testing:
//
//	0 ---100--- 1 ---200--- 2
//	|                       |
//	300                    400
//	|                       |
//	3 ---500--- 4 ---600--- 5
//
// All edges are bidirectional.
func buildTestGraph() *graph.Graph {
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			// Row 1: 0-1-2
			{FromNodeID: 10, ToNodeID: 20, Weight: 100, Duration: 100, Forward: true, Backward: true},
			{FromNodeID: 20, ToNodeID: 30, Weight: 200, Duration: 200, Forward: true, Backward: true},
			// Columns: 0-3, 2-5
			{FromNodeID: 10, ToNodeID: 40, Weight: 300, Duration: 300, Forward: true, Backward: true},
			{FromNodeID: 30, ToNodeID: 60, Weight: 400, Duration: 400, Forward: true, Backward: true},
			// Row 2: 3-4-5
			{FromNodeID: 40, ToNodeID: 50, Weight: 500, Duration: 500, Forward: true, Backward: true},
			{FromNodeID: 50, ToNodeID: 60, Weight: 600, Duration: 600, Forward: true, Backward: true},
		},
		NodeLat: map[osm.NodeID]float64{10: 1.0, 20: 1.0, 30: 1.0, 40: 1.1, 50: 1.1, 60: 1.1},
		NodeLon: map[osm.NodeID]float64{10: 103.0, 20: 103.1, 30: 103.2, 40: 103.0, 50: 103.1, 60: 103.2},
	}
	return graph.Build(result)
}

// plainDijkstra runs standard Dijkstra on the original flagged CSR graph.
func plainDijkstra(g *graph.Graph, source, target graph.NodeID) uint32 {
	dist := make([]uint32, g.NumNodes)
	for i := range dist {
		dist[i] = math.MaxUint32
	}
	dist[source] = 0

	type item struct {
		node graph.NodeID
		dist uint32
	}
	var pq []item
	pq = append(pq, item{source, 0})

	for len(pq) > 0 {
		minIdx := 0
		for i := 1; i < len(pq); i++ {
			if pq[i].dist < pq[minIdx].dist {
				minIdx = i
			}
		}
		cur := pq[minIdx]
		pq[minIdx] = pq[len(pq)-1]
		pq = pq[:len(pq)-1]

		if cur.dist > dist[cur.node] {
			continue
		}

		if cur.node == target {
			return cur.dist
		}

		start, end := g.EdgesFrom(cur.node)
		for e := start; e < end; e++ {
			if g.Flags[e]&graph.FlagForward == 0 {
				continue
			}
			v := g.Head[e]
			newDist := cur.dist + uint32(g.Weight[e])
			if newDist < dist[v] {
				dist[v] = newDist
				pq = append(pq, item{v, newDist})
			}
		}
	}

	return dist[target]
}

// chDijkstra runs bidirectional Dijkstra on the upward overlay. Both
// directions scan the same adjacency range and filter by direction bit.
func chDijkstra(cg *graph.ContractedGraph, source, target graph.NodeID) uint32 {
	distFwd := make([]uint32, cg.NumNodes)
	distBwd := make([]uint32, cg.NumNodes)
	for i := range distFwd {
		distFwd[i] = math.MaxUint32
		distBwd[i] = math.MaxUint32
	}
	distFwd[source] = 0
	distBwd[target] = 0

	type item struct {
		node graph.NodeID
		dist uint32
	}

	var fwdPQ, bwdPQ []item
	fwdPQ = append(fwdPQ, item{source, 0})
	bwdPQ = append(bwdPQ, item{target, 0})

	mu := uint32(math.MaxUint32)

	popMin := func(pq *[]item) item {
		minIdx := 0
		for i := 1; i < len(*pq); i++ {
			if (*pq)[i].dist < (*pq)[minIdx].dist {
				minIdx = i
			}
		}
		cur := (*pq)[minIdx]
		(*pq)[minIdx] = (*pq)[len(*pq)-1]
		*pq = (*pq)[:len(*pq)-1]
		return cur
	}

	peekMin := func(pq []item) uint32 {
		if len(pq) == 0 {
			return math.MaxUint32
		}
		min := pq[0].dist
		for _, it := range pq[1:] {
			if it.dist < min {
				min = it.dist
			}
		}
		return min
	}

	for len(fwdPQ) > 0 || len(bwdPQ) > 0 {
		if len(fwdPQ) > 0 && peekMin(fwdPQ) < mu {
			cur := popMin(&fwdPQ)
			if cur.dist <= distFwd[cur.node] {
				if distBwd[cur.node] < math.MaxUint32 {
					cand := cur.dist + distBwd[cur.node]
					if cand < mu {
						mu = cand
					}
				}
				start, end := cg.AdjacentEdges(cur.node)
				for e := start; e < end; e++ {
					if cg.Flags[e]&graph.FlagForward == 0 {
						continue
					}
					v := cg.Head[e]
					newDist := cur.dist + uint32(cg.Weight[e])
					if newDist < distFwd[v] {
						distFwd[v] = newDist
						fwdPQ = append(fwdPQ, item{v, newDist})
					}
				}
			}
		}

		if len(bwdPQ) > 0 && peekMin(bwdPQ) < mu {
			cur := popMin(&bwdPQ)
			if cur.dist <= distBwd[cur.node] {
				if distFwd[cur.node] < math.MaxUint32 {
					cand := distFwd[cur.node] + cur.dist
					if cand < mu {
						mu = cand
					}
				}
				start, end := cg.AdjacentEdges(cur.node)
				for e := start; e < end; e++ {
					if cg.Flags[e]&graph.FlagBackward == 0 {
						continue
					}
					v := cg.Head[e]
					newDist := cur.dist + uint32(cg.Weight[e])
					if newDist < distBwd[v] {
						distBwd[v] = newDist
						bwdPQ = append(bwdPQ, item{v, newDist})
					}
				}
			}
		}

		fwdMin := peekMin(fwdPQ)
		bwdMin := peekMin(bwdPQ)
		if fwdMin >= mu && bwdMin >= mu {
			break
		}
	}

	return mu
}

func TestContractSmallGraph(t *testing.T) {
	g := buildTestGraph()

	if g.NumNodes != 6 {
		t.Fatalf("test graph has %d nodes, want 6", g.NumNodes)
	}

	cg := Contract(g)

	if cg.NumNodes != 6 {
		t.Fatalf("overlay has %d nodes, want 6", cg.NumNodes)
	}

	// Verify ranks are a permutation of 0..5.
	rankSeen := make(map[uint32]bool)
	for _, r := range cg.Rank {
		if r >= cg.NumNodes {
			t.Errorf("rank %d >= NumNodes %d", r, cg.NumNodes)
		}
		rankSeen[r] = true
	}
	if len(rankSeen) != int(cg.NumNodes) {
		t.Errorf("ranks are not a permutation: saw %d unique values, want %d", len(rankSeen), cg.NumNodes)
	}

	// Every overlay edge points upward in rank.
	for u := graph.NodeID(0); u < cg.NumNodes; u++ {
		start, end := cg.AdjacentEdges(u)
		for e := start; e < end; e++ {
			if cg.Rank[cg.Head[e]] <= cg.Rank[u] {
				t.Errorf("edge %d->%d points downward (ranks %d, %d)", u, cg.Head[e], cg.Rank[u], cg.Rank[cg.Head[e]])
			}
		}
	}
}

func TestCHCorrectnessAllPairs(t *testing.T) {
	g := buildTestGraph()
	cg := Contract(g)

	for s := graph.NodeID(0); s < g.NumNodes; s++ {
		for d := graph.NodeID(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}
			plainDist := plainDijkstra(g, s, d)
			chDist := chDijkstra(cg, s, d)
			if chDist != plainDist {
				t.Errorf("s=%d d=%d: CH=%d, Dijkstra=%d", s, d, chDist, plainDist)
			}
		}
	}
}

func TestContractEmptyGraph(t *testing.T) {
	result := &osmparser.ParseResult{
		Edges:   nil,
		NodeLat: map[osm.NodeID]float64{1: 1.0},
		NodeLon: map[osm.NodeID]float64{1: 103.0},
	}
	g := graph.Build(result)
	cg := Contract(g)
	if cg.NumNodes != 0 {
		t.Errorf("NumNodes=%d, want 0 for edgeless input", cg.NumNodes)
	}
}

func TestContractLinearGraph(t *testing.T) {
	// Linear chain: 0 -> 1 -> 2 -> 3 -> 4 (all one-way)
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 100, Duration: 100, Forward: true},
			{FromNodeID: 2, ToNodeID: 3, Weight: 200, Duration: 200, Forward: true},
			{FromNodeID: 3, ToNodeID: 4, Weight: 300, Duration: 300, Forward: true},
			{FromNodeID: 4, ToNodeID: 5, Weight: 400, Duration: 400, Forward: true},
		},
		NodeLat: map[osm.NodeID]float64{1: 1.0, 2: 1.1, 3: 1.2, 4: 1.3, 5: 1.4},
		NodeLon: map[osm.NodeID]float64{1: 103.0, 2: 103.1, 3: 103.2, 4: 103.3, 5: 103.4},
	}
	g := graph.Build(result)
	cg := Contract(g)

	dist := chDijkstra(cg, 0, 4)
	expected := plainDijkstra(g, 0, 4)
	if dist != expected {
		t.Errorf("linear chain: CH=%d, Dijkstra=%d", dist, expected)
	}

	// One-way: the reverse direction stays unreachable.
	if rev := chDijkstra(cg, 4, 0); rev != math.MaxUint32 {
		t.Errorf("reverse of one-way chain reachable with dist %d", rev)
	}
}

func TestContractOneWayPair(t *testing.T) {
	// Two directed edges with different weights between the same nodes
	// plus a detour, so each direction resolves independently.
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 100, Duration: 100, Forward: true},
			{FromNodeID: 2, ToNodeID: 3, Weight: 100, Duration: 100, Forward: true},
			{FromNodeID: 3, ToNodeID: 1, Weight: 100, Duration: 100, Forward: true},
		},
		NodeLat: map[osm.NodeID]float64{1: 1.0, 2: 1.1, 3: 1.2},
		NodeLon: map[osm.NodeID]float64{1: 103.0, 2: 103.1, 3: 103.2},
	}
	g := graph.Build(result)
	cg := Contract(g)

	for s := graph.NodeID(0); s < g.NumNodes; s++ {
		for d := graph.NodeID(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}
			plainDist := plainDijkstra(g, s, d)
			chDist := chDijkstra(cg, s, d)
			if chDist != plainDist {
				t.Errorf("cycle s=%d d=%d: CH=%d, Dijkstra=%d", s, d, chDist, plainDist)
			}
		}
	}
}
