package ch

import (
	"container/heap"

	"github.com/charmbracelet/log"

	"table_router/pkg/graph"
)

// maxShortcutsPerNode is the limit on shortcuts a single contraction can create.
// Nodes exceeding this form an uncontracted "core" at the top of the hierarchy.
const maxShortcutsPerNode = 1000

var logger = log.With("component", "contract")

// adjEntry represents a directed edge in the mutable adjacency lists.
type adjEntry struct {
	to       graph.NodeID
	weight   graph.EdgeWeight
	duration graph.EdgeDuration
	middle   graph.NodeID // InvalidNodeID for original edges, else the contracted node
}

// Contract performs contraction hierarchies preprocessing on the base graph
// and returns the upward query graph with direction-bit adjacency and
// per-node loop shortcuts.
func Contract(g *graph.Graph) *graph.ContractedGraph {
	n := g.NumNodes
	if n == 0 {
		return &graph.ContractedGraph{}
	}

	// Expand the flagged CSR into directed forward and reverse adjacency.
	// Storage is symmetric, so forward-flagged entries alone cover every
	// directed edge exactly once.
	outAdj := make([][]adjEntry, n)
	inAdj := make([][]adjEntry, n)

	for u := graph.NodeID(0); u < n; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			if g.Flags[e]&graph.FlagForward == 0 {
				continue
			}
			v := g.Head[e]
			w := g.Weight[e]
			d := g.Duration[e]
			outAdj[u] = append(outAdj[u], adjEntry{to: v, weight: w, duration: d, middle: graph.InvalidNodeID})
			inAdj[v] = append(inAdj[v], adjEntry{to: u, weight: w, duration: d, middle: graph.InvalidNodeID})
		}
	}

	contracted := make([]bool, n)
	rank := make([]uint32, n)
	contractedNeighbors := make([]int, n)
	level := make([]int, n)

	loopWeight := make([]graph.EdgeWeight, n)
	loopDuration := make([]graph.EdgeDuration, n)
	for i := range loopWeight {
		loopWeight[i] = graph.InvalidEdgeWeight
		loopDuration[i] = graph.MaximalEdgeDuration
	}

	pq := make(priorityQueue, n)
	for i := graph.NodeID(0); i < n; i++ {
		pq[i] = &pqEntry{
			node:     i,
			priority: computePriority(outAdj, inAdj, i, contracted, contractedNeighbors[i], level[i]),
			index:    int(i),
		}
	}
	heap.Init(&pq)

	ws := newWitnessState(n)

	logger.Info("starting contraction", "nodes", n)

	var totalShortcuts int
	order := uint32(0)
	logInterval := uint32(50000)

	for pq.Len() > 0 {
		entry := heap.Pop(&pq).(*pqEntry)
		node := entry.node

		if contracted[node] {
			continue
		}

		// Lazy update: recompute priority and re-insert if it rose above both
		// the stored priority and the next queued one.
		newPriority := computePriority(outAdj, inAdj, node, contracted, contractedNeighbors[node], level[node])
		if newPriority > entry.priority && pq.Len() > 0 && newPriority > pq[0].priority {
			entry.priority = newPriority
			heap.Push(&pq, entry)
			continue
		}

		shortcuts := findShortcuts(ws, outAdj, inAdj, node, contracted)

		// If contracting this node would produce too many shortcuts,
		// stop contraction entirely. Remaining nodes form a "core"
		// at the top of the hierarchy with original edges preserved.
		if len(shortcuts) > maxShortcutsPerNode {
			logger.Warn("stopping contraction",
				"node", node, "shortcuts", len(shortcuts), "limit", maxShortcutsPerNode,
				"core", n-order)
			break
		}

		contracted[node] = true
		rank[node] = order
		order++
		totalShortcuts += len(shortcuts)

		for _, sc := range shortcuts {
			if sc.from == sc.to {
				// A loop u -> node -> u. Kept out of the adjacency and
				// recorded per node for negative-sum repair at query time.
				if sc.weight < loopWeight[sc.from] ||
					(sc.weight == loopWeight[sc.from] && sc.duration < loopDuration[sc.from]) {
					loopWeight[sc.from] = sc.weight
					loopDuration[sc.from] = sc.duration
				}
				continue
			}
			outAdj[sc.from] = append(outAdj[sc.from], adjEntry{to: sc.to, weight: sc.weight, duration: sc.duration, middle: node})
			inAdj[sc.to] = append(inAdj[sc.to], adjEntry{to: sc.from, weight: sc.weight, duration: sc.duration, middle: node})
		}

		for _, e := range outAdj[node] {
			if !contracted[e.to] {
				contractedNeighbors[e.to]++
				if level[node]+1 > level[e.to] {
					level[e.to] = level[node] + 1
				}
			}
		}
		for _, e := range inAdj[node] {
			if !contracted[e.to] {
				contractedNeighbors[e.to]++
				if level[node]+1 > level[e.to] {
					level[e.to] = level[node] + 1
				}
			}
		}

		// Adaptive logging: more frequent as we approach the end.
		remaining := n - order
		switch {
		case remaining < 1000:
			logInterval = 100
		case remaining < 10000:
			logInterval = 1000
		case remaining < 100000:
			logInterval = 10000
		default:
			logInterval = 50000
		}

		if order%logInterval == 0 {
			logger.Info("contraction progress", "done", order, "total", n, "shortcuts", totalShortcuts)
		}
	}

	// Assign ranks to remaining uncontracted core nodes.
	coreSize := uint32(0)
	for i := graph.NodeID(0); i < n; i++ {
		if !contracted[i] {
			contracted[i] = true
			rank[i] = order
			order++
			coreSize++
		}
	}

	logger.Info("contraction complete",
		"shortcuts", totalShortcuts,
		"ratio", float64(totalShortcuts)/float64(max(g.NumEdges, 1)),
		"core", coreSize)

	cg := buildOverlay(n, outAdj, rank)
	cg.Loop = loopWeight
	cg.LoopDuration = loopDuration
	return cg
}

// shortcut represents a shortcut edge to be added. from == to is a loop.
type shortcut struct {
	from, to graph.NodeID
	weight   graph.EdgeWeight
	duration graph.EdgeDuration
}

// findShortcuts determines which shortcuts are needed when contracting a node.
// Uses batch witness search: one Dijkstra per incoming neighbor instead of one
// per (incoming, outgoing) pair. This reduces search count from O(|in|*|out|)
// to O(|in|).
func findShortcuts(ws *witnessState, outAdj, inAdj [][]adjEntry, node graph.NodeID, contracted []bool) []shortcut {
	var incoming []adjEntry
	for _, e := range inAdj[node] {
		if !contracted[e.to] && e.to != node {
			incoming = append(incoming, e)
		}
	}

	var outgoing []adjEntry
	for _, e := range outAdj[node] {
		if !contracted[e.to] && e.to != node {
			outgoing = append(outgoing, e)
		}
	}

	if len(incoming) == 0 || len(outgoing) == 0 {
		return nil
	}

	var shortcuts []shortcut

	for _, in := range incoming {
		// Max outgoing weight bounds this batch search.
		var maxOut graph.EdgeWeight
		for _, out := range outgoing {
			if out.to != in.to && out.weight > maxOut {
				maxOut = out.weight
			}
		}

		maxWeight := in.weight + maxOut

		if maxOut > 0 {
			// One Dijkstra from in.to, then check all outgoing targets.
			batchWitnessSearch(ws, outAdj, in.to, node, maxWeight, contracted)
		}

		for _, out := range outgoing {
			scWeight := in.weight + out.weight
			scDuration := in.duration + out.duration

			if out.to == in.to {
				// u -> node -> u becomes a loop shortcut; no witness can
				// beat the trivial zero-length stay-at-u path, so it is
				// recorded unconditionally.
				shortcuts = append(shortcuts, shortcut{from: in.to, to: out.to, weight: scWeight, duration: scDuration})
				continue
			}

			// A witness path at least as good makes the shortcut redundant.
			if ws.dist[out.to] > scWeight {
				shortcuts = append(shortcuts, shortcut{
					from:     in.to,
					to:       out.to,
					weight:   scWeight,
					duration: scDuration,
				})
			}
		}
	}

	return shortcuts
}

// computePriority returns the priority for a node (lower = contract first).
func computePriority(outAdj, inAdj [][]adjEntry, node graph.NodeID, contracted []bool, contractedNeighbors, level int) int {
	activeIn := 0
	for _, e := range inAdj[node] {
		if !contracted[e.to] {
			activeIn++
		}
	}
	activeOut := 0
	for _, e := range outAdj[node] {
		if !contracted[e.to] {
			activeOut++
		}
	}

	// Worst-case shortcut count stands in for the real one; the ordering
	// only needs a rough signal and the lazy update corrects drift.
	edgeDifference := activeIn*activeOut - (activeIn + activeOut)

	return edgeDifference + 2*contractedNeighbors + level
}

// buildOverlay folds every directed edge into a single upward CSR: each
// directed edge a->b is stored at its lower-ranked endpoint, flagged forward
// when stored at a and backward when stored at b. Parallel entries that
// agree on weight, duration and middle merge their flags.
func buildOverlay(n uint32, outAdj [][]adjEntry, rank []uint32) *graph.ContractedGraph {
	type csrEdge struct {
		from, to graph.NodeID
		weight   graph.EdgeWeight
		duration graph.EdgeDuration
		middle   graph.NodeID
		flags    uint8
	}

	var edges []csrEdge
	for a := graph.NodeID(0); a < n; a++ {
		for _, e := range outAdj[a] {
			b := e.to
			if rank[a] < rank[b] {
				edges = append(edges, csrEdge{from: a, to: b, weight: e.weight, duration: e.duration, middle: e.middle, flags: graph.FlagForward})
			} else if rank[b] < rank[a] {
				edges = append(edges, csrEdge{from: b, to: a, weight: e.weight, duration: e.duration, middle: e.middle, flags: graph.FlagBackward})
			}
		}
	}

	firstOut := make([]uint32, n+1)
	for _, e := range edges {
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= n; i++ {
		firstOut[i] += firstOut[i-1]
	}

	ordered := make([]csrEdge, len(edges))
	pos := make([]uint32, n)
	copy(pos, firstOut[:n])
	for _, e := range edges {
		ordered[pos[e.from]] = e
		pos[e.from]++
	}

	// Merge parallel entries sharing payload.
	merged := ordered[:0]
	for i := graph.NodeID(0); i < n; i++ {
		start := len(merged)
		for _, e := range ordered[firstOut[i]:firstOut[i+1]] {
			found := false
			for j := start; j < len(merged); j++ {
				m := &merged[j]
				if m.to == e.to && m.weight == e.weight && m.duration == e.duration && m.middle == e.middle {
					m.flags |= e.flags
					found = true
					break
				}
			}
			if !found {
				merged = append(merged, e)
			}
		}
		firstOut[i] = uint32(start)
	}
	firstOut[n] = uint32(len(merged))

	numEdges := uint32(len(merged))
	cg := &graph.ContractedGraph{
		NumNodes: n,
		Rank:     rank,
		FirstOut: firstOut,
		Head:     make([]graph.NodeID, numEdges),
		Weight:   make([]graph.EdgeWeight, numEdges),
		Duration: make([]graph.EdgeDuration, numEdges),
		Flags:    make([]uint8, numEdges),
		Middle:   make([]graph.NodeID, numEdges),
	}
	for i, e := range merged {
		cg.Head[i] = e.to
		cg.Weight[i] = e.weight
		cg.Duration[i] = e.duration
		cg.Flags[i] = e.flags
		cg.Middle[i] = e.middle
	}

	logger.Info("overlay built", "edges", numEdges)
	return cg
}

// Priority queue implementation for contraction ordering.

type pqEntry struct {
	node     graph.NodeID
	priority int
	index    int
}

type priorityQueue []*pqEntry

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	entry := x.(*pqEntry)
	entry.index = len(*pq)
	*pq = append(*pq, entry)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*pq = old[:n-1]
	return entry
}
