package mld

import (
	"sort"

	"table_router/pkg/graph"
)

// cellHeapItem is an entry in the cell-restricted Dijkstra min-heap.
type cellHeapItem struct {
	node     graph.NodeID
	weight   graph.EdgeWeight
	duration graph.EdgeDuration
}

type cellHeap struct {
	items []cellHeapItem
}

func (h *cellHeap) Len() int { return len(h.items) }

func (h *cellHeap) Push(item cellHeapItem) {
	h.items = append(h.items, item)
	i := len(h.items) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if item.weight >= h.items[parent].weight {
			break
		}
		h.items[i] = h.items[parent]
		i = parent
	}
	h.items[i] = item
}

func (h *cellHeap) Pop() cellHeapItem {
	top := h.items[0]
	n := len(h.items) - 1
	item := h.items[n]
	h.items = h.items[:n]
	if n > 0 {
		i := 0
		for {
			child := 2*i + 1
			if child >= n {
				break
			}
			if right := child + 1; right < n && h.items[right].weight < h.items[child].weight {
				child = right
			}
			if item.weight <= h.items[child].weight {
				break
			}
			h.items[i] = h.items[child]
			i = child
		}
		h.items[i] = item
	}
	return top
}

func (h *cellHeap) Reset() { h.items = h.items[:0] }

// cellState is the reusable search state of the customizer, reset through a
// touched list like the contraction witness search.
type cellState struct {
	weight   []graph.EdgeWeight
	duration []graph.EdgeDuration
	touched  []graph.NodeID
	heap     cellHeap
}

func newCellState(numNodes uint32) *cellState {
	weight := make([]graph.EdgeWeight, numNodes)
	duration := make([]graph.EdgeDuration, numNodes)
	for i := range weight {
		weight[i] = graph.InvalidEdgeWeight
		duration[i] = graph.MaximalEdgeDuration
	}
	return &cellState{weight: weight, duration: duration}
}

func (cs *cellState) reset() {
	for _, n := range cs.touched {
		cs.weight[n] = graph.InvalidEdgeWeight
		cs.duration[n] = graph.MaximalEdgeDuration
	}
	cs.touched = cs.touched[:0]
	cs.heap.Reset()
}

// Customize computes the per-cell clique tables for every partition level:
// one cell-restricted Dijkstra per source boundary node, over the base
// graph. Source nodes are those with an entering boundary edge, destination
// nodes those with a leaving one.
func Customize(g *graph.Graph, p *graph.MultiLevelPartition) *graph.CellStorage {
	state := newCellState(g.NumNodes)
	levels := make([][]graph.CellData, p.NumLevels())

	for l := graph.LevelID(1); l <= p.NumLevels(); l++ {
		numCells := p.NumCells(l)
		cellSource := make([][]graph.NodeID, numCells)
		cellDest := make([][]graph.NodeID, numCells)

		for u := graph.NodeID(0); u < g.NumNodes; u++ {
			cu := p.Cell(l, u)
			start, end := g.EdgesFrom(u)
			var enters, leaves bool
			for e := start; e < end; e++ {
				v := g.Head[e]
				if p.Cell(l, v) == cu {
					continue
				}
				if g.Flags[e]&graph.FlagForward != 0 {
					leaves = true
				}
				if g.Flags[e]&graph.FlagBackward != 0 {
					enters = true
				}
			}
			if enters {
				cellSource[cu] = append(cellSource[cu], u)
			}
			if leaves {
				cellDest[cu] = append(cellDest[cu], u)
			}
		}

		cells := make([]graph.CellData, numCells)
		for c := graph.CellID(0); c < numCells; c++ {
			cells[c] = buildCell(g, p, l, c, cellSource[c], cellDest[c], state)
		}
		levels[l-1] = cells
		logger.Info("customized level", "level", l, "cells", numCells)
	}

	return graph.NewCellStorage(levels)
}

// buildCell fills one cell's clique table.
func buildCell(g *graph.Graph, p *graph.MultiLevelPartition, level graph.LevelID, cell graph.CellID, source, dest []graph.NodeID, state *cellState) graph.CellData {
	sort.Slice(source, func(i, j int) bool { return source[i] < source[j] })
	sort.Slice(dest, func(i, j int) bool { return dest[i] < dest[j] })

	nd := len(dest)
	outWeight := make([]graph.EdgeWeight, len(source)*nd)
	outDuration := make([]graph.EdgeDuration, len(source)*nd)

	for si, s := range source {
		cellDijkstra(g, p, level, cell, s, state)
		for di, d := range dest {
			outWeight[si*nd+di] = state.weight[d]
			outDuration[si*nd+di] = state.duration[d]
		}
	}

	return graph.CellData{Source: source, Dest: dest, OutWeight: outWeight, OutDuration: outDuration}
}

// cellDijkstra relaxes forward edges between nodes of one cell only.
func cellDijkstra(g *graph.Graph, p *graph.MultiLevelPartition, level graph.LevelID, cell graph.CellID, source graph.NodeID, state *cellState) {
	state.reset()
	state.weight[source] = 0
	state.duration[source] = 0
	state.touched = append(state.touched, source)
	state.heap.Push(cellHeapItem{node: source})

	for state.heap.Len() > 0 {
		cur := state.heap.Pop()
		if cur.weight > state.weight[cur.node] {
			continue
		}

		start, end := g.EdgesFrom(cur.node)
		for e := start; e < end; e++ {
			if g.Flags[e]&graph.FlagForward == 0 {
				continue
			}
			to := g.Head[e]
			if p.Cell(level, to) != cell {
				continue
			}
			newWeight := cur.weight + g.Weight[e]
			if newWeight < state.weight[to] {
				if state.weight[to] == graph.InvalidEdgeWeight {
					state.touched = append(state.touched, to)
				}
				state.weight[to] = newWeight
				state.duration[to] = cur.duration + g.Duration[e]
				state.heap.Push(cellHeapItem{node: to, weight: newWeight, duration: state.duration[to]})
			}
		}
	}
}
