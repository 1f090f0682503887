package graph

// CellData holds the clique table of one cell at one level. Source nodes are
// boundary nodes enterable from outside the cell, destination nodes are
// boundary nodes that can leave it. OutWeight is row-major
// [len(Source)][len(Dest)]; unreachable pairs carry the MaxInt32 sentinels.
type CellData struct {
	Source      []NodeID
	Dest        []NodeID
	OutWeight   []EdgeWeight
	OutDuration []EdgeDuration
}

type cellEntry struct {
	source, dest []NodeID
	outWeight    []EdgeWeight
	outDuration  []EdgeDuration
	inWeight     []EdgeWeight // transposed: [len(dest)][len(source)]
	inDuration   []EdgeDuration
}

// CellStorage stores the per-cell clique tables for every partition level.
type CellStorage struct {
	levels [][]cellEntry // levels[l-1][cell]
}

// NewCellStorage builds storage from per-level, per-cell clique tables,
// precomputing the transposed in-views so that InWeight returns an aligned
// slice rather than a strided walk.
func NewCellStorage(levels [][]CellData) *CellStorage {
	cs := &CellStorage{levels: make([][]cellEntry, len(levels))}
	for li, cells := range levels {
		entries := make([]cellEntry, len(cells))
		for ci, cd := range cells {
			ns, nd := len(cd.Source), len(cd.Dest)
			e := cellEntry{
				source:      cd.Source,
				dest:        cd.Dest,
				outWeight:   cd.OutWeight,
				outDuration: cd.OutDuration,
				inWeight:    make([]EdgeWeight, nd*ns),
				inDuration:  make([]EdgeDuration, nd*ns),
			}
			for s := 0; s < ns; s++ {
				for d := 0; d < nd; d++ {
					e.inWeight[d*ns+s] = cd.OutWeight[s*nd+d]
					e.inDuration[d*ns+s] = cd.OutDuration[s*nd+d]
				}
			}
			entries[ci] = e
		}
		cs.levels[li] = entries
	}
	return cs
}

// CellView exposes one cell's clique table.
type CellView struct {
	entry *cellEntry
}

// Cell returns the view of the given cell. Level must be >= 1.
func (cs *CellStorage) Cell(level LevelID, cell CellID) CellView {
	return CellView{entry: &cs.levels[level-1][cell]}
}

// SourceNodes returns the boundary nodes enterable from outside the cell.
func (v CellView) SourceNodes() []NodeID { return v.entry.source }

// DestinationNodes returns the boundary nodes that can leave the cell.
func (v CellView) DestinationNodes() []NodeID { return v.entry.dest }

func (v CellView) sourceIndex(n NodeID) int {
	for i, s := range v.entry.source {
		if s == n {
			return i
		}
	}
	return -1
}

func (v CellView) destIndex(n NodeID) int {
	for i, d := range v.entry.dest {
		if d == n {
			return i
		}
	}
	return -1
}

// OutWeight returns the weights from source node n to every destination
// node, aligned with DestinationNodes. Nil when n is not a source node.
func (v CellView) OutWeight(n NodeID) []EdgeWeight {
	i := v.sourceIndex(n)
	if i < 0 {
		return nil
	}
	nd := len(v.entry.dest)
	return v.entry.outWeight[i*nd : (i+1)*nd]
}

// OutDuration returns the durations from source node n to every destination
// node, aligned with DestinationNodes.
func (v CellView) OutDuration(n NodeID) []EdgeDuration {
	i := v.sourceIndex(n)
	if i < 0 {
		return nil
	}
	nd := len(v.entry.dest)
	return v.entry.outDuration[i*nd : (i+1)*nd]
}

// InWeight returns the weights from every source node to destination node n,
// aligned with SourceNodes. Nil when n is not a destination node.
func (v CellView) InWeight(n NodeID) []EdgeWeight {
	i := v.destIndex(n)
	if i < 0 {
		return nil
	}
	ns := len(v.entry.source)
	return v.entry.inWeight[i*ns : (i+1)*ns]
}

// InDuration returns the durations from every source node to destination
// node n, aligned with SourceNodes.
func (v CellView) InDuration(n NodeID) []EdgeDuration {
	i := v.destIndex(n)
	if i < 0 {
		return nil
	}
	ns := len(v.entry.source)
	return v.entry.inDuration[i*ns : (i+1)*ns]
}
