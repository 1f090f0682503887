package routing

import "table_router/pkg/graph"

// Facade is a query graph the table search can run on: either the
// contracted graph or the multi-level graph.
type Facade interface {
	NumberOfNodes() uint32
}

// EngineWorkingData holds the reusable per-worker search state. It is not
// safe for concurrent use; hand each worker its own instance.
type EngineWorkingData struct {
	chHeapStore  *QueryHeap[chHeapData]
	mldHeapStore *QueryHeap[mldHeapData]
	borderBuf    []graph.EdgeID
}

func (wd *EngineWorkingData) chHeap(numNodes uint32) *QueryHeap[chHeapData] {
	if wd.chHeapStore == nil || uint32(len(wd.chHeapStore.nodeIndex)) < numNodes {
		wd.chHeapStore = NewQueryHeap[chHeapData](numNodes)
	}
	wd.chHeapStore.Clear()
	return wd.chHeapStore
}

func (wd *EngineWorkingData) mldHeap(numNodes uint32) *QueryHeap[mldHeapData] {
	if wd.mldHeapStore == nil || uint32(len(wd.mldHeapStore.nodeIndex)) < numNodes {
		wd.mldHeapStore = NewQueryHeap[mldHeapData](numNodes)
	}
	wd.mldHeapStore.Clear()
	return wd.mldHeapStore
}

// allIndices returns 0..n-1, the interpretation of an empty index slice.
func allIndices(n int) []uint32 {
	idx := make([]uint32, n)
	for i := range idx {
		idx[i] = uint32(i)
	}
	return idx
}

// ManyToManySearch computes the duration table between the selected source
// and target phantoms, row-major with one row per source. Empty index
// slices select every phantom. Unreachable pairs carry
// graph.MaximalEdgeDuration; durations are deciseconds.
func ManyToManySearch(wd *EngineWorkingData, facade Facade, phantoms []PhantomNode, sourceIndices, targetIndices []uint32) []graph.EdgeDuration {
	if len(sourceIndices) == 0 {
		sourceIndices = allIndices(len(phantoms))
	}
	if len(targetIndices) == 0 {
		targetIndices = allIndices(len(phantoms))
	}

	var durations []graph.EdgeDuration
	switch f := facade.(type) {
	case *graph.ContractedGraph:
		_, durations = manyToManySearchCH(wd, f, phantoms, sourceIndices, targetIndices)
	case *graph.MultiLevelGraph:
		_, durations = manyToManySearchMLD(wd, f, phantoms, sourceIndices, targetIndices)
	default:
		panic("routing: unsupported facade")
	}
	return durations
}
