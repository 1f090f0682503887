package graph

// Edge direction flags. An edge entry can be traversable forward (in the
// direction it is stored), backward, or both.
const (
	FlagForward  uint8 = 1 << 0
	FlagBackward uint8 = 1 << 1
)

// Graph represents the base directed road graph in CSR (Compressed Sparse
// Row) format. Every stored edge carries direction flags; each road segment
// appears at both endpoints with mirrored flags, so the forward-flagged
// entries alone cover every directed edge exactly once.
type Graph struct {
	NumNodes uint32
	NumEdges uint32
	FirstOut []uint32       // len: NumNodes + 1; FirstOut[i]..FirstOut[i+1] are edges from node i
	Head     []NodeID       // len: NumEdges; target node for each edge
	Weight   []EdgeWeight   // len: NumEdges; weight units (deciseconds)
	Duration []EdgeDuration // len: NumEdges; travel time in deciseconds
	Flags    []uint8        // len: NumEdges; FlagForward / FlagBackward bits
	NodeLat  []float64      // len: NumNodes
	NodeLon  []float64      // len: NumNodes

	// Edge geometry: intermediate shape nodes for polyline output.
	// GeoFirstOut[i]..GeoFirstOut[i+1] indexes into GeoShapeLat/Lon for edge i.
	GeoFirstOut []uint32  // len: NumEdges + 1
	GeoShapeLat []float64 // flattened intermediate lat coords
	GeoShapeLon []float64 // flattened intermediate lon coords
}

// EdgesFrom returns the range of edge indices for edges stored at node u.
func (g *Graph) EdgesFrom(u NodeID) (start, end EdgeID) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// NumberOfNodes returns the node count.
func (g *Graph) NumberOfNodes() uint32 { return g.NumNodes }
