package graph

import (
	"sort"

	"github.com/paulmach/osm"

	osmparser "table_router/pkg/osm"
)

// Build creates the flagged CSR Graph from parsed OSM segments. Every
// segment is stored at both endpoints with mirrored direction flags, so a
// node's adjacency covers everything enterable or leavable there.
func Build(result *osmparser.ParseResult) *Graph {
	edges := result.Edges
	if len(edges) == 0 {
		return &Graph{}
	}

	// Step 1: Collect all unique node IDs and build a compact mapping.
	nodeSet := make(map[osm.NodeID]uint32)
	var nodeIDs []osm.NodeID

	addNode := func(id osm.NodeID) uint32 {
		if idx, ok := nodeSet[id]; ok {
			return idx
		}
		idx := uint32(len(nodeIDs))
		nodeSet[id] = idx
		nodeIDs = append(nodeIDs, id)
		return idx
	}

	for i := range edges {
		addNode(edges[i].FromNodeID)
		addNode(edges[i].ToNodeID)
	}

	numNodes := uint32(len(nodeIDs))

	// Step 2: Mirror each segment into two flagged half-edges.
	type compactEdge struct {
		from      uint32
		to        uint32
		weight    EdgeWeight
		duration  EdgeDuration
		flags     uint8
		shapeLats []float64
		shapeLons []float64
	}

	reverse := func(s []float64) []float64 {
		if len(s) == 0 {
			return nil
		}
		r := make([]float64, len(s))
		for i, v := range s {
			r[len(s)-1-i] = v
		}
		return r
	}

	compact := make([]compactEdge, 0, 2*len(edges))
	for _, e := range edges {
		from := nodeSet[e.FromNodeID]
		to := nodeSet[e.ToNodeID]

		var flags, mirrored uint8
		if e.Forward {
			flags |= FlagForward
			mirrored |= FlagBackward
		}
		if e.Backward {
			flags |= FlagBackward
			mirrored |= FlagForward
		}

		compact = append(compact,
			compactEdge{
				from: from, to: to,
				weight: e.Weight, duration: e.Duration, flags: flags,
				shapeLats: e.ShapeLats, shapeLons: e.ShapeLons,
			},
			compactEdge{
				from: to, to: from,
				weight: e.Weight, duration: e.Duration, flags: mirrored,
				shapeLats: reverse(e.ShapeLats), shapeLons: reverse(e.ShapeLons),
			})
	}

	// Step 3: Sort edges by source node.
	sort.Slice(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	// Step 4: Build CSR arrays.
	numEdges := uint32(len(compact))
	firstOut := make([]uint32, numNodes+1)
	head := make([]NodeID, numEdges)
	weight := make([]EdgeWeight, numEdges)
	duration := make([]EdgeDuration, numEdges)
	flags := make([]uint8, numEdges)

	geoFirstOut := make([]uint32, numEdges+1)
	var geoShapeLat, geoShapeLon []float64

	for i, e := range compact {
		head[i] = e.to
		weight[i] = e.weight
		duration[i] = e.duration
		flags[i] = e.flags
		geoFirstOut[i] = uint32(len(geoShapeLat))
		geoShapeLat = append(geoShapeLat, e.shapeLats...)
		geoShapeLon = append(geoShapeLon, e.shapeLons...)
	}
	geoFirstOut[numEdges] = uint32(len(geoShapeLat))

	for _, e := range compact {
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	// Step 5: Populate node coordinates.
	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	for id, idx := range nodeSet {
		nodeLat[idx] = result.NodeLat[id]
		nodeLon[idx] = result.NodeLon[id]
	}

	return &Graph{
		NumNodes:    numNodes,
		NumEdges:    numEdges,
		FirstOut:    firstOut,
		Head:        head,
		Weight:      weight,
		Duration:    duration,
		Flags:       flags,
		NodeLat:     nodeLat,
		NodeLon:     nodeLon,
		GeoFirstOut: geoFirstOut,
		GeoShapeLat: geoShapeLat,
		GeoShapeLon: geoShapeLon,
	}
}
