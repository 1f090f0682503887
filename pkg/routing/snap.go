package routing

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"table_router/pkg/geo"
	"table_router/pkg/graph"
)

const maxSnapDistMeters = 500.0

// ErrPointTooFar is returned when the query point is too far from any road.
var ErrPointTooFar = errors.New("point too far from road")

// SnapResult represents a point snapped to a road segment.
type SnapResult struct {
	EdgeIdx graph.EdgeID // index into the base graph's edge arrays
	NodeU   graph.NodeID // tail of the stored edge
	NodeV   graph.NodeID // head of the stored edge
	Ratio   float64      // 0.0 = at NodeU, 1.0 = at NodeV
	Dist    float64      // distance in meters from query point to snapped point
}

type snapEdge struct {
	edgeIdx graph.EdgeID
	source  graph.NodeID
}

// Snapper provides nearest-road snapping backed by an R-tree over segment
// bounding boxes. Each road segment is indexed once through its lower-id
// entry; the mirrored entry carries the same geometry.
type Snapper struct {
	tree rtree.RTreeG[snapEdge]
	g    *graph.Graph
}

// NewSnapper builds the spatial index from the base graph's edges.
func NewSnapper(g *graph.Graph) *Snapper {
	s := &Snapper{g: g}
	for u := graph.NodeID(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			if v <= u {
				continue
			}
			minPt := [2]float64{
				math.Min(g.NodeLon[u], g.NodeLon[v]),
				math.Min(g.NodeLat[u], g.NodeLat[v]),
			}
			maxPt := [2]float64{
				math.Max(g.NodeLon[u], g.NodeLon[v]),
				math.Max(g.NodeLat[u], g.NodeLat[v]),
			}
			s.tree.Insert(minPt, maxPt, snapEdge{edgeIdx: e, source: u})
		}
	}
	return s
}

// Snap finds the nearest road segment to the given lat/lng.
func (s *Snapper) Snap(lat, lng float64) (SnapResult, error) {
	// Search window sized to the snap radius; longitude widens toward the
	// poles.
	dLat := maxSnapDistMeters / 111_000.0
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dLon := dLat / cosLat

	bestDist := math.Inf(1)
	var bestResult SnapResult

	s.tree.Search(
		[2]float64{lng - dLon, lat - dLat},
		[2]float64{lng + dLon, lat + dLat},
		func(_, _ [2]float64, se snapEdge) bool {
			u := se.source
			v := s.g.Head[se.edgeIdx]

			exactDist, ratio := geo.PointToSegmentDist(
				lat, lng,
				s.g.NodeLat[u], s.g.NodeLon[u],
				s.g.NodeLat[v], s.g.NodeLon[v],
			)

			if exactDist < bestDist {
				bestDist = exactDist
				bestResult = SnapResult{
					EdgeIdx: se.edgeIdx,
					NodeU:   u,
					NodeV:   v,
					Ratio:   ratio,
					Dist:    exactDist,
				}
			}
			return true
		})

	if bestDist > maxSnapDistMeters {
		return SnapResult{}, ErrPointTooFar
	}

	return bestResult, nil
}

// Phantom converts a snap result into a phantom node with pre-paid offsets:
// the forward segment is the edge tail carrying the cost already driven from
// it, the reverse segment the edge head carrying the remaining cost. A
// segment is enabled only when its travel direction is drivable.
func (s *Snapper) Phantom(snap SnapResult) PhantomNode {
	g := s.g
	w := float64(g.Weight[snap.EdgeIdx])
	d := float64(g.Duration[snap.EdgeIdx])
	flags := g.Flags[snap.EdgeIdx]

	lat, lon := geo.Interpolate(
		g.NodeLat[snap.NodeU], g.NodeLon[snap.NodeU],
		g.NodeLat[snap.NodeV], g.NodeLon[snap.NodeV],
		snap.Ratio,
	)

	return PhantomNode{
		ForwardSegment: SegmentID{
			ID:      snap.NodeU,
			Enabled: flags&graph.FlagForward != 0,
		},
		ReverseSegment: SegmentID{
			ID:      snap.NodeV,
			Enabled: flags&graph.FlagBackward != 0,
		},
		ForwardWeightOffset:   graph.EdgeWeight(math.Round(w * snap.Ratio)),
		ReverseWeightOffset:   graph.EdgeWeight(math.Round(w * (1 - snap.Ratio))),
		ForwardDurationOffset: graph.EdgeDuration(math.Round(d * snap.Ratio)),
		ReverseDurationOffset: graph.EdgeDuration(math.Round(d * (1 - snap.Ratio))),
		Lat:                   lat,
		Lon:                   lon,
	}
}
