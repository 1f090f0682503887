package routing

import (
	"context"
	"errors"
	"math"

	"table_router/pkg/geo"
	"table_router/pkg/graph"
)

// ErrNoRoute is returned when no route exists between the two points.
var ErrNoRoute = errors.New("no route found")

// LatLng represents a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// RouteResult is the output of a route query.
type RouteResult struct {
	DurationSeconds float64
	DistanceMeters  float64
	Geometry        []LatLng
}

// Router is the interface for route queries.
type Router interface {
	Route(ctx context.Context, start, end LatLng) (*RouteResult, error)
}

// Engine implements Router on the contracted graph.
type Engine struct {
	cg      *graph.ContractedGraph
	base    *graph.Graph // for geometry and snapping
	snapper *Snapper
}

// NewEngine creates a routing engine from the contracted graph and the base
// graph.
func NewEngine(cg *graph.ContractedGraph, base *graph.Graph) *Engine {
	return &Engine{
		cg:      cg,
		base:    base,
		snapper: NewSnapper(base),
	}
}

// Snapper returns the engine's shared snapping index.
func (e *Engine) Snapper() *Snapper { return e.snapper }

// Route computes the shortest path between two points.
func (e *Engine) Route(ctx context.Context, start, end LatLng) (*RouteResult, error) {
	// Step 1: Snap points to nearest road segments.
	startSnap, err := e.snapper.Snap(start.Lat, start.Lng)
	if err != nil {
		return nil, err
	}
	endSnap, err := e.snapper.Snap(end.Lat, end.Lng)
	if err != nil {
		return nil, err
	}

	// Step 2: Run bidirectional upward Dijkstra with predecessor tracking.
	qs := NewQueryState(e.cg.NumNodes)
	defer qs.Reset()

	fwdPred := make(map[graph.NodeID]graph.NodeID)
	bwdPred := make(map[graph.NodeID]graph.NodeID)

	seedForward(qs, e.base, startSnap)
	seedBackward(qs, e.base, endSnap)

	mu, meetNode := e.runSearch(ctx, qs, fwdPred, bwdPred)

	if meetNode == noNode || mu == math.MaxUint32 {
		return nil, ErrNoRoute
	}

	// Step 3: Reconstruct overlay node path.
	overlayNodes := e.reconstructOverlayPath(meetNode, fwdPred, bwdPred)

	// Step 4: Unpack shortcuts into original node sequence.
	origNodes := unpackOverlayPath(e.cg, overlayNodes)

	// Step 5: Build geometry from original node sequence.
	geometry := e.buildGeometry(origNodes)

	var distMeters float64
	for i := 0; i < len(geometry)-1; i++ {
		distMeters += distBetween(geometry[i], geometry[i+1])
	}

	return &RouteResult{
		DurationSeconds: float64(mu) / 10.0,
		DistanceMeters:  distMeters,
		Geometry:        geometry,
	}, nil
}

// reconstructOverlayPath builds the full overlay node path from
// source seed -> meetNode -> target seed.
func (e *Engine) reconstructOverlayPath(meetNode graph.NodeID, fwdPred, bwdPred map[graph.NodeID]graph.NodeID) []graph.NodeID {
	// Forward path: trace meetNode back to the source seed, then reverse.
	var fwdPath []graph.NodeID
	node := meetNode
	for {
		fwdPath = append(fwdPath, node)
		pred, ok := fwdPred[node]
		if !ok {
			break
		}
		node = pred
	}
	for i, j := 0, len(fwdPath)-1; i < j; i, j = i+1, j-1 {
		fwdPath[i], fwdPath[j] = fwdPath[j], fwdPath[i]
	}

	// Backward path: meetNode onward to the target seed.
	node = meetNode
	for {
		pred, ok := bwdPred[node]
		if !ok {
			break
		}
		fwdPath = append(fwdPath, pred)
		node = pred
	}

	return fwdPath
}

// buildGeometry converts a sequence of base graph node IDs into lat/lng
// coordinates, including intermediate shape points from edge geometry.
func (e *Engine) buildGeometry(nodes []graph.NodeID) []LatLng {
	if len(nodes) == 0 {
		return nil
	}

	g := e.base
	var geom []LatLng

	geom = append(geom, LatLng{Lat: g.NodeLat[nodes[0]], Lng: g.NodeLon[nodes[0]]})

	for i := 0; i < len(nodes)-1; i++ {
		u := nodes[i]
		v := nodes[i+1]

		if g.GeoFirstOut != nil {
			edgeIdx := findBaseEdge(g, u, v)
			if edgeIdx != noNode {
				geoStart := g.GeoFirstOut[edgeIdx]
				geoEnd := g.GeoFirstOut[edgeIdx+1]
				for k := geoStart; k < geoEnd; k++ {
					geom = append(geom, LatLng{
						Lat: g.GeoShapeLat[k],
						Lng: g.GeoShapeLon[k],
					})
				}
			}
		}

		geom = append(geom, LatLng{Lat: g.NodeLat[v], Lng: g.NodeLon[v]})
	}

	return geom
}

// findBaseEdge finds a forward-traversable stored edge u -> v.
func findBaseEdge(g *graph.Graph, u, v graph.NodeID) graph.EdgeID {
	start, end := g.EdgesFrom(u)
	for e := start; e < end; e++ {
		if g.Head[e] == v && g.Flags[e]&graph.FlagForward != 0 {
			return e
		}
	}
	return noNode
}

// seedForward seeds the forward PQ from the start snap point. Costs are the
// exact remainders to the segment endpoints in drivable directions.
func seedForward(qs *QueryState, g *graph.Graph, snap SnapResult) {
	weight := float64(g.Weight[snap.EdgeIdx])
	flags := g.Flags[snap.EdgeIdx]

	if flags&graph.FlagForward != 0 {
		dv := uint32(math.Round(weight * (1 - snap.Ratio)))
		qs.touchFwd(snap.NodeV, dv)
		qs.FwdPQ.Push(snap.NodeV, dv)
	}
	if flags&graph.FlagBackward != 0 {
		du := uint32(math.Round(weight * snap.Ratio))
		if qs.DistFwd[snap.NodeU] > du {
			qs.touchFwd(snap.NodeU, du)
			qs.FwdPQ.Push(snap.NodeU, du)
		}
	}
}

// seedBackward seeds the backward PQ from the end snap point.
func seedBackward(qs *QueryState, g *graph.Graph, snap SnapResult) {
	weight := float64(g.Weight[snap.EdgeIdx])
	flags := g.Flags[snap.EdgeIdx]

	if flags&graph.FlagForward != 0 {
		du := uint32(math.Round(weight * snap.Ratio))
		qs.touchBwd(snap.NodeU, du)
		qs.BwdPQ.Push(snap.NodeU, du)
	}
	if flags&graph.FlagBackward != 0 {
		dv := uint32(math.Round(weight * (1 - snap.Ratio)))
		if qs.DistBwd[snap.NodeV] > dv {
			qs.touchBwd(snap.NodeV, dv)
			qs.BwdPQ.Push(snap.NodeV, dv)
		}
	}
}

// runSearch runs bidirectional upward Dijkstra with predecessor tracking.
func (e *Engine) runSearch(ctx context.Context, qs *QueryState, fwdPred, bwdPred map[graph.NodeID]graph.NodeID) (uint32, graph.NodeID) {
	mu := uint32(math.MaxUint32)
	meetNode := noNode

	iterations := 0

	for qs.FwdPQ.Len() > 0 || qs.BwdPQ.Len() > 0 {
		// Check context cancellation periodically.
		iterations++
		if iterations%100 == 0 {
			if ctx.Err() != nil {
				return mu, meetNode
			}
		}

		// Forward step.
		if qs.FwdPQ.Len() > 0 && qs.FwdPQ.PeekDist() < mu {
			item := qs.FwdPQ.Pop()
			u := item.Node
			d := item.Dist

			if d > qs.DistFwd[u] {
				goto backward // stale entry
			}

			// Check meet condition.
			if qs.DistBwd[u] < math.MaxUint32 {
				candidate := d + qs.DistBwd[u]
				if candidate < mu {
					mu = candidate
					meetNode = u
				}
			}

			// Relax forward upward edges.
			{
				start, end := e.cg.AdjacentEdges(u)
				for ei := start; ei < end; ei++ {
					if e.cg.Flags[ei]&graph.FlagForward == 0 {
						continue
					}
					v := e.cg.Head[ei]
					newDist := d + uint32(e.cg.Weight[ei])
					if newDist < qs.DistFwd[v] {
						qs.touchFwd(v, newDist)
						qs.FwdPQ.Push(v, newDist)
						fwdPred[v] = u
					}
				}
			}
		}

	backward:
		// Backward step.
		if qs.BwdPQ.Len() > 0 && qs.BwdPQ.PeekDist() < mu {
			item := qs.BwdPQ.Pop()
			u := item.Node
			d := item.Dist

			if d > qs.DistBwd[u] {
				continue // stale entry
			}

			// Check meet condition.
			if qs.DistFwd[u] < math.MaxUint32 {
				candidate := qs.DistFwd[u] + d
				if candidate < mu {
					mu = candidate
					meetNode = u
				}
			}

			// Relax backward upward edges.
			start, end := e.cg.AdjacentEdges(u)
			for ei := start; ei < end; ei++ {
				if e.cg.Flags[ei]&graph.FlagBackward == 0 {
					continue
				}
				v := e.cg.Head[ei]
				newDist := d + uint32(e.cg.Weight[ei])
				if newDist < qs.DistBwd[v] {
					qs.touchBwd(v, newDist)
					qs.BwdPQ.Push(v, newDist)
					bwdPred[v] = u
				}
			}
		}

		// Termination check.
		if qs.FwdPQ.PeekDist() >= mu && qs.BwdPQ.PeekDist() >= mu {
			break
		}
	}

	return mu, meetNode
}

// distBetween computes the distance in meters between two LatLng points.
func distBetween(a, b LatLng) float64 {
	return geo.Distance(a.Lat, a.Lng, b.Lat, b.Lng)
}
