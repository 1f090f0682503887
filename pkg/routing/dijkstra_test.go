package routing

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/osm"

	"table_router/pkg/ch"
	"table_router/pkg/graph"
	osmparser "table_router/pkg/osm"
)

// buildTestGraphAndCH creates a test graph and its contracted overlay.
//
//	0 ---100--- 1 ---200--- 2
//	|                       |
//	300                    400
//	|                       |
//	3 ---500--- 4 ---600--- 5
//
// All edges bidirectional. Weights in deciseconds.
func buildTestGraphAndCH(t *testing.T) (*graph.Graph, *graph.ContractedGraph) {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 10, ToNodeID: 20, Weight: 100, Duration: 100, Forward: true, Backward: true},
			{FromNodeID: 20, ToNodeID: 30, Weight: 200, Duration: 200, Forward: true, Backward: true},
			{FromNodeID: 10, ToNodeID: 40, Weight: 300, Duration: 300, Forward: true, Backward: true},
			{FromNodeID: 30, ToNodeID: 60, Weight: 400, Duration: 400, Forward: true, Backward: true},
			{FromNodeID: 40, ToNodeID: 50, Weight: 500, Duration: 500, Forward: true, Backward: true},
			{FromNodeID: 50, ToNodeID: 60, Weight: 600, Duration: 600, Forward: true, Backward: true},
		},
		NodeLat: map[osm.NodeID]float64{10: 1.300, 20: 1.300, 30: 1.300, 40: 1.301, 50: 1.301, 60: 1.301},
		NodeLon: map[osm.NodeID]float64{10: 103.800, 20: 103.801, 30: 103.802, 40: 103.800, 50: 103.801, 60: 103.802},
	}
	g := graph.Build(result)
	chg := ch.Contract(g)
	return g, chg
}

func TestSearchCorrectness(t *testing.T) {
	g, chg := buildTestGraphAndCH(t)
	eng := &Engine{cg: chg, base: g}

	for s := graph.NodeID(0); s < g.NumNodes; s++ {
		base := baselineDurations(g, s)
		for d := graph.NodeID(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}

			qs := NewQueryState(chg.NumNodes)
			qs.touchFwd(s, 0)
			qs.FwdPQ.Push(s, 0)
			qs.touchBwd(d, 0)
			qs.BwdPQ.Push(d, 0)

			fwdPred := make(map[graph.NodeID]graph.NodeID)
			bwdPred := make(map[graph.NodeID]graph.NodeID)
			mu, meet := eng.runSearch(context.Background(), qs, fwdPred, bwdPred)

			if mu != uint32(base[d]) {
				t.Errorf("s=%d d=%d: search=%d, Dijkstra=%d", s, d, mu, base[d])
			}
			if meet == noNode {
				t.Errorf("s=%d d=%d: no meet node", s, d)
			}
		}
	}
}

func TestMinHeap(t *testing.T) {
	var h MinHeap

	h.Push(1, 30)
	h.Push(2, 10)
	h.Push(3, 20)

	if h.PeekDist() != 10 {
		t.Errorf("PeekDist = %d, want 10", h.PeekDist())
	}

	item := h.Pop()
	if item.Node != 2 || item.Dist != 10 {
		t.Errorf("Pop = {%d, %d}, want {2, 10}", item.Node, item.Dist)
	}

	item = h.Pop()
	if item.Node != 3 || item.Dist != 20 {
		t.Errorf("Pop = {%d, %d}, want {3, 20}", item.Node, item.Dist)
	}

	item = h.Pop()
	if item.Node != 1 || item.Dist != 30 {
		t.Errorf("Pop = {%d, %d}, want {1, 30}", item.Node, item.Dist)
	}

	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}

	if h.PeekDist() != math.MaxUint32 {
		t.Errorf("PeekDist on empty = %d, want MaxUint32", h.PeekDist())
	}

	h.Push(4, 5)
	h.Reset()
	if h.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", h.Len())
	}
}

func TestQueryStateReset(t *testing.T) {
	qs := NewQueryState(8)
	qs.touchFwd(3, 42)
	qs.touchBwd(3, 7)
	qs.touchFwd(5, 1)
	qs.Reset()

	for i := graph.NodeID(0); i < 8; i++ {
		if qs.DistFwd[i] != math.MaxUint32 || qs.DistBwd[i] != math.MaxUint32 {
			t.Fatalf("node %d not reset: fwd=%d bwd=%d", i, qs.DistFwd[i], qs.DistBwd[i])
		}
	}
	if len(qs.Touched) != 0 {
		t.Errorf("Touched not cleared: %d entries", len(qs.Touched))
	}
}

func BenchmarkRoute(b *testing.B) {
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 10, ToNodeID: 20, Weight: 100, Duration: 100, Forward: true, Backward: true},
			{FromNodeID: 20, ToNodeID: 30, Weight: 200, Duration: 200, Forward: true, Backward: true},
			{FromNodeID: 10, ToNodeID: 40, Weight: 300, Duration: 300, Forward: true, Backward: true},
			{FromNodeID: 30, ToNodeID: 60, Weight: 400, Duration: 400, Forward: true, Backward: true},
			{FromNodeID: 40, ToNodeID: 50, Weight: 500, Duration: 500, Forward: true, Backward: true},
			{FromNodeID: 50, ToNodeID: 60, Weight: 600, Duration: 600, Forward: true, Backward: true},
		},
		NodeLat: map[osm.NodeID]float64{10: 1.300, 20: 1.300, 30: 1.300, 40: 1.301, 50: 1.301, 60: 1.301},
		NodeLon: map[osm.NodeID]float64{10: 103.800, 20: 103.801, 30: 103.802, 40: 103.800, 50: 103.801, 60: 103.802},
	}
	g := graph.Build(result)
	chg := ch.Contract(g)
	eng := NewEngine(chg, g)

	ctx := context.Background()
	start := LatLng{Lat: 1.300, Lng: 103.800}
	end := LatLng{Lat: 1.301, Lng: 103.802}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.Route(ctx, start, end)
	}
}

func TestRouteEndToEnd(t *testing.T) {
	g, chg := buildTestGraphAndCH(t)
	eng := NewEngine(chg, g)

	// Route from near node 0 to near node 5.
	result, err := eng.Route(context.Background(),
		LatLng{Lat: 1.300, Lng: 103.800},
		LatLng{Lat: 1.301, Lng: 103.802},
	)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	if result.DurationSeconds <= 0 {
		t.Errorf("DurationSeconds = %f, want > 0", result.DurationSeconds)
	}
	if result.DistanceMeters <= 0 {
		t.Errorf("DistanceMeters = %f, want > 0", result.DistanceMeters)
	}
	if len(result.Geometry) < 2 {
		t.Errorf("Geometry has %d points, want >= 2", len(result.Geometry))
	}
}
