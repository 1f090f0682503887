package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/osm"

	"table_router/pkg/ch"
	"table_router/pkg/graph"
	osmparser "table_router/pkg/osm"
	"table_router/pkg/routing"
)

// mockRouter implements routing.Router for testing.
type mockRouter struct {
	result *routing.RouteResult
	err    error
}

func (m *mockRouter) Route(ctx context.Context, start, end routing.LatLng) (*routing.RouteResult, error) {
	return m.result, m.err
}

// testHandlers builds handlers over a two-node road so table requests can
// snap for real. Route requests go through the mock.
func testHandlers(t *testing.T, router routing.Router) *Handlers {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 100, Duration: 100, Forward: true, Backward: true},
		},
		NodeLat: map[osm.NodeID]float64{1: 1.300, 2: 1.301},
		NodeLon: map[osm.NodeID]float64{1: 103.800, 2: 103.801},
	}
	g := graph.Build(result)
	cg := ch.Contract(g)
	snapper := routing.NewSnapper(g)
	return NewHandlers(router, snapper, cg, StatsResponse{NumNodes: g.NumNodes})
}

func TestHandleRoute_Success(t *testing.T) {
	mock := &mockRouter{
		result: &routing.RouteResult{
			DurationSeconds: 42.5,
			DistanceMeters:  1234.5,
			Geometry: []routing.LatLng{
				{Lat: 1.3, Lng: 103.8},
				{Lat: 1.35, Lng: 103.85},
			},
		},
	}
	h := testHandlers(t, mock)

	body := `{"start":{"lat":1.3,"lng":103.8},"end":{"lat":1.35,"lng":103.85}}`
	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleRoute(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}

	var resp RouteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DistanceMeters != 1234.5 {
		t.Errorf("DistanceMeters = %f, want 1234.5", resp.DistanceMeters)
	}
	if resp.DurationSeconds != 42.5 {
		t.Errorf("DurationSeconds = %f, want 42.5", resp.DurationSeconds)
	}
	if len(resp.Geometry) != 2 {
		t.Errorf("Geometry length = %d, want 2", len(resp.Geometry))
	}
}

func TestHandleRoute_InvalidJSON(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleRoute(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRoute_MissingContentType(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	body := `{"start":{"lat":1.3,"lng":103.8},"end":{"lat":1.35,"lng":103.85}}`
	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleRoute(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRoute_OutOfBounds(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	// Latitude out of valid range (-90 to 90).
	body := `{"start":{"lat":91.0,"lng":103.8},"end":{"lat":1.35,"lng":103.85}}`
	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleRoute(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleRoute_NoRoute(t *testing.T) {
	h := testHandlers(t, &mockRouter{err: routing.ErrNoRoute})

	body := `{"start":{"lat":1.3,"lng":103.8},"end":{"lat":1.35,"lng":103.85}}`
	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleRoute(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleRoute_PointTooFar(t *testing.T) {
	h := testHandlers(t, &mockRouter{err: routing.ErrPointTooFar})

	body := `{"start":{"lat":1.3,"lng":103.8},"end":{"lat":1.35,"lng":103.85}}`
	req := httptest.NewRequest("POST", "/api/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleRoute(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestHandleTable_Success(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	body := `{"coordinates":[{"lat":1.300,"lng":103.800},{"lat":1.301,"lng":103.801}]}`
	req := httptest.NewRequest("POST", "/api/v1/table", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleTable(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}

	var resp TableResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Durations) != 2 || len(resp.Durations[0]) != 2 {
		t.Fatalf("matrix shape %dx%d, want 2x2", len(resp.Durations), len(resp.Durations[0]))
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			cell := resp.Durations[i][j]
			if cell == nil {
				t.Fatalf("Durations[%d][%d] is null, want a value", i, j)
			}
			if i == j && *cell != 0 {
				t.Errorf("Durations[%d][%d] = %f, want 0", i, j, *cell)
			}
			if i != j && (*cell <= 0 || *cell > 60) {
				t.Errorf("Durations[%d][%d] = %f, want within (0, 60]", i, j, *cell)
			}
		}
	}
}

func TestHandleTable_SubsetIndices(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	body := `{"coordinates":[{"lat":1.300,"lng":103.800},{"lat":1.301,"lng":103.801}],"sources":[0],"destinations":[0,1]}`
	req := httptest.NewRequest("POST", "/api/v1/table", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleTable(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", w.Code, w.Body.String())
	}

	var resp TableResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Durations) != 1 || len(resp.Durations[0]) != 2 {
		t.Fatalf("matrix shape %dx%d, want 1x2", len(resp.Durations), len(resp.Durations[0]))
	}
}

func TestHandleTable_IndexOutOfRange(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	body := `{"coordinates":[{"lat":1.300,"lng":103.800}],"sources":[1]}`
	req := httptest.NewRequest("POST", "/api/v1/table", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleTable(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Field != "sources" {
		t.Errorf("Field = %q, want 'sources'", resp.Field)
	}
}

func TestHandleTable_NoCoordinates(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	body := `{"coordinates":[]}`
	req := httptest.NewRequest("POST", "/api/v1/table", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleTable(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleTable_SnapFailure(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	// Middle of the ocean, far from the two-node road.
	body := `{"coordinates":[{"lat":1.300,"lng":103.800},{"lat":-40.0,"lng":-140.0}]}`
	req := httptest.NewRequest("POST", "/api/v1/table", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleTable(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}

	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Field != "coordinates[1]" {
		t.Errorf("Field = %q, want 'coordinates[1]'", resp.Field)
	}
}

func TestHandleHealth(t *testing.T) {
	h := testHandlers(t, &mockRouter{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()

	h.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want 'ok'", resp.Status)
	}
}

func TestHandleStats(t *testing.T) {
	stats := StatsResponse{NumNodes: 500000, NumBaseEdges: 1000000, NumOverlayEdges: 900000, Algorithm: "ch"}
	h := NewHandlers(&mockRouter{}, nil, nil, stats)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	w := httptest.NewRecorder()

	h.HandleStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	var resp StatsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.NumNodes != 500000 {
		t.Errorf("NumNodes = %d, want 500000", resp.NumNodes)
	}
	if resp.Algorithm != "ch" {
		t.Errorf("Algorithm = %q, want ch", resp.Algorithm)
	}
}
