package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"
	"sync"

	"table_router/pkg/graph"
	"table_router/pkg/routing"
)

// maxTableLocations bounds the number of coordinates per table request.
const maxTableLocations = 100

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	router  routing.Router
	snapper *routing.Snapper
	facade  routing.Facade
	stats   StatsResponse
	wdPool  sync.Pool
}

// NewHandlers creates handlers with the given router, snapper and table
// query facade.
func NewHandlers(router routing.Router, snapper *routing.Snapper, facade routing.Facade, stats StatsResponse) *Handlers {
	return &Handlers{
		router:  router,
		snapper: snapper,
		facade:  facade,
		stats:   stats,
		wdPool: sync.Pool{
			New: func() any { return &routing.EngineWorkingData{} },
		},
	}
}

// HandleRoute handles POST /api/v1/route.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var req RouteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	if err := validateCoord(req.Start); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "start")
		return
	}
	if err := validateCoord(req.End); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "end")
		return
	}

	result, err := h.router.Route(r.Context(), routing.LatLng{Lat: req.Start.Lat, Lng: req.Start.Lng}, routing.LatLng{Lat: req.End.Lat, Lng: req.End.Lng})
	if err != nil {
		if errors.Is(err, routing.ErrPointTooFar) {
			writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_road", "")
			return
		}
		if errors.Is(err, routing.ErrNoRoute) {
			writeError(w, http.StatusNotFound, "no_route_found", "")
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	resp := RouteResponse{
		DurationSeconds: result.DurationSeconds,
		DistanceMeters:  result.DistanceMeters,
		Geometry:        make([]LatLngJSON, len(result.Geometry)),
	}
	for i, ll := range result.Geometry {
		resp.Geometry[i] = LatLngJSON{Lat: ll.Lat, Lng: ll.Lng}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleTable handles POST /api/v1/table.
func (h *Handlers) HandleTable(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var req TableRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	if len(req.Coordinates) == 0 || len(req.Coordinates) > maxTableLocations {
		writeError(w, http.StatusBadRequest, "invalid_request", "coordinates")
		return
	}
	for i, c := range req.Coordinates {
		if err := validateCoord(c); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_coordinates", fmt.Sprintf("coordinates[%d]", i))
			return
		}
	}
	numCoords := uint32(len(req.Coordinates))
	for _, s := range req.Sources {
		if s >= numCoords {
			writeError(w, http.StatusBadRequest, "index_out_of_range", "sources")
			return
		}
	}
	for _, d := range req.Destinations {
		if d >= numCoords {
			writeError(w, http.StatusBadRequest, "index_out_of_range", "destinations")
			return
		}
	}

	// Snap every coordinate to a phantom node.
	phantoms := make([]routing.PhantomNode, len(req.Coordinates))
	for i, c := range req.Coordinates {
		snap, err := h.snapper.Snap(c.Lat, c.Lng)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_road", fmt.Sprintf("coordinates[%d]", i))
			return
		}
		phantoms[i] = h.snapper.Phantom(snap)
	}

	wd := h.wdPool.Get().(*routing.EngineWorkingData)
	defer h.wdPool.Put(wd)

	durations := routing.ManyToManySearch(wd, h.facade, phantoms, req.Sources, req.Destinations)

	numSources := len(req.Sources)
	if numSources == 0 {
		numSources = len(req.Coordinates)
	}
	numTargets := len(req.Destinations)
	if numTargets == 0 {
		numTargets = len(req.Coordinates)
	}

	resp := TableResponse{Durations: make([][]*float64, numSources)}
	for row := 0; row < numSources; row++ {
		cells := make([]*float64, numTargets)
		for col := 0; col < numTargets; col++ {
			d := durations[row*numTargets+col]
			if d != graph.MaximalEdgeDuration {
				seconds := float64(d) / 10.0
				cells[col] = &seconds
			}
		}
		resp.Durations[row] = cells
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.stats)
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
