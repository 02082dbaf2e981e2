package api

import (
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/openmocap/mocap/internal/monitoring"
)

// handleTrajectory renders a quick 3D scatter (HTML) of recent persisted
// marker positions using go-echarts. Debugging endpoint; no auth.
// Query params:
//   - marker (optional; default all markers)
//   - limit (optional; default 2000 points, capped at 20000)
func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "track history persistence is disabled")
		return
	}

	markerID := parseQueryInt(r, "marker", -1)
	limit := parseQueryInt(r, "limit", 2000)
	if limit <= 0 || limit > 20000 {
		limit = 2000
	}

	recs, err := s.store.RecentPositions(markerID, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("query track history: %v", err))
		return
	}
	if len(recs) == 0 {
		writeJSONError(w, http.StatusNotFound, "no persisted positions")
		return
	}

	// One series per marker so trajectories are visually separable.
	byMarker := make(map[int][]opts.Chart3DData)
	for _, rec := range recs {
		byMarker[rec.MarkerID] = append(byMarker[rec.MarkerID], opts.Chart3DData{
			Value: []interface{}{rec.X, rec.Y, rec.Z},
		})
	}

	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Marker trajectories (world frame, cm)",
			Subtitle: fmt.Sprintf("%d points", len(recs)),
		}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "800px"}),
	)
	for id, data := range byMarker {
		scatter.AddSeries(fmt.Sprintf("marker %d", id), data)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := scatter.Render(w); err != nil {
		// Headers are already out; the failure can only be logged.
		monitoring.Logf("render trajectory chart: %v", err)
	}
}
