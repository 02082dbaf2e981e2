// Package api serves the coordinator's HTTP status surface: node states, the
// live 2D table, current 3D positions, and a trajectory debug page.
//
// The surface stays useful in degraded mode: 2D data from connected nodes is
// served even when triangulation is unavailable.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/openmocap/mocap/internal/monitoring"
	"github.com/openmocap/mocap/internal/registry"
	"github.com/openmocap/mocap/internal/track"
)

// EngineReader is the read-only slice of the engine the server needs.
type EngineReader interface {
	Results() []track.Result
	Running() bool
	CalibratedNodes() int
}

// Server exposes coordinator state over HTTP.
type Server struct {
	reg    *registry.Registry
	table  *track.Table
	engine EngineReader
	store  *track.Store // nil when persistence is disabled
}

// NewServer wires the HTTP surface. store may be nil.
func NewServer(reg *registry.Registry, table *track.Table, engine EngineReader, store *track.Store) *Server {
	return &Server{reg: reg, table: table, engine: engine, store: store}
}

// Routes attaches all handlers to mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/nodes", s.handleNodes)
	mux.HandleFunc("/api/markers", s.handleMarkers)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/debug/trajectory", s.handleTrajectory)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("write JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.reg.Status())
}

// markerView flattens the 2D table for display.
type markerView struct {
	MarkerID int                   `json:"marker_id"`
	ByNode   map[string][2]float64 `json:"by_node"`
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := s.table.Snapshot()
	out := make([]markerView, 0, len(snap))
	for id, byNode := range snap {
		mv := markerView{MarkerID: id, ByNode: make(map[string][2]float64, len(byNode))}
		for node, obs := range byNode {
			mv.ByNode[node] = obs.Pos
		}
		out = append(out, mv)
	}
	writeJSON(w, http.StatusOK, out)
}

type positionsResponse struct {
	TriangulationRunning bool           `json:"triangulation_running"`
	CalibratedNodes      int            `json:"calibrated_nodes"`
	Positions            []track.Result `json:"positions"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, positionsResponse{
		TriangulationRunning: s.engine.Running(),
		CalibratedNodes:      s.engine.CalibratedNodes(),
		Positions:            s.engine.Results(),
	})
}

// parseQueryInt reads an integer query parameter with a default.
func parseQueryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
