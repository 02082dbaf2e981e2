package track

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/openmocap/mocap/internal/calib"
	"github.com/openmocap/mocap/internal/monitoring"
	"github.com/openmocap/mocap/internal/timeutil"
)

// ErrInsufficientCalibration is returned by Start when fewer than two nodes
// carry usable calibration. The coordinator stays up in 2D-only mode; this
// error is surfaced as status text, not a crash.
var ErrInsufficientCalibration = errors.New("fewer than two calibrated nodes, triangulation unavailable")

// DefaultInterval is the triangulation cadence when none is configured.
const DefaultInterval = 100 * time.Millisecond

// Result is one cycle's 3D estimate for a marker. The result set is replaced
// wholesale every cycle and never persisted by the engine itself; attach a
// ResultSink for history.
type Result struct {
	MarkerID int     `json:"marker_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Views    int     `json:"views"`
}

// ResultSink receives each cycle's results, e.g. for persistence.
type ResultSink interface {
	RecordResults(sessionID string, ts time.Time, results []Result) error
}

// EngineConfig holds construction options for the triangulation engine.
type EngineConfig struct {
	Table    *Table
	Cameras  map[string]calib.Camera
	Interval time.Duration
	Clock    timeutil.Clock
	Sink     ResultSink

	// MaxObservationAge, when positive, excludes observations older than
	// this from a cycle. Zero keeps the availability-over-freshness default:
	// the last known point is used however stale.
	MaxObservationAge time.Duration
}

// Engine periodically drains a snapshot of the observation table and
// triangulates every marker with at least two calibrated views.
type Engine struct {
	table       *Table
	interval    time.Duration
	clock       timeutil.Clock
	sink        ResultSink
	maxAge      time.Duration
	sessionID   string

	// projections caches each calibrated node's P = K·[R|t] so cycles avoid
	// rebuilding matrices per marker.
	projections map[string]*mat.Dense

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	results []Result
}

// NewEngine creates a triangulation engine over the given table and cameras.
func NewEngine(cfg EngineConfig) *Engine {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	projections := make(map[string]*mat.Dense, len(cfg.Cameras))
	for id, cam := range cfg.Cameras {
		projections[id] = cam.Projection()
	}

	return &Engine{
		table:       cfg.Table,
		interval:    interval,
		clock:       clock,
		sink:        cfg.Sink,
		maxAge:      cfg.MaxObservationAge,
		sessionID:   uuid.NewString(),
		projections: projections,
	}
}

// SessionID identifies this engine run in logs and persisted rows.
func (e *Engine) SessionID() string { return e.sessionID }

// CalibratedNodes returns how many nodes the engine can use.
func (e *Engine) CalibratedNodes() int { return len(e.projections) }

// Start launches the periodic triangulation loop. Starting an already-running
// engine is a no-op. With fewer than two calibrated nodes the engine declines
// to start and returns ErrInsufficientCalibration.
func (e *Engine) Start(ctx context.Context) error {
	if len(e.projections) < 2 {
		return ErrInsufficientCalibration
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(runCtx)
	monitoring.Logf("triangulation engine %s started (%d calibrated nodes, every %s)",
		e.sessionID, len(e.projections), e.interval)
	return nil
}

// Stop halts the loop and waits for the in-flight cycle to finish. Stopping
// a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	monitoring.Logf("triangulation engine %s stopped", e.sessionID)
}

// Running reports whether the periodic loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Results returns the most recent cycle's result set.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Result, len(e.results))
	copy(out, e.results)
	return out
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			results := e.Cycle(now)
			if e.sink != nil && len(results) > 0 {
				if err := e.sink.RecordResults(e.sessionID, now, results); err != nil {
					monitoring.Logf("record results: %v", err)
				}
			}
		}
	}
}

// Cycle runs one triangulation pass over the current table snapshot and
// replaces the engine's result set. Exported so tests and tools can step the
// engine without the ticker.
func (e *Engine) Cycle(now time.Time) []Result {
	snapshot := e.table.Snapshot()

	results := make([]Result, 0, len(snapshot))
	for markerID, byNode := range snapshot {
		views := make([]View, 0, len(byNode))
		for nodeID, obs := range byNode {
			proj, ok := e.projections[nodeID]
			if !ok {
				continue // node streams 2D but has no calibration
			}
			if e.maxAge > 0 && now.Sub(obs.SeenAt) > e.maxAge {
				continue
			}
			views = append(views, View{Projection: proj, Pixel: obs.Pos})
		}
		if len(views) < 2 {
			continue
		}

		world, err := Triangulate(views)
		if err != nil {
			// Degenerate geometry: omit this marker for the cycle.
			continue
		}
		results = append(results, Result{
			MarkerID: markerID,
			X:        world[0],
			Y:        world[1],
			Z:        world[2],
			Views:    len(views),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].MarkerID < results[j].MarkerID })

	e.mu.Lock()
	e.results = results
	e.mu.Unlock()
	return results
}
