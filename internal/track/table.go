// Package track holds the coordinator's live observation state and the
// triangulation pipeline that turns concurrent 2D sightings into 3D
// positions.
package track

import (
	"sync"
	"time"

	"github.com/openmocap/mocap/internal/timeutil"
	"github.com/openmocap/mocap/internal/wire"
)

// Observation is one node's most recent sighting of a marker: the image-plane
// point and when the coordinator received it.
type Observation struct {
	Pos    [2]float64
	SeenAt time.Time
}

// Table is the live observation table: for each marker, the most recent
// 2D position reported by each node.
//
// Every session goroutine writes its own node's observations concurrently and
// the triangulation engine reads periodic snapshots, so all access is
// serialised by one mutex. The exclusion window covers only an update batch
// or a snapshot copy, never I/O. Entries are never deleted when a node
// disconnects; they simply stop being refreshed.
type Table struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	markers map[int]map[string]Observation
}

// NewTable creates an empty observation table stamping receipt times from
// clock. A nil clock uses real time.
func NewTable(clock timeutil.Clock) *Table {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Table{
		clock:   clock,
		markers: make(map[int]map[string]Observation),
	}
}

// Update overwrites this node's entry for every marker present in the batch.
// Markers absent from the batch are left alone: a node's last sighting
// persists until overwritten.
func (t *Table) Update(nodeID string, markers []wire.Marker) {
	if len(markers) == 0 {
		return
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range markers {
		byNode, ok := t.markers[m.ID]
		if !ok {
			byNode = make(map[string]Observation)
			t.markers[m.ID] = byNode
		}
		byNode[nodeID] = Observation{Pos: m.Pos, SeenAt: now}
	}
}

// Snapshot returns a deep copy of the table, consistent with respect to
// concurrent updates: every (marker, node) entry is either entirely before or
// entirely after any given update batch.
func (t *Table) Snapshot() map[int]map[string]Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[int]map[string]Observation, len(t.markers))
	for id, byNode := range t.markers {
		cp := make(map[string]Observation, len(byNode))
		for node, obs := range byNode {
			cp[node] = obs
		}
		out[id] = cp
	}
	return out
}

// MarkerCount returns the number of markers ever observed.
func (t *Table) MarkerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.markers)
}
