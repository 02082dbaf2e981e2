// Package registry tracks the configured camera nodes and fans commands out
// to their sessions.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/openmocap/mocap/internal/monitoring"
	"github.com/openmocap/mocap/internal/session"
)

// Transport is the per-node session surface the registry drives.
// *session.Session satisfies it; tests substitute fakes.
type Transport interface {
	Connect(ctx context.Context) error
	SendCommand(command string) error
	Disconnect()
	State() session.State
	Addr() string
}

// NodeStatus is one node's state for display.
type NodeStatus struct {
	ID         string        `json:"id"`
	Addr       string        `json:"addr"`
	State      session.State `json:"state"`
	Calibrated bool          `json:"calibrated"`
}

type entry struct {
	id         string
	transport  Transport
	calibrated bool
}

// Registry holds one entry per configured camera node. The node set is fixed
// at startup (no dynamic add/remove) so the map itself needs no locking; all
// mutable state lives inside each session.
type Registry struct {
	order   []string
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Add registers a node. Call only during startup wiring, before any
// concurrent use. Calibrated marks whether the node carries usable
// calibration, for status display.
func (r *Registry) Add(id string, t Transport, calibrated bool) {
	if _, dup := r.entries[id]; dup {
		return
	}
	r.order = append(r.order, id)
	r.entries[id] = &entry{id: id, transport: t, calibrated: calibrated}
}

// Get returns the transport for a node id.
func (r *Registry) Get(id string) (Transport, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.transport, true
}

// NodeIDs returns the configured node ids in registration order.
func (r *Registry) NodeIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Connect dials one node. Reconnection after a drop is an explicit operator
// action; the registry never retries on its own.
func (r *Registry) Connect(ctx context.Context, id string) error {
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("unknown node %q", id)
	}
	return e.transport.Connect(ctx)
}

// ConnectAll dials every node, skipping ones already connected, and returns
// how many are connected afterwards. Individual failures are logged and do
// not abort the rest.
func (r *Registry) ConnectAll(ctx context.Context) int {
	connected := 0
	for _, id := range r.order {
		e := r.entries[id]
		if err := e.transport.Connect(ctx); err != nil {
			monitoring.NodeLogf(id, "connect failed: %v", err)
			continue
		}
		if e.transport.State() == session.StateConnected {
			connected++
		}
	}
	return connected
}

// Broadcast sends the command to every connected node and returns the count
// reached. Disconnected nodes are skipped, not failed; a send that breaks a
// connection mid-broadcast logs and moves on.
func (r *Registry) Broadcast(command string) int {
	reached := 0
	for _, id := range r.order {
		e := r.entries[id]
		if e.transport.State() != session.StateConnected {
			continue
		}
		if err := e.transport.SendCommand(command); err != nil {
			monitoring.NodeLogf(id, "broadcast %q failed: %v", command, err)
			continue
		}
		reached++
	}
	return reached
}

// DisconnectAll tears down every session. Safe to call when only some (or
// none) are connected.
func (r *Registry) DisconnectAll() {
	for _, id := range r.order {
		r.entries[id].transport.Disconnect()
	}
}

// Status returns a snapshot of all nodes' states in registration order.
func (r *Registry) Status() []NodeStatus {
	out := make([]NodeStatus, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		out = append(out, NodeStatus{
			ID:         id,
			Addr:       e.transport.Addr(),
			State:      e.transport.State(),
			Calibrated: e.calibrated,
		})
	}
	return out
}

// ConnectedCount returns how many nodes are currently connected.
func (r *Registry) ConnectedCount() int {
	n := 0
	for _, id := range r.order {
		if r.entries[id].transport.State() == session.StateConnected {
			n++
		}
	}
	return n
}

// CalibratedIDs returns the ids of nodes flagged as calibrated, sorted.
func (r *Registry) CalibratedIDs() []string {
	var out []string
	for id, e := range r.entries {
		if e.calibrated {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
