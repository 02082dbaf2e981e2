package track

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/openmocap/mocap/internal/timeutil"
	"github.com/openmocap/mocap/internal/wire"
)

func TestTableUpdateAndSnapshot(t *testing.T) {
	tbl := NewTable(nil)
	tbl.Update("cam-a", []wire.Marker{
		{ID: 7, Pos: [2]float64{100, 200}},
		{ID: 3, Pos: [2]float64{50, 60}},
	})
	tbl.Update("cam-b", []wire.Marker{{ID: 7, Pos: [2]float64{300, 400}}})

	snap := tbl.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d markers, want 2", len(snap))
	}
	if got := snap[7]["cam-a"].Pos; got != [2]float64{100, 200} {
		t.Errorf("marker 7 cam-a = %v", got)
	}
	if got := snap[7]["cam-b"].Pos; got != [2]float64{300, 400} {
		t.Errorf("marker 7 cam-b = %v", got)
	}
	if _, ok := snap[3]["cam-b"]; ok {
		t.Error("cam-b never reported marker 3")
	}
}

func TestTableNewerOverwritesOlder(t *testing.T) {
	tbl := NewTable(nil)
	tbl.Update("cam-a", []wire.Marker{{ID: 1, Pos: [2]float64{1, 1}}})
	tbl.Update("cam-a", []wire.Marker{{ID: 1, Pos: [2]float64{2, 2}}})

	snap := tbl.Snapshot()
	if got := snap[1]["cam-a"].Pos; got != [2]float64{2, 2} {
		t.Errorf("marker 1 = %v, want most recent (2, 2)", got)
	}
	if len(snap[1]) != 1 {
		t.Errorf("marker 1 has %d entries for cam-a, want 1", len(snap[1]))
	}
}

// A node that stops reporting a marker keeps its last known point: absence
// from an update batch clears nothing, and a disconnect clears nothing.
func TestTableStaleTolerance(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	tbl := NewTable(clock)

	tbl.Update("cam-a", []wire.Marker{{ID: 5, Pos: [2]float64{10, 10}}})
	tbl.Update("cam-b", []wire.Marker{{ID: 5, Pos: [2]float64{20, 20}}})

	// cam-b goes quiet; cam-a keeps refreshing marker 5 and reporting others.
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		tbl.Update("cam-a", []wire.Marker{
			{ID: 5, Pos: [2]float64{10 + float64(i), 10}},
			{ID: 6, Pos: [2]float64{1, 2}},
		})
	}

	snap := tbl.Snapshot()
	obs, ok := snap[5]["cam-b"]
	if !ok {
		t.Fatal("cam-b's last observation of marker 5 was dropped")
	}
	if obs.Pos != [2]float64{20, 20} {
		t.Errorf("cam-b marker 5 = %v, want last known (20, 20)", obs.Pos)
	}
	if obs.SeenAt != time.Unix(0, 0) {
		t.Errorf("cam-b marker 5 SeenAt = %v, want original receipt time", obs.SeenAt)
	}
}

func TestTableEmptyBatchIsNoOp(t *testing.T) {
	tbl := NewTable(nil)
	tbl.Update("cam-a", nil)
	tbl.Update("cam-a", []wire.Marker{})
	if n := tbl.MarkerCount(); n != 0 {
		t.Errorf("MarkerCount = %d after empty updates, want 0", n)
	}
}

// Snapshot must never expose a half-applied update batch, and must be
// isolated from writes that happen after it is taken. Run with -race.
func TestTableConcurrentUpdatesAndSnapshots(t *testing.T) {
	tbl := NewTable(nil)
	const writers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			node := fmt.Sprintf("cam-%d", w)
			for i := 0; i < rounds; i++ {
				v := float64(i)
				// Both markers in one batch carry the same value, so any
				// snapshot must see them equal for this node.
				tbl.Update(node, []wire.Marker{
					{ID: 1, Pos: [2]float64{v, v}},
					{ID: 2, Pos: [2]float64{v, v}},
				})
			}
		}(w)
	}

	// Each update batch writes the same value to markers 1 and 2, and the
	// table applies a batch under one lock hold. Any snapshot therefore sees
	// equal values for the two markers per node; an inequality would mean a
	// half-applied batch was visible.
	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		for i := 0; i < rounds; i++ {
			snap := tbl.Snapshot()
			for node, obs1 := range snap[1] {
				if obs2, ok := snap[2][node]; ok && obs1.Pos != obs2.Pos {
					t.Errorf("torn batch visible for %s: %v vs %v", node, obs1.Pos, obs2.Pos)
					return
				}
			}
		}
	}()

	wg.Wait()
	readerWg.Wait()

	snap := tbl.Snapshot()
	if len(snap[1]) != writers || len(snap[2]) != writers {
		t.Errorf("final snapshot has %d/%d nodes, want %d", len(snap[1]), len(snap[2]), writers)
	}
}

func TestTableSnapshotIsolation(t *testing.T) {
	tbl := NewTable(nil)
	tbl.Update("cam-a", []wire.Marker{{ID: 1, Pos: [2]float64{1, 1}}})

	snap := tbl.Snapshot()
	tbl.Update("cam-a", []wire.Marker{{ID: 1, Pos: [2]float64{9, 9}}})

	if got := snap[1]["cam-a"].Pos; got != [2]float64{1, 1} {
		t.Errorf("snapshot mutated by later update: %v", got)
	}

	// Mutating the snapshot must not leak back into the table.
	snap[1]["cam-a"] = Observation{Pos: [2]float64{-1, -1}}
	if got := tbl.Snapshot()[1]["cam-a"].Pos; got != [2]float64{9, 9} {
		t.Errorf("table mutated through snapshot: %v", got)
	}
}
