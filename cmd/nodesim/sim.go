package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/openmocap/mocap/internal/calib"
	"github.com/openmocap/mocap/internal/monitoring"
	"github.com/openmocap/mocap/internal/wire"
)

// Simulator emulates a camera node: it accepts coordinator connections,
// honours start_stream/stop_stream, and emits marker detections at a fixed
// frame rate. Marker paths are circular orbits in world space; with a
// calibrated camera the paths are projected through it, so two simulators
// sharing a world and calibration produce geometrically consistent views.
type Simulator struct {
	markers int
	rate    time.Duration
	camera  *calib.Camera // nil emits world x/y directly as pixels
	start   time.Time
}

func NewSimulator(markers int, rate time.Duration, camera *calib.Camera) *Simulator {
	return &Simulator{
		markers: markers,
		rate:    rate,
		camera:  camera,
		start:   time.Now(),
	}
}

// worldPos places marker id on a slow circular orbit. Orbits are spread in
// radius and phase so markers stay distinguishable, hovering near the
// z=0 plane around the world origin.
func worldPos(id int, elapsed time.Duration) [3]float64 {
	t := elapsed.Seconds()
	radius := 20.0 + 3.0*float64(id)
	phase := 2 * math.Pi * float64(id) / 7.0
	return [3]float64{
		radius * math.Cos(0.5*t+phase),
		radius * math.Sin(0.5*t+phase),
		5.0 * math.Sin(0.3*t+phase),
	}
}

// Frame renders the marker set visible at the given elapsed time. Markers
// outside the camera's view are omitted, so a frame may be empty.
func (s *Simulator) Frame(elapsed time.Duration) []wire.Marker {
	out := make([]wire.Marker, 0, s.markers)
	for id := 0; id < s.markers; id++ {
		world := worldPos(id, elapsed)
		if s.camera == nil {
			out = append(out, wire.Marker{ID: id, Pos: [2]float64{world[0], world[1]}})
			continue
		}
		pixel, ok := s.camera.Project(world)
		if !ok {
			continue
		}
		out = append(out, wire.Marker{ID: id, Pos: pixel})
	}
	return out
}

// Serve accepts connections until the listener closes or ctx is cancelled.
// Each connection gets its own streaming state, matching a real node that
// serves one coordinator at a time but tolerates reconnects.
func (s *Simulator) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		monitoring.Logf("coordinator connected from %s", conn.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Simulator) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	commands := make(chan string)
	go func() {
		defer close(commands)
		scan := bufio.NewScanner(conn)
		for scan.Scan() {
			select {
			case commands <- strings.TrimSpace(scan.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()

	streaming := false
	for {
		select {
		case <-ctx.Done():
			return

		case cmd, ok := <-commands:
			if !ok {
				monitoring.Logf("coordinator %s disconnected", conn.RemoteAddr())
				return
			}
			switch cmd {
			case wire.CmdStartStream:
				streaming = true
			case wire.CmdStopStream:
				streaming = false
			case "":
				// ignore blank lines
			default:
				monitoring.Logf("ignoring unknown command %q", cmd)
			}

		case now := <-ticker.C:
			if !streaming {
				continue
			}
			line, err := wire.EncodeDataLine(s.Frame(now.Sub(s.start)))
			if err != nil {
				monitoring.Logf("encode frame: %v", err)
				continue
			}
			if _, err := conn.Write(line); err != nil {
				monitoring.Logf("write to %s: %v", conn.RemoteAddr(), err)
				return
			}
		}
	}
}
