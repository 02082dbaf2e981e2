// Command nodesim emulates a camera node for end-to-end testing without
// hardware. It listens on the node port, honours start_stream and
// stop_stream, and emits synthetic marker detections as JSON lines.
//
// Run one simulator per camera, each with the node's own pose file, and the
// coordinator will triangulate consistent 3D orbits:
//
//	go run ./cmd/nodesim -listen :65432 -calib-dir ./calib -node cam-a
//
// Flags:
//
//	-listen      Listen address (default :65432)
//	-markers     Size of the simulated marker set (default 50)
//	-rate        Frame interval (default 33ms, roughly 30 fps)
//	-calib-dir   Calibration directory with intrinsics and pose files
//	-node        Node id used to pick the pose file in -calib-dir
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/openmocap/mocap/internal/calib"
	"github.com/openmocap/mocap/internal/wire"
)

func main() {
	listen := flag.String("listen", ":65432", "Listen address")
	markers := flag.Int("markers", wire.DefaultMarkerSetSize, "Simulated marker set size")
	rate := flag.Duration("rate", 33*time.Millisecond, "Frame interval")
	calibDir := flag.String("calib-dir", "", "Calibration directory (optional)")
	node := flag.String("node", "", "Node id for pose file lookup (requires -calib-dir)")
	flag.Parse()

	var camera *calib.Camera
	if *calibDir != "" {
		if *node == "" {
			log.Fatal("-node is required with -calib-dir")
		}
		cams, err := calib.LoadCameras(*calibDir, "distortion_calibration.json", []string{*node})
		if err != nil {
			log.Fatalf("failed to load calibration: %v", err)
		}
		cam, ok := cams[*node]
		if !ok {
			log.Fatalf("no calibration for node %s in %s", *node, *calibDir)
		}
		camera = &cam
		log.Printf("projecting through calibrated camera %s", *node)
	} else {
		log.Print("no calibration; emitting world x/y as pixels")
	}

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", *listen, err)
	}
	log.Printf("node simulator listening on %s (%d markers, %s frames)", ln.Addr(), *markers, *rate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := NewSimulator(*markers, *rate, camera)
	if err := sim.Serve(ctx, ln); err != nil {
		log.Fatalf("serve: %v", err)
	}
	log.Print("node simulator stopped")
}
