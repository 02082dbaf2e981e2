package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/openmocap/mocap/internal/wire"
)

func TestFrameWithoutCamera(t *testing.T) {
	sim := NewSimulator(3, 33*time.Millisecond, nil)
	frame := sim.Frame(0)
	if len(frame) != 3 {
		t.Fatalf("len(frame) = %d, want 3", len(frame))
	}
	for i, m := range frame {
		if m.ID != i {
			t.Errorf("frame[%d].ID = %d", i, m.ID)
		}
	}
}

func TestFrameMarkersMove(t *testing.T) {
	sim := NewSimulator(1, 33*time.Millisecond, nil)
	a := sim.Frame(0)
	b := sim.Frame(2 * time.Second)
	if a[0].Pos == b[0].Pos {
		t.Errorf("marker did not move between frames: %v", a[0].Pos)
	}
}

func TestServeStreamLifecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := NewSimulator(2, 5*time.Millisecond, nil)
	done := make(chan error, 1)
	go func() { done <- sim.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", wire.CmdStartStream); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scan := bufio.NewScanner(conn)
	if !scan.Scan() {
		t.Fatalf("no frame received: %v", scan.Err())
	}
	markers, err := wire.ParseDataLine(scan.Bytes(), wire.DefaultMarkerSetSize)
	if err != nil {
		t.Fatalf("frame did not parse: %v", err)
	}
	if len(markers) != 2 {
		t.Errorf("len(markers) = %d, want 2", len(markers))
	}

	if _, err := fmt.Fprintf(conn, "%s\n", wire.CmdStopStream); err != nil {
		t.Fatal(err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve did not stop after cancellation")
	}
}

func TestServeIgnoresUnknownCommands(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := NewSimulator(1, 5*time.Millisecond, nil)
	go sim.Serve(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// An unknown command must not kill the connection or start streaming.
	if _, err := fmt.Fprint(conn, "reboot\nstart_stream\n"); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	scan := bufio.NewScanner(conn)
	if !scan.Scan() {
		t.Fatalf("stream did not start after unknown command: %v", scan.Err())
	}
}
