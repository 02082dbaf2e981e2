// Package coordinator implements the operator-facing control loop that
// drives streaming across nodes and the triangulation engine's lifecycle.
package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/openmocap/mocap/internal/registry"
	"github.com/openmocap/mocap/internal/track"
	"github.com/openmocap/mocap/internal/wire"
)

// Mode is the control loop's streaming state.
type Mode string

const (
	ModeIdle      Mode = "Idle"
	ModeStreaming Mode = "Streaming"
)

// EngineController is the slice of the triangulation engine the control loop
// drives. *track.Engine satisfies it.
type EngineController interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	CalibratedNodes() int
}

// Coordinator owns process-wide lifecycle: node connections established at
// startup, the streaming mode, and engine start/stop.
type Coordinator struct {
	reg    *registry.Registry
	engine EngineController

	mu   sync.Mutex
	mode Mode
}

// New creates a Coordinator in Idle mode.
func New(reg *registry.Registry, engine EngineController) *Coordinator {
	return &Coordinator{reg: reg, engine: engine, mode: ModeIdle}
}

// Mode returns the current streaming mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Stream broadcasts start_stream and ensures the engine is running
// (idempotently). The mode transitions to Streaming even when triangulation
// is unavailable: 2D capture is useful on its own, so insufficient
// calibration is reported as degraded capability, not refused.
func (c *Coordinator) Stream(ctx context.Context) (reached int, err error) {
	reached = c.reg.Broadcast(wire.CmdStartStream)

	engineErr := c.engine.Start(ctx)
	if engineErr != nil && !errors.Is(engineErr, track.ErrInsufficientCalibration) {
		return reached, fmt.Errorf("start engine: %w", engineErr)
	}

	c.mu.Lock()
	c.mode = ModeStreaming
	c.mu.Unlock()

	if errors.Is(engineErr, track.ErrInsufficientCalibration) {
		return reached, engineErr
	}
	return reached, nil
}

// StopStreaming broadcasts stop_stream and transitions to Idle. The engine
// keeps running; it simply produces nothing as its input goes stale.
func (c *Coordinator) StopStreaming() int {
	reached := c.reg.Broadcast(wire.CmdStopStream)
	c.mu.Lock()
	c.mode = ModeIdle
	c.mu.Unlock()
	return reached
}

// Shutdown disconnects every node and stops the engine. Safe to call with
// any subset of nodes connected, and more than once.
func (c *Coordinator) Shutdown() {
	c.reg.DisconnectAll()
	c.engine.Stop()
	c.mu.Lock()
	c.mode = ModeIdle
	c.mu.Unlock()
}

// Connect re-dials one node, or every node when id is empty. Reconnection is
// always an explicit operator action; nothing retries in the background.
func (c *Coordinator) Connect(ctx context.Context, id string) (int, error) {
	if id == "" {
		return c.reg.ConnectAll(ctx), nil
	}
	if err := c.reg.Connect(ctx, id); err != nil {
		return c.reg.ConnectedCount(), err
	}
	return c.reg.ConnectedCount(), nil
}

// Status summarises node states and engine capability as display text.
func (c *Coordinator) Status() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\n", c.Mode())
	fmt.Fprintf(&b, "nodes connected: %d/%d\n", c.reg.ConnectedCount(), len(c.reg.NodeIDs()))
	if n := c.engine.CalibratedNodes(); n < 2 {
		fmt.Fprintf(&b, "triangulation: unavailable (%d calibrated nodes, need 2)\n", n)
	} else if c.engine.Running() {
		fmt.Fprintf(&b, "triangulation: running (%d calibrated nodes)\n", n)
	} else {
		fmt.Fprintf(&b, "triangulation: stopped (%d calibrated nodes)\n", n)
	}
	for _, s := range c.reg.Status() {
		calib := ""
		if !s.Calibrated {
			calib = " (no calibration)"
		}
		fmt.Fprintf(&b, "  - %s [%s]: %s%s\n", s.ID, s.Addr, s.State, calib)
	}
	return b.String()
}

// Run drives the interactive command loop until quit, EOF, or context
// cancellation. Unrecognised input reports an error and re-prompts.
func (c *Coordinator) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	// Reads happen on a separate goroutine so a signal can interrupt the
	// loop while it is blocked waiting for input.
	lines := make(chan string)
	scan := bufio.NewScanner(in)
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "\ncommands: stream | stop | status | connect [node] | quit\n> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			c.Shutdown()
			return ctx.Err()
		case line, ok = <-lines:
			if !ok {
				// EOF: shut down cleanly, same as quit.
				c.Shutdown()
				return scan.Err()
			}
		}

		fields := strings.Fields(line)
		cmd, arg := "", ""
		if len(fields) > 0 {
			cmd = strings.ToLower(fields[0])
		}
		if len(fields) > 1 {
			arg = fields[1]
		}

		switch cmd {
		case "":
			// re-prompt

		case "connect":
			connected, err := c.Connect(ctx, arg)
			if err != nil {
				fmt.Fprintf(out, "connect failed: %v\n", err)
			}
			fmt.Fprintf(out, "%d node(s) connected\n", connected)

		case "stream":
			reached, err := c.Stream(ctx)
			fmt.Fprintf(out, "broadcast %s to %d node(s)\n", wire.CmdStartStream, reached)
			if err != nil {
				fmt.Fprintf(out, "3D fusion degraded: %v\n", err)
			}

		case "stop":
			reached := c.StopStreaming()
			fmt.Fprintf(out, "broadcast %s to %d node(s)\n", wire.CmdStopStream, reached)

		case "status":
			fmt.Fprint(out, c.Status())

		case "pnp":
			// Reserved on the wire; nodes acknowledge but the coordinator
			// does not yet drive pose calibration remotely.
			fmt.Fprintln(out, "pnp is not implemented; run pose calibration on the node")

		case "quit":
			c.Shutdown()
			fmt.Fprintln(out, "all nodes disconnected")
			return nil

		default:
			fmt.Fprintf(out, "invalid command %q\n", cmd)
		}
	}
}
