// Package session manages one TCP connection to one camera node: sending
// commands and feeding the node's streamed observations into a sink.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openmocap/mocap/internal/monitoring"
	"github.com/openmocap/mocap/internal/wire"
)

// State is a session's connection state.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
)

// ErrNotConnected is returned by SendCommand on a session without a live
// connection.
var ErrNotConnected = errors.New("session not connected")

// DefaultDialTimeout bounds how long Connect waits for a node to accept.
const DefaultDialTimeout = 5 * time.Second

// maxLineBytes bounds a single inbound line. A full marker set is well under
// 4KB; anything larger is a misbehaving peer, and the scanner will error out
// rather than buffer without bound.
const maxLineBytes = 64 * 1024

// Sink receives decoded observation batches. *track.Table satisfies this.
type Sink interface {
	Update(nodeID string, markers []wire.Marker)
}

// Config holds construction options for a Session.
type Config struct {
	NodeID      string
	Addr        string // host:port
	Sink        Sink
	DialTimeout time.Duration

	// MarkerSetSize bounds accepted marker ids to [0, MarkerSetSize);
	// 0 disables the bound.
	MarkerSetSize int
}

// Session owns the socket to a single camera node. One reader goroutine per
// connected session decodes data lines and forwards them to the sink; the
// session is the sole writer of its node's observations.
//
// Lines that fail to decode are discarded silently: partial reads across line
// boundaries and stray command echoes are expected during normal operation
// and are not protocol violations.
type Session struct {
	nodeID      string
	addr        string
	sink        Sink
	dialTimeout time.Duration
	markerSet   int

	// commandMu serialises writers so concurrent commands cannot interleave
	// bytes on the wire. Held only for the write, never with mu.
	commandMu sync.Mutex

	mu     sync.Mutex
	state  State
	conn   net.Conn
	connID string // per-connection identifier for log correlation
}

// New creates a disconnected session.
func New(cfg Config) *Session {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return &Session{
		nodeID:      cfg.NodeID,
		addr:        cfg.Addr,
		sink:        cfg.Sink,
		dialTimeout: timeout,
		markerSet:   cfg.MarkerSetSize,
		state:       StateDisconnected,
	}
}

// NodeID returns the node this session belongs to.
func (s *Session) NodeID() string { return s.nodeID }

// Addr returns the node's network endpoint.
func (s *Session) Addr() string { return s.addr }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the node and starts the reader goroutine. Connecting an
// already-connected session is a no-op. Refusal and timeout leave the session
// Disconnected and return the dial error.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("connect %s (%s): %w", s.nodeID, s.addr, err)
	}

	connID := uuid.NewString()
	s.mu.Lock()
	s.conn = conn
	s.connID = connID
	s.state = StateConnected
	s.mu.Unlock()

	monitoring.NodeLogf(s.nodeID, "connected to %s (conn %s)", s.addr, connID)
	go s.readLoop(conn, connID)
	return nil
}

// SendCommand writes a single-line command to the node. A broken channel
// triggers disconnect and returns the write error.
func (s *Session) SendCommand(command string) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	s.commandMu.Lock()
	_, err := fmt.Fprintf(conn, "%s\n", command)
	s.commandMu.Unlock()
	if err != nil {
		s.Disconnect()
		return fmt.Errorf("send %q to %s: %w", command, s.nodeID, err)
	}
	return nil
}

// Disconnect transitions the session to Disconnected and releases the
// socket. It is idempotent: invoking it again, or concurrently from the
// reader path and a caller, does nothing further.
func (s *Session) Disconnect() {
	s.disconnect("")
}

// disconnect tears down the current connection. A non-empty connID restricts
// the teardown to that specific connection, so a reader draining an old
// socket cannot take down a newer one established by reconnect.
func (s *Session) disconnect(connID string) {
	s.mu.Lock()
	if s.state == StateDisconnected || (connID != "" && connID != s.connID) {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	monitoring.NodeLogf(s.nodeID, "disconnected")
}

// readLoop consumes newline-terminated messages until end of stream or
// socket error, then disconnects. It only blocks on the socket read; sink
// updates hold the table lock briefly and never do I/O.
func (s *Session) readLoop(conn net.Conn, connID string) {
	scan := bufio.NewScanner(conn)
	scan.Buffer(make([]byte, 4096), maxLineBytes)

	for scan.Scan() {
		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}
		markers, err := wire.ParseDataLine(line, s.markerSet)
		if err != nil {
			// Malformed or partial line; drop it and keep reading.
			continue
		}
		if len(markers) > 0 && s.sink != nil {
			s.sink.Update(s.nodeID, markers)
		}
	}

	if err := scan.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		monitoring.NodeLogf(s.nodeID, "read loop ended (conn %s): %v", connID, err)
	}
	s.disconnect(connID)
}
