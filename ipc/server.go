//go:build !windows

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"krill/core/events"
	"krill/core/orchestrator"
)

const outboundQueueDepth = 256

// Server exposes the daemon's control plane over a Unix domain socket:
// commands, heartbeats, and get_snapshot are unary; subscribe opts a
// connection into a push feed of events and/or a service's log lines.
// Grounded on core/agent's ControlServer, extended from one request/
// response exchange per line to a multiplexed subscribe-and-push model.
type Server struct {
	path string
	orch *orchestrator.Orchestrator
}

// New builds a control server bound to path once Run is called.
func New(path string, orch *orchestrator.Orchestrator) *Server {
	return &Server{path: path, orch: orch}
}

// Run binds the control socket and serves connections until ctx is
// canceled. It refuses to start if a live daemon is already listening on
// path, and otherwise removes a stale socket file left by a prior crash.
func (s *Server) Run(ctx context.Context) error {
	if err := claimSocket(s.path); err != nil {
		return err
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		listener.Close()
		return err
	}
	defer func() {
		listener.Close()
		_ = os.Remove(s.path)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// claimSocket refuses to start if another process is actively listening on
// path, and otherwise clears a stale socket file so net.Listen can bind it.
// Unlike a blind os.Remove, this will not steal the socket out from under a
// daemon that is genuinely already running.
func claimSocket(path string) error {
	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("control socket %s already has a live listener", path)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing stale control socket: %w", err)
		}
	}
	return nil
}

type connection struct {
	conn net.Conn
	out  chan interface{}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	c := &connection{conn: conn, out: make(chan interface{}, outboundQueueDepth)}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(connCtx)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.dispatch(connCtx, c, line)
	}
}

// writeLoop is the single writer for a connection; every outbound frame
// funnels through here so concurrent event/log pushes never interleave
// their bytes on the wire.
func (c *connection) writeLoop(ctx context.Context) {
	enc := json.NewEncoder(c.conn)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.out:
			if !ok {
				return
			}
			if err := enc.Encode(frame); err != nil {
				return
			}
		}
	}
}

func (c *connection) send(frame interface{}) {
	select {
	case c.out <- frame:
	default:
		// Slow reader; drop rather than block the dispatch goroutine.
	}
}

func (s *Server) dispatch(ctx context.Context, c *connection, line []byte) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		c.send(ErrorFrame{Type: "error", Code: "bad_frame", Message: err.Error()})
		return
	}

	switch env.Type {
	case "heartbeat":
		s.handleHeartbeat(c, line)
	case "command":
		s.handleCommand(ctx, c, line)
	case "subscribe":
		s.handleSubscribe(ctx, c, line)
	case "get_snapshot":
		s.handleGetSnapshot(c)
	default:
		c.send(ErrorFrame{Type: "error", Code: "unknown_type", Message: fmt.Sprintf("unknown message type %q", env.Type)})
	}
}

func (s *Server) handleHeartbeat(c *connection, line []byte) {
	var msg HeartbeatMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		c.send(ErrorFrame{Type: "error", Code: "bad_frame", Message: err.Error()})
		return
	}
	r := s.orch.Runner(msg.Service)
	if r == nil {
		c.send(ErrorFrame{Type: "error", Code: "unknown_service", Message: fmt.Sprintf("unknown service %q", msg.Service)})
		return
	}
	hb := r.Heartbeat()
	if hb == nil {
		c.send(ErrorFrame{Type: "error", Code: "no_heartbeat_check", Message: fmt.Sprintf("service %q has no heartbeat health check", msg.Service)})
		return
	}
	hb.Touch(msg.Status, msg.Metadata)
}

func (s *Server) handleCommand(ctx context.Context, c *connection, line []byte) {
	var msg CommandMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		c.send(ErrorFrame{Type: "error", Code: "bad_frame", Message: err.Error()})
		return
	}
	err := s.orch.Dispatch(ctx, orchestrator.Action(msg.Action), msg.Target)
	if err != nil {
		c.send(AckFrame{Type: "ack", CommandID: msg.CommandID, OK: false, Message: err.Error()})
		return
	}
	c.send(AckFrame{Type: "ack", CommandID: msg.CommandID, OK: true})
}

func (s *Server) handleGetSnapshot(c *connection) {
	snaps := s.orch.Snapshot()
	out := make([]ServiceSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, ServiceSnapshot{
			Service:      snap.Service,
			State:        string(snap.State),
			PID:          snap.PID,
			PGID:         snap.PGID,
			RestartCount: snap.RestartCount,
			LastExitCode: snap.LastExitCode,
			LastError:    snap.LastError,
			NonRetryable: snap.NonRetryable,
		})
	}
	c.send(SnapshotFrame{Type: "snapshot", Services: out})
}

// handleSubscribe opts the connection into the event bus and, if a service
// name is given under logs, sends its current in-memory log tail as an
// initial batch. There is no live tail broadcast beyond that snapshot: a
// client that wants a fresher view calls subscribe again.
func (s *Server) handleSubscribe(ctx context.Context, c *connection, line []byte) {
	var msg SubscribeMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		c.send(ErrorFrame{Type: "error", Code: "bad_frame", Message: err.Error()})
		return
	}

	if msg.Logs != "" {
		r := s.orch.Runner(msg.Logs)
		if r == nil {
			c.send(ErrorFrame{Type: "error", Code: "unknown_service", Message: fmt.Sprintf("unknown service %q", msg.Logs)})
		} else {
			for _, l := range r.LogTail() {
				c.send(LogLineFrame{Type: "log_line", Service: msg.Logs, Stream: l.Stream, Text: l.Text})
			}
			c.send(LogTailEndFrame{Type: "log_tail_end", Service: msg.Logs})
		}
	}

	if msg.Events {
		go s.pumpEvents(ctx, c)
	}
}

func (s *Server) pumpEvents(ctx context.Context, c *connection) {
	id, ch := s.orch.Bus().Subscribe()
	defer s.orch.Bus().Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.send(toEventFrame(ev))
		}
	}
}

func toEventFrame(ev events.Event) EventFrame {
	return EventFrame{
		Type:      "event",
		Service:   ev.Service,
		From:      ev.From,
		To:        ev.To,
		Timestamp: ev.Timestamp,
		Reason:    ev.Reason,
	}
}
