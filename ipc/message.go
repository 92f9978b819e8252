// Package ipc implements the daemon's local control-plane socket: a
// newline-delimited JSON protocol over a Unix domain socket, multiplexing
// commands, heartbeats, snapshots, and event/log subscriptions across one
// connection per client. Grounded on core/agent's ControlServer, extended
// from a unary request/response exchange to a subscribe-and-push one.
package ipc

import "time"

// Envelope is the common header every frame carries; Type selects how the
// rest of the line is decoded.
type Envelope struct {
	Type string `json:"type"`
}

// Inbound frames (client -> daemon).

// HeartbeatMessage reports a service's liveness and optional status.
type HeartbeatMessage struct {
	Type     string            `json:"type"`
	Service  string            `json:"service"`
	Status   string            `json:"status,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CommandMessage asks the orchestrator to act on a service or the daemon.
type CommandMessage struct {
	Type      string `json:"type"`
	CommandID string `json:"command_id,omitempty"`
	Action    string `json:"action"`
	Target    string `json:"target,omitempty"`
}

// SubscribeMessage opts a connection into event and/or log push delivery.
type SubscribeMessage struct {
	Type   string `json:"type"`
	Events bool   `json:"events"`
	Logs   string `json:"logs,omitempty"`
}

// GetSnapshotMessage asks for the current state of every service.
type GetSnapshotMessage struct {
	Type string `json:"type"`
}

// Outbound frames (daemon -> client).

// EventFrame mirrors one events.Event delivered to an events subscriber.
type EventFrame struct {
	Type      string    `json:"type"`
	Service   string    `json:"service"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// ServiceSnapshot is the wire form of one runner.Snapshot.
type ServiceSnapshot struct {
	Service      string `json:"service"`
	State        string `json:"state"`
	PID          int    `json:"pid,omitempty"`
	PGID         int    `json:"pgid,omitempty"`
	RestartCount int    `json:"restart_count"`
	LastExitCode int    `json:"last_exit_code"`
	LastError    string `json:"last_error,omitempty"`
	NonRetryable bool   `json:"non_retryable,omitempty"`
}

// SnapshotFrame answers a get_snapshot request.
type SnapshotFrame struct {
	Type     string            `json:"type"`
	Services []ServiceSnapshot `json:"services"`
}

// LogLineFrame mirrors one captured stdout/stderr line.
type LogLineFrame struct {
	Type      string    `json:"type"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Text      string    `json:"text"`
}

// LogTailEndFrame closes out the batch of log_line frames a subscribe-with-
// logs request triggers, so a client can tell an empty tail apart from one
// still arriving.
type LogTailEndFrame struct {
	Type    string `json:"type"`
	Service string `json:"service"`
}

// AckFrame reports the outcome of a CommandMessage.
type AckFrame struct {
	Type      string `json:"type"`
	CommandID string `json:"command_id,omitempty"`
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
}

// ErrorFrame reports a protocol-level or dispatch error.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
