package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
)

// Client is a thin, synchronous wrapper over one connection to a running
// daemon's control socket. It is what the krill CLI and per-service SDKs
// dial into; the daemon itself never uses it.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	r    *bufio.Reader
}

// Dial connects to a daemon's control socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn), r: bufio.NewReader(conn)}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// GetSnapshot requests and returns the current state of every service.
func (c *Client) GetSnapshot() ([]ServiceSnapshot, error) {
	if err := c.enc.Encode(GetSnapshotMessage{Type: "get_snapshot"}); err != nil {
		return nil, err
	}
	var frame SnapshotFrame
	if err := c.readFrame(&frame); err != nil {
		return nil, err
	}
	return frame.Services, nil
}

// Command issues a start/stop/restart/kill/stop_daemon and waits for its ack.
func (c *Client) Command(action, target string) (AckFrame, error) {
	if err := c.enc.Encode(CommandMessage{Type: "command", Action: action, Target: target}); err != nil {
		return AckFrame{}, err
	}
	var ack AckFrame
	if err := c.readFrame(&ack); err != nil {
		return AckFrame{}, err
	}
	return ack, nil
}

// TailLog requests a service's current in-memory log tail, delivered as a
// batch of log_line frames terminated by a log_tail_end frame, and returns
// once that terminator arrives. There is no live-follow beyond this
// snapshot; a client wanting a fresher view calls TailLog again.
func (c *Client) TailLog(service string, onLine func(LogLineFrame)) error {
	if err := c.enc.Encode(SubscribeMessage{Type: "subscribe", Logs: service}); err != nil {
		return err
	}
	for {
		line, err := c.r.ReadBytes('\n')
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return err
		}
		switch env.Type {
		case "log_line":
			var frame LogLineFrame
			if err := json.Unmarshal(line, &frame); err != nil {
				return err
			}
			onLine(frame)
		case "log_tail_end":
			return nil
		case "error":
			var ef ErrorFrame
			if err := json.Unmarshal(line, &ef); err != nil {
				return err
			}
			return fmt.Errorf("%s: %s", ef.Code, ef.Message)
		default:
			return fmt.Errorf("unexpected frame type %q while reading log tail", env.Type)
		}
	}
}

func (c *Client) readFrame(out interface{}) error {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return err
	}
	return json.Unmarshal(line, out)
}
