//go:build !windows

package ipc_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"krill/ipc"
	"krill/core/orchestrator"
	"krill/core/recipe"
)

func requireCommand(t *testing.T, path string) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("requires linux")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("missing %s", path)
	}
}

func startServer(t *testing.T, rec *recipe.Recipe) (net.Conn, func()) {
	t.Helper()
	orch, err := orchestrator.New(rec, nil, 16)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	sockPath := filepath.Join(t.TempDir(), "krill.sock")
	srv := ipc.New(sockPath, orch)

	ctx, cancel := context.WithCancel(context.Background())
	srvDone := make(chan struct{})
	go func() {
		defer close(srvDone)
		srv.Run(ctx)
	}()

	var conn net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if conn == nil {
		cancel()
		t.Fatalf("dial %s: %v", sockPath, err)
	}

	cleanup := func() {
		conn.Close()
		cancel()
		<-srvDone
	}
	return conn, cleanup
}

func readFrame(t *testing.T, r *bufio.Reader) map[string]interface{} {
	t.Helper()
	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(line, &out); err != nil {
		t.Fatalf("unmarshal frame %q: %v", line, err)
	}
	return out
}

const oneServiceRecipe = `
version: "1"
name: ws
services:
  worker:
    execute: {type: shell, command: "/bin/sleep 5"}
`

func TestGetSnapshotReturnsEveryService(t *testing.T) {
	requireCommand(t, "/bin/sleep")

	rec, _, err := recipe.LoadBytes([]byte(oneServiceRecipe))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	conn, cleanup := startServer(t, rec)
	defer cleanup()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(ipc.GetSnapshotMessage{Type: "get_snapshot"}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	reader := bufio.NewReader(conn)
	frame := readFrame(t, reader)
	if frame["type"] != "snapshot" {
		t.Fatalf("frame = %v, want type snapshot", frame)
	}
	services, ok := frame["services"].([]interface{})
	if !ok || len(services) != 1 {
		t.Fatalf("services = %v, want exactly one entry", frame["services"])
	}
}

func TestCommandStartsAndStopsService(t *testing.T) {
	requireCommand(t, "/bin/sleep")

	rec, _, err := recipe.LoadBytes([]byte(oneServiceRecipe))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	conn, cleanup := startServer(t, rec)
	defer cleanup()

	enc := json.NewEncoder(conn)
	reader := bufio.NewReader(conn)

	if err := enc.Encode(ipc.CommandMessage{Type: "command", CommandID: "1", Action: "start", Target: "worker"}); err != nil {
		t.Fatalf("encode start: %v", err)
	}
	ack := readFrame(t, reader)
	if ack["type"] != "ack" || ack["ok"] != true {
		t.Fatalf("start ack = %v, want ok", ack)
	}

	if err := enc.Encode(ipc.CommandMessage{Type: "command", CommandID: "2", Action: "stop", Target: "worker"}); err != nil {
		t.Fatalf("encode stop: %v", err)
	}
	ack = readFrame(t, reader)
	if ack["type"] != "ack" || ack["ok"] != true {
		t.Fatalf("stop ack = %v, want ok", ack)
	}
}

func TestUnknownCommandTargetReturnsAckError(t *testing.T) {
	requireCommand(t, "/bin/sleep")

	rec, _, err := recipe.LoadBytes([]byte(oneServiceRecipe))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	conn, cleanup := startServer(t, rec)
	defer cleanup()

	enc := json.NewEncoder(conn)
	reader := bufio.NewReader(conn)

	if err := enc.Encode(ipc.CommandMessage{Type: "command", CommandID: "1", Action: "start", Target: "missing"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	ack := readFrame(t, reader)
	if ack["type"] != "ack" || ack["ok"] != false {
		t.Fatalf("ack = %v, want ok=false", ack)
	}
}

func TestTailLogOnIdleServiceEndsWithNoLines(t *testing.T) {
	requireCommand(t, "/bin/sleep")

	rec, _, err := recipe.LoadBytes([]byte(oneServiceRecipe))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	orch, err := orchestrator.New(rec, nil, 16)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	sockPath := filepath.Join(t.TempDir(), "krill.sock")
	srv := ipc.New(sockPath, orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	var client *ipc.Client
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client, err = ipc.Dial(sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if client == nil {
		t.Fatalf("dial %s: %v", sockPath, err)
	}
	defer client.Close()

	var lines int
	if err := client.TailLog("worker", func(ipc.LogLineFrame) { lines++ }); err != nil {
		t.Fatalf("TailLog: %v", err)
	}
	if lines != 0 {
		t.Fatalf("lines = %d, want 0 (service never started)", lines)
	}
}
