package process_test

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"krill/core/process"
	"krill/core/spawn"
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

func TestSpawnExitCodes(t *testing.T) {
	requireCommand(t, "/bin/true")
	requireCommand(t, "/bin/false")

	cases := []struct {
		name     string
		program  string
		wantCode int
	}{
		{name: "true", program: "/bin/true", wantCode: 0},
		{name: "false", program: "/bin/false", wantCode: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := process.Spawn(&spawn.Plan{Program: tc.program}, "test."+tc.name+".abcdef", 16, nil)
			if err != nil {
				t.Fatalf("Spawn: %v", err)
			}
			if p.PID == 0 {
				t.Fatal("missing pid")
			}
			if p.PGID != p.PID {
				t.Fatalf("pgid %d != pid %d", p.PGID, p.PID)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			result, err := p.Wait(ctx)
			if err != nil {
				t.Fatalf("Wait: %v", err)
			}
			if result.ExitCode != tc.wantCode {
				t.Fatalf("exit code %d, want %d", result.ExitCode, tc.wantCode)
			}
		})
	}
}

func TestSpawnCapturesOutputIntoRing(t *testing.T) {
	requireCommand(t, "/bin/echo")

	p, err := process.Spawn(&spawn.Plan{Program: "/bin/echo", Args: []string{"hello"}}, "test.echo.abcdef", 16, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	lines := p.Ring.Snapshot()
	found := false
	for _, l := range lines {
		if l.Text == "hello" {
			found = true
		}
	}
	if !found {
		t.Fatalf("ring snapshot missing hello: %+v", lines)
	}
}

func TestStopSignalsProcessGroup(t *testing.T) {
	requireCommand(t, "/bin/sh")

	p, err := process.Spawn(&spawn.Plan{Program: "/bin/sh", Args: []string{"-c", "sleep 30"}}, "test.sleep.abcdef", 16, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := p.Stop(context.Background(), nil, 500*time.Millisecond); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !p.Exited() {
		t.Fatal("expected process to have exited after Stop")
	}
}
