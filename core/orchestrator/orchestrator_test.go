package orchestrator

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

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

func mustLoad(t *testing.T, yamlDoc string) *recipe.Recipe {
	t.Helper()
	rec, warnings, err := recipe.LoadBytes([]byte(yamlDoc))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	for _, w := range warnings {
		t.Logf("warning: %s: %s", w.Service, w.Message)
	}
	return rec
}

func pollSnapshot(t *testing.T, o *Orchestrator, service string, want func(s string) bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last string
	for time.Now().Before(deadline) {
		r := o.Runner(service)
		if r == nil {
			t.Fatalf("no runner for %s", service)
		}
		last = string(r.Snapshot().State)
		if want(last) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting on %s, last state %s", service, last)
}

const chainRecipe = `
version: "1"
name: ws
services:
  c:
    execute: {type: shell, command: "/bin/sleep 5"}
  b:
    execute: {type: shell, command: "/bin/sleep 5"}
    dependencies: [c]
  a:
    execute: {type: shell, command: "/bin/sleep 5"}
    dependencies: [b]
`

func TestStartupOrderRespectsDependencies(t *testing.T) {
	requireCommand(t, "/bin/sleep")

	rec := mustLoad(t, chainRecipe)
	o, err := New(rec, nil, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, ch := o.bus.Subscribe()
	defer o.bus.Unsubscribe(id)

	var startOrder []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if ev.To == "Starting" {
				startOrder = append(startOrder, ev.Service)
				if len(startOrder) == 3 {
					return
				}
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := o.startupSequence(ctx); err != nil {
		t.Fatalf("startupSequence: %v", err)
	}
	<-done

	want := []string{"c", "b", "a"}
	if len(startOrder) != len(want) {
		t.Fatalf("start order = %v, want %v", startOrder, want)
	}
	for i, name := range want {
		if startOrder[i] != name {
			t.Fatalf("start order = %v, want %v", startOrder, want)
		}
	}

	for _, name := range []string{"a", "b", "c"} {
		r := o.Runner(name)
		r.Stop(context.Background())
	}
}

func TestCyclicDependencyRejectedAtBuild(t *testing.T) {
	doc := `
version: "1"
name: ws
services:
  a:
    execute: {type: shell, command: "/bin/true"}
    dependencies: [b]
  b:
    execute: {type: shell, command: "/bin/true"}
    dependencies: [a]
`
	_, _, err := recipe.LoadBytes([]byte(doc))
	if err == nil {
		t.Fatal("expected cyclic dependency to be rejected at load time")
	}
}

func TestNonCriticalExhaustionCascadesToDependents(t *testing.T) {
	requireCommand(t, "/bin/sleep")
	requireCommand(t, "/bin/false")

	doc := `
version: "1"
name: ws
services:
  base:
    execute: {type: shell, command: "/bin/false"}
    restart:
      mode: always
      max_restarts: 1
      restart_delay: 20ms
  dependent:
    execute: {type: shell, command: "/bin/sleep 5"}
    dependencies: [base]
`
	rec := mustLoad(t, doc)
	o, err := New(rec, nil, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go o.watchFaults(watchCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := o.startupSequence(ctx); err != nil {
		t.Fatalf("startupSequence: %v", err)
	}

	pollSnapshot(t, o, "base", func(s string) bool { return s == "Stopped" }, 3*time.Second)
	pollSnapshot(t, o, "dependent", func(s string) bool { return s == "Stopped" }, 3*time.Second)
}

func TestCriticalExhaustionTriggersEmergencyStop(t *testing.T) {
	requireCommand(t, "/bin/sleep")
	requireCommand(t, "/bin/false")

	doc := `
version: "1"
name: ws
services:
  watchdog:
    critical: true
    execute: {type: shell, command: "/bin/false"}
    restart:
      mode: always
      max_restarts: 1
      restart_delay: 20ms
  sibling:
    execute: {type: shell, command: "/bin/sleep 5"}
`
	rec := mustLoad(t, doc)
	o, err := New(rec, nil, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go o.watchFaults(watchCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := o.startupSequence(ctx); err != nil {
		t.Fatalf("startupSequence: %v", err)
	}

	pollSnapshot(t, o, "sibling", func(s string) bool { return s == "Stopped" }, 3*time.Second)
	if !o.EmergencyStopped() {
		t.Fatal("expected emergency stop to be armed")
	}
}
