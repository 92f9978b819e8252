package spawn

import (
	"testing"

	"krill/core/recipe"
)

func TestBuildPixi(t *testing.T) {
	svc := &recipe.Service{Execute: recipe.Execute{Kind: recipe.ExecutePixi, Task: "start-lidar", Env: "default", StopTask: "stop-lidar"}}
	plan, err := Build(nil, svc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Program != "pixi" {
		t.Fatalf("program = %q", plan.Program)
	}
	want := []string{"run", "-e", "default", "start-lidar"}
	if !equalSlices(plan.Args, want) {
		t.Fatalf("args = %v, want %v", plan.Args, want)
	}
	if plan.Stop == nil || plan.Stop.Args[3] != "stop-lidar" {
		t.Fatalf("stop plan = %+v", plan.Stop)
	}
}

func TestBuildROS2PreservesArgOrder(t *testing.T) {
	svc := &recipe.Service{Execute: recipe.Execute{
		Kind:       recipe.ExecuteROS2,
		Package:    "nav2_bringup",
		LaunchFile: "bringup_launch.py",
		LaunchArgs: []recipe.LaunchArg{{Key: "use_sim_time", Value: "true"}, {Key: "map", Value: "/maps/a.yaml"}},
	}}
	plan, err := Build(nil, svc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"launch", "nav2_bringup", "bringup_launch.py", "use_sim_time:=true", "map:=/maps/a.yaml"}
	if !equalSlices(plan.Args, want) {
		t.Fatalf("args = %v, want %v", plan.Args, want)
	}
}

func TestBuildROS2StopTaskRunsAsPlainShellCommand(t *testing.T) {
	svc := &recipe.Service{Execute: recipe.Execute{
		Kind:       recipe.ExecuteROS2,
		Package:    "nav2_bringup",
		LaunchFile: "bringup_launch.py",
		StopTask:   "ros2 lifecycle set /bt_navigator shutdown",
	}}
	plan, err := Build(nil, svc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Stop == nil {
		t.Fatal("expected a stop plan")
	}
	if plan.Stop.Program != "sh" {
		t.Fatalf("stop program = %q, want sh", plan.Stop.Program)
	}
	want := []string{"-c", "ros2 lifecycle set /bt_navigator shutdown"}
	if !equalSlices(plan.Stop.Args, want) {
		t.Fatalf("stop args = %v, want %v", plan.Stop.Args, want)
	}
}

func TestBuildShellSplitsOnWhitespace(t *testing.T) {
	svc := &recipe.Service{Execute: recipe.Execute{Kind: recipe.ExecuteShell, Command: "python script.py --x"}}
	plan, err := Build(nil, svc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Program != "python" {
		t.Fatalf("program = %q", plan.Program)
	}
	want := []string{"script.py", "--x"}
	if !equalSlices(plan.Args, want) {
		t.Fatalf("args = %v, want %v", plan.Args, want)
	}
}

func TestBuildDockerRejected(t *testing.T) {
	svc := &recipe.Service{Execute: recipe.Execute{Kind: recipe.ExecuteDocker, Image: "ros:humble"}}
	if _, err := Build(nil, svc); err == nil {
		t.Fatal("expected error for docker execute kind")
	}
}

func TestMergeEnvServiceOverridesGlobal(t *testing.T) {
	svc := &recipe.Service{
		Execute: recipe.Execute{Kind: recipe.ExecuteShell, Command: "ls"},
		Env:     map[string]string{"A": "service"},
	}
	plan, err := Build(map[string]string{"A": "global", "B": "global"}, svc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := map[string]string{}
	for _, kv := range plan.Env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				found[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	if found["A"] != "service" || found["B"] != "global" {
		t.Fatalf("env = %v", found)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
