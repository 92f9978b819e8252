// Package spawn translates a validated execution recipe into a concrete
// spawn plan: program, argv, working directory, and environment.
package spawn

import (
	"fmt"
	"strings"

	"krill/core/recipe"
)

// Plan is what the Process Supervisor actually execs.
type Plan struct {
	Program string
	Args    []string
	Dir     string
	Env     []string // "KEY=VALUE" pairs, like os/exec.Cmd.Env

	// Stop, if non-nil, is run to completion before the termination
	// ladder's signal escalation begins.
	Stop *Plan
}

// Build produces the spawn plan (and, if present, the stop plan) for a
// service's execution recipe. The docker variant is rejected earlier, at
// recipe validation time, so Build never sees it in practice; it still
// returns a descriptive error defensively.
func Build(global map[string]string, svc *recipe.Service) (*Plan, error) {
	env := mergeEnv(global, svc.Env)

	switch svc.Execute.Kind {
	case recipe.ExecutePixi:
		return buildPixi(svc.Execute, env)
	case recipe.ExecuteROS2:
		return buildROS2(svc.Execute, env)
	case recipe.ExecuteShell:
		return buildShell(svc.Execute, env)
	case recipe.ExecuteDocker:
		return nil, fmt.Errorf("docker execution recipes require Krill Pro")
	default:
		return nil, fmt.Errorf("unknown execution recipe kind %q", svc.Execute.Kind)
	}
}

func buildPixi(ex recipe.Execute, env []string) (*Plan, error) {
	pixiEnv := ex.Env
	plan := &Plan{
		Program: "pixi",
		Args:    []string{"run", "-e", pixiEnv, ex.Task},
		Dir:     ex.Cwd,
		Env:     env,
	}
	if ex.StopTask != "" {
		plan.Stop = &Plan{
			Program: "pixi",
			Args:    []string{"run", "-e", pixiEnv, ex.StopTask},
			Dir:     ex.Cwd,
			Env:     env,
		}
	}
	return plan, nil
}

func buildROS2(ex recipe.Execute, env []string) (*Plan, error) {
	args := []string{"launch", ex.Package, ex.LaunchFile}
	for _, arg := range ex.LaunchArgs {
		args = append(args, fmt.Sprintf("%s:=%s", arg.Key, arg.Value))
	}
	plan := &Plan{
		Program: "ros2",
		Args:    args,
		Dir:     ex.Cwd,
		Env:     env,
	}
	if ex.StopTask != "" {
		plan.Stop = &Plan{
			Program: "sh",
			Args:    []string{"-c", ex.StopTask},
			Dir:     ex.Cwd,
			Env:     env,
		}
	}
	return plan, nil
}

func buildShell(ex recipe.Execute, env []string) (*Plan, error) {
	argv, err := splitWhitespace(ex.Command)
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		Program: argv[0],
		Args:    argv[1:],
		Dir:     ex.Cwd,
		Env:     env,
	}
	if ex.StopCommand != "" {
		stopArgv, err := splitWhitespace(ex.StopCommand)
		if err != nil {
			return nil, err
		}
		plan.Stop = &Plan{
			Program: stopArgv[0],
			Args:    stopArgv[1:],
			Dir:     ex.Cwd,
			Env:     env,
		}
	}
	return plan, nil
}

func splitWhitespace(command string) ([]string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty shell command")
	}
	return fields, nil
}

// mergeEnv unions global and per-service environment maps, service keys
// winning on conflict, and renders the result as KEY=VALUE pairs.
func mergeEnv(global, local map[string]string) []string {
	merged := make(map[string]string, len(global)+len(local))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}
