package recipe

import (
	"regexp"
)

// envVarPattern matches both ${VAR} and bare $VAR forms.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// resolveEnvString substitutes ${VAR} / $VAR references against lookup,
// leaving the literal text in place for names lookup does not resolve.
// Grounded on the original Rust implementation's resolve_env_in_string.
func resolveEnvString(s string, lookup func(string) (string, bool)) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		if val, ok := lookup(name); ok {
			return val
		}
		return match
	})
}

// resolveEnv substitutes environment references across every string field
// of the recipe that may legitimately contain them: pixi task,
// command/stop_command, ros2 launch arg values, health_check.command,
// working directory, and environment map values.
// Resolution happens before shell validation so validation always sees the
// final literal text.
func resolveEnv(r *Recipe) {
	merged := make(map[string]string, len(r.Env))
	for k, v := range r.Env {
		merged[k] = v
	}
	lookup := func(name string) (string, bool) {
		if v, ok := merged[name]; ok {
			return v, true
		}
		return lookupOSEnv(name)
	}

	for _, svc := range r.Services {
		svcLookup := lookup
		if len(svc.Env) > 0 {
			local := make(map[string]string, len(merged)+len(svc.Env))
			for k, v := range merged {
				local[k] = v
			}
			for k, v := range svc.Env {
				local[k] = v
			}
			svcLookup = func(name string) (string, bool) {
				if v, ok := local[name]; ok {
					return v, true
				}
				return lookupOSEnv(name)
			}
		}

		ex := &svc.Execute
		ex.Task = resolveEnvString(ex.Task, svcLookup)
		ex.Command = resolveEnvString(ex.Command, svcLookup)
		ex.StopCommand = resolveEnvString(ex.StopCommand, svcLookup)
		ex.Cwd = resolveEnvString(ex.Cwd, svcLookup)
		for i := range ex.LaunchArgs {
			ex.LaunchArgs[i].Value = resolveEnvString(ex.LaunchArgs[i].Value, svcLookup)
		}
		if svc.HealthCheck != nil && svc.HealthCheck.Type == HealthScript {
			svc.HealthCheck.Command = resolveEnvString(svc.HealthCheck.Command, svcLookup)
		}
		for k, v := range svc.Env {
			svc.Env[k] = resolveEnvString(v, svcLookup)
		}
	}
}
