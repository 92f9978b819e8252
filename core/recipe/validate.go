package recipe

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"krill/core/validate"
)

var nameCharset = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Warning is a non-fatal advisory surfaced alongside a successfully loaded
// recipe, grounded on original_source's extended_validation.
type Warning struct {
	Service string
	Message string
}

func (w Warning) String() string {
	if w.Service != "" {
		return fmt.Sprintf("%s: %s", w.Service, w.Message)
	}
	return w.Message
}

// build converts the raw, syntactically-decoded document into the typed,
// validated Recipe, or returns a fatal *ConfigError.
func build(raw *rawRecipe) (*Recipe, []Warning, error) {
	if raw.Version != "1" {
		return nil, nil, newConfigErr(ErrUnsupportedVersion, "", "unsupported version %q, expected \"1\"", raw.Version)
	}
	if raw.Name == "" || !nameCharset.MatchString(raw.Name) {
		return nil, nil, newConfigErr(ErrInvalidWorkspaceName, "", "workspace name %q must match %s", raw.Name, nameCharset.String())
	}
	if len(raw.Services) == 0 {
		return nil, nil, newConfigErr(ErrNoServices, "", "recipe declares no services")
	}

	rec := &Recipe{
		Version:      raw.Version,
		Name:         raw.Name,
		LogDir:       raw.LogDir,
		Env:          raw.Env,
		Services:     make(map[string]*Service, len(raw.Services)),
		ServiceOrder: raw.Order,
	}
	if rec.Env == nil {
		rec.Env = map[string]string{}
	}

	var warnings []Warning

	for _, name := range raw.Order {
		rawSvc := raw.Services[name]
		if !nameCharset.MatchString(name) {
			return nil, nil, newConfigErr(ErrInvalidServiceName, name, "service name must match %s", nameCharset.String())
		}
		if rawSvc.Execute == nil {
			return nil, nil, newConfigErr(ErrParse, name, "missing execute block")
		}
		ex, err := decodeExecute(rawSvc.Execute)
		if err != nil {
			return nil, nil, newConfigErr(ErrParse, name, "%v", err)
		}
		if ex.Kind == ExecuteDocker {
			return nil, nil, newConfigErr(ErrDockerRequiresPro, name, "the docker execution recipe requires Krill Pro")
		}

		svc := &Service{
			Name:         name,
			Execute:      ex,
			Dependencies: rawSvc.Dependencies,
			Critical:     rawSvc.Critical,
			GPU:          rawSvc.GPU,
			Env:          rawSvc.Env,
		}
		if svc.Env == nil {
			svc.Env = map[string]string{}
		}

		svc.Restart = DefaultRestartPolicy()
		if rawSvc.Restart != nil {
			if rawSvc.Restart.Mode != "" {
				mode := RestartMode(rawSvc.Restart.Mode)
				switch mode {
				case RestartNever, RestartAlways, RestartOnFailure:
					svc.Restart.Mode = mode
				default:
					return nil, nil, newConfigErr(ErrParse, name, "unknown restart mode %q", rawSvc.Restart.Mode)
				}
			}
			svc.Restart.MaxRestarts = rawSvc.Restart.MaxRestarts
			if rawSvc.Restart.RestartDelay != "" {
				d, err := time.ParseDuration(rawSvc.Restart.RestartDelay)
				if err != nil {
					return nil, nil, newConfigErr(ErrParse, name, "invalid restart_delay: %v", err)
				}
				svc.Restart.RestartDelay = d
			}
			if rawSvc.Restart.StopTimeout != "" {
				d, err := time.ParseDuration(rawSvc.Restart.StopTimeout)
				if err != nil {
					return nil, nil, newConfigErr(ErrParse, name, "invalid stop_timeout: %v", err)
				}
				svc.Restart.StopTimeout = d
			}
		}

		if rawSvc.HealthCheck != nil {
			hc, err := decodeHealthCheck(rawSvc.HealthCheck)
			if err != nil {
				return nil, nil, newConfigErr(ErrParse, name, "%v", err)
			}
			svc.HealthCheck = hc
		}

		rec.Services[name] = svc
	}

	if err := validateShellCommands(rec); err != nil {
		return nil, warnings, err
	}
	if err := validateDependencies(rec); err != nil {
		return nil, warnings, err
	}
	if err := validateAcyclic(rec); err != nil {
		return nil, warnings, err
	}

	warnings = append(warnings, extendedValidation(rec)...)

	return rec, warnings, nil
}

func validateShellCommands(rec *Recipe) error {
	for name, svc := range rec.Services {
		if svc.Execute.Kind == ExecuteShell {
			if err := validate.ShellCommand(svc.Execute.Command); err != nil {
				return newConfigErr(ErrUnsafeShellCommand, name, "%v", err)
			}
			if svc.Execute.StopCommand != "" {
				if err := validate.ShellCommand(svc.Execute.StopCommand); err != nil {
					return newConfigErr(ErrUnsafeShellCommand, name, "%v", err)
				}
			}
		}
		if svc.HealthCheck != nil && svc.HealthCheck.Type == HealthScript {
			if err := validate.ShellCommand(svc.HealthCheck.Command); err != nil {
				return newConfigErr(ErrUnsafeShellCommand, name, "%v", err)
			}
		}
	}
	return nil
}

func validateDependencies(rec *Recipe) error {
	for name, svc := range rec.Services {
		for _, dep := range svc.Dependencies {
			if _, ok := rec.Services[dep.Name]; !ok {
				return newConfigErr(ErrUnknownDependency, name, "unknown service %q in dependencies", dep.Name)
			}
		}
	}
	return nil
}

// validateAcyclic runs a Kahn-style scan over the declared dependency edges
// and rejects the recipe outright if any service is left with unresolved
// in-degree once the scan stalls. The full startup/shutdown layering lives
// in core/graph, which cannot be imported here without a cycle of its own
// (it depends on this package); this is the same algorithm duplicated at
// load time so a cyclic recipe never makes it past LoadFile/LoadBytes.
func validateAcyclic(rec *Recipe) error {
	indegree := make(map[string]int, len(rec.ServiceOrder))
	for _, name := range rec.ServiceOrder {
		indegree[name] = 0
	}
	for _, name := range rec.ServiceOrder {
		indegree[name] += len(rec.Services[name].Dependencies)
	}
	dependents := make(map[string][]string, len(rec.ServiceOrder))
	for _, name := range rec.ServiceOrder {
		for _, dep := range rec.Services[name].Dependencies {
			dependents[dep.Name] = append(dependents[dep.Name], name)
		}
	}

	queue := make([]string, 0, len(rec.ServiceOrder))
	for _, name := range rec.ServiceOrder {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range dependents[n] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if visited == len(rec.ServiceOrder) {
		return nil
	}

	var remaining []string
	for _, name := range rec.ServiceOrder {
		if indegree[name] > 0 {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	return newConfigErr(ErrCyclicDependency, "", "cyclic dependency among services: %v", remaining)
}

// extendedValidation surfaces non-fatal advisories. Grounded on
// original_source's schema.rs extended_validation.
func extendedValidation(rec *Recipe) []Warning {
	var warnings []Warning
	for _, name := range rec.ServiceOrder {
		svc := rec.Services[name]
		if svc.Critical && svc.HealthCheck == nil {
			warnings = append(warnings, Warning{Service: name, Message: "critical service has no health check; only process exit will be detected"})
		}
		if svc.Critical && svc.Restart.Mode == RestartNever {
			warnings = append(warnings, Warning{Service: name, Message: "critical service has restart mode \"never\"; any failure triggers emergency stop immediately"})
		}
		if svc.HealthCheck != nil && svc.HealthCheck.ConsecutiveFailures <= 0 {
			warnings = append(warnings, Warning{Service: name, Message: "consecutive_failures must be positive; treating as 1"})
			svc.HealthCheck.ConsecutiveFailures = 1
		}
	}
	return warnings
}
