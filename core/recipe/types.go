// Package recipe defines the Krill recipe data model and loads it from YAML.
package recipe

import "time"

// DependencyCondition is the readiness condition a dependent waits for.
type DependencyCondition string

const (
	ConditionStarted DependencyCondition = "started"
	ConditionHealthy DependencyCondition = "healthy"
)

// Dependency is the uniform internal form of a dependency list entry,
// regardless of whether the YAML used a bare string or a single-key map.
type Dependency struct {
	Name      string
	Condition DependencyCondition
}

// RestartMode selects how a Service Runner reacts to its child exiting.
type RestartMode string

const (
	RestartNever     RestartMode = "never"
	RestartAlways    RestartMode = "always"
	RestartOnFailure RestartMode = "on-failure"
)

// RestartPolicy governs restart attempts after a service faults.
type RestartPolicy struct {
	Mode         RestartMode
	MaxRestarts  int // 0 = unlimited
	RestartDelay time.Duration
	StopTimeout  time.Duration
}

// DefaultRestartPolicy returns the policy implied when a service omits one.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		Mode:         RestartNever,
		MaxRestarts:  0,
		RestartDelay: time.Second,
		StopTimeout:  10 * time.Second,
	}
}

// HealthCheckType discriminates the health check sum type.
type HealthCheckType string

const (
	HealthHeartbeat HealthCheckType = "heartbeat"
	HealthTCP       HealthCheckType = "tcp"
	HealthHTTP      HealthCheckType = "http"
	HealthScript    HealthCheckType = "script"
)

// HealthCheck is the tagged-variant health probe configuration for one service.
type HealthCheck struct {
	Type HealthCheckType

	// heartbeat / tcp / script
	Timeout time.Duration

	// tcp / http
	Port int

	// http
	Path           string
	ExpectedStatus int

	// script
	Command string

	// ConsecutiveFailures is the number of consecutive failing probes
	// required to flip a Healthy/Degraded service to Faulted. Defaults to 1.
	ConsecutiveFailures int
}

// ExecuteKind discriminates the execution recipe sum type.
type ExecuteKind string

const (
	ExecutePixi   ExecuteKind = "pixi"
	ExecuteROS2   ExecuteKind = "ros2"
	ExecuteShell  ExecuteKind = "shell"
	ExecuteDocker ExecuteKind = "docker"
)

// Execute is the tagged-variant execution recipe. Exactly one group of
// fields is meaningful, selected by Kind.
type Execute struct {
	Kind ExecuteKind

	// pixi
	Task     string
	Env      string
	StopTask string
	Cwd      string

	// ros2
	Package    string
	LaunchFile string
	LaunchArgs []LaunchArg

	// shell
	Command     string
	StopCommand string

	// docker (schema-valid, rejected at validation time)
	Image      string
	Volumes    []string
	Ports      []string
	Privileged bool
	Network    string
}

// LaunchArg is one "key:=value" ros2 launch argument, kept in declared order.
type LaunchArg struct {
	Key   string
	Value string
}

// Service is one named entry in the recipe's services map.
type Service struct {
	Name         string
	Execute      Execute
	Dependencies []Dependency
	HealthCheck  *HealthCheck
	Restart      RestartPolicy
	Critical     bool
	GPU          bool
	Env          map[string]string
}

// Recipe is the parsed, validated, immutable top-level document.
type Recipe struct {
	Version  string
	Name     string
	LogDir   string
	Env      map[string]string
	Services map[string]*Service

	// ServiceOrder preserves the YAML declaration order, since Go maps do not.
	ServiceOrder []string
}

// OrderedServices returns the recipe's services in declaration order.
func (r *Recipe) OrderedServices() []*Service {
	out := make([]*Service, 0, len(r.ServiceOrder))
	for _, name := range r.ServiceOrder {
		out = append(out, r.Services[name])
	}
	return out
}
