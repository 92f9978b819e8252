package recipe

import "fmt"

// ConfigErrorKind distinguishes the flavors of configuration error without
// exposing distinct Go types for each — callers switch on Kind.
type ConfigErrorKind string

const (
	ErrParse               ConfigErrorKind = "parse"
	ErrUnsupportedVersion   ConfigErrorKind = "unsupported_version"
	ErrInvalidWorkspaceName ConfigErrorKind = "invalid_workspace_name"
	ErrInvalidServiceName   ConfigErrorKind = "invalid_service_name"
	ErrNoServices           ConfigErrorKind = "no_services"
	ErrUnknownField         ConfigErrorKind = "unknown_field"
	ErrUnknownDependency    ConfigErrorKind = "unknown_dependency"
	ErrDockerRequiresPro    ConfigErrorKind = "docker_requires_pro"
	ErrUnsafeShellCommand   ConfigErrorKind = "unsafe_shell_command"
	ErrCyclicDependency     ConfigErrorKind = "cyclic_dependency"
)

// ConfigError is a fatal, load-time configuration error (spec error
// taxonomy kind 1). The daemon refuses to start when one of these occurs.
type ConfigError struct {
	Kind    ConfigErrorKind
	Service string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Service, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newConfigErr(kind ConfigErrorKind, service, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Kind: kind, Service: service, Message: fmt.Sprintf(format, args...)}
}
