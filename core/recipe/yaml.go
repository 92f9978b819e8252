package recipe

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// rawRecipe mirrors the top-level YAML document. Fields are decoded
// manually (not via yaml.Unmarshal's struct tags alone) so that unknown
// keys at every level can be rejected explicitly instead of silently
// ignored.
type rawRecipe struct {
	Version  string
	Name     string
	LogDir   string
	Env      map[string]string
	Services map[string]*rawService
	Order    []string // service declaration order
}

type rawService struct {
	Execute      *rawExecute
	Dependencies []Dependency
	HealthCheck  *rawHealthCheck
	Restart      *rawRestart
	Critical     bool
	GPU          bool
	Env          map[string]string
}

type rawExecute struct {
	node *yaml.Node
}

type rawHealthCheck struct {
	node *yaml.Node
}

type rawRestart struct {
	Mode         string
	MaxRestarts  int
	RestartDelay string
	StopTimeout  string
}

func knownKeys(node *yaml.Node, allowed ...string) (map[string]*yaml.Node, error) {
	if node == nil {
		return map[string]*yaml.Node{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	set := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		set[k] = struct{}{}
	}
	out := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, ok := set[key]; !ok {
			return nil, fmt.Errorf("line %d: unknown field %q", node.Content[i].Line, key)
		}
		out[key] = node.Content[i+1]
	}
	return out, nil
}

func decodeRawRecipe(data []byte) (*rawRecipe, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	doc := root.Content[0]
	fields, err := knownKeys(doc, "version", "name", "log_dir", "env", "services")
	if err != nil {
		return nil, err
	}

	out := &rawRecipe{}
	if n, ok := fields["version"]; ok {
		if err := n.Decode(&out.Version); err != nil {
			return nil, err
		}
	}
	if n, ok := fields["name"]; ok {
		if err := n.Decode(&out.Name); err != nil {
			return nil, err
		}
	}
	if n, ok := fields["log_dir"]; ok {
		if err := n.Decode(&out.LogDir); err != nil {
			return nil, err
		}
	}
	if n, ok := fields["env"]; ok {
		if err := n.Decode(&out.Env); err != nil {
			return nil, err
		}
	}

	if n, ok := fields["services"]; ok {
		if n.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: services must be a mapping", n.Line)
		}
		out.Services = make(map[string]*rawService, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			name := n.Content[i].Value
			svc, err := decodeRawService(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("service %q: %w", name, err)
			}
			out.Services[name] = svc
			out.Order = append(out.Order, name)
		}
	}
	return out, nil
}

func decodeRawService(node *yaml.Node) (*rawService, error) {
	fields, err := knownKeys(node, "execute", "dependencies", "health_check", "restart", "critical", "gpu", "env")
	if err != nil {
		return nil, err
	}
	svc := &rawService{}
	if n, ok := fields["execute"]; ok {
		svc.Execute = &rawExecute{node: n}
	}
	if n, ok := fields["critical"]; ok {
		if err := n.Decode(&svc.Critical); err != nil {
			return nil, err
		}
	}
	if n, ok := fields["gpu"]; ok {
		if err := n.Decode(&svc.GPU); err != nil {
			return nil, err
		}
	}
	if n, ok := fields["env"]; ok {
		if err := n.Decode(&svc.Env); err != nil {
			return nil, err
		}
	}
	if n, ok := fields["health_check"]; ok {
		svc.HealthCheck = &rawHealthCheck{node: n}
	}
	if n, ok := fields["restart"]; ok {
		rfields, err := knownKeys(n, "mode", "max_restarts", "restart_delay", "stop_timeout")
		if err != nil {
			return nil, err
		}
		r := &rawRestart{}
		if v, ok := rfields["mode"]; ok {
			if err := v.Decode(&r.Mode); err != nil {
				return nil, err
			}
		}
		if v, ok := rfields["max_restarts"]; ok {
			if err := v.Decode(&r.MaxRestarts); err != nil {
				return nil, err
			}
		}
		if v, ok := rfields["restart_delay"]; ok {
			if err := v.Decode(&r.RestartDelay); err != nil {
				return nil, err
			}
		}
		if v, ok := rfields["stop_timeout"]; ok {
			if err := v.Decode(&r.StopTimeout); err != nil {
				return nil, err
			}
		}
		svc.Restart = r
	}
	if n, ok := fields["dependencies"]; ok {
		deps, err := decodeDependencies(n)
		if err != nil {
			return nil, err
		}
		svc.Dependencies = deps
	}
	return svc, nil
}

// decodeDependencies handles the dual surface form: a bare string means
// {name, started}; a single-key mapping means {name: condition}.
func decodeDependencies(node *yaml.Node) ([]Dependency, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: dependencies must be a list", node.Line)
	}
	deps := make([]Dependency, 0, len(node.Content))
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			deps = append(deps, Dependency{Name: item.Value, Condition: ConditionStarted})
		case yaml.MappingNode:
			if len(item.Content) != 2 {
				return nil, fmt.Errorf("line %d: dependency mapping must have exactly one key", item.Line)
			}
			name := item.Content[0].Value
			cond := item.Content[1].Value
			switch DependencyCondition(cond) {
			case ConditionStarted, ConditionHealthy:
			default:
				return nil, fmt.Errorf("line %d: unknown dependency condition %q", item.Content[1].Line, cond)
			}
			deps = append(deps, Dependency{Name: name, Condition: DependencyCondition(cond)})
		default:
			return nil, fmt.Errorf("line %d: invalid dependency entry", item.Line)
		}
	}
	return deps, nil
}

func decodeExecute(re *rawExecute) (Execute, error) {
	fields, err := knownKeys(re.node, "type", "task", "env", "stop_task", "cwd",
		"package", "launch_file", "launch_args", "stop_command",
		"command", "image", "volumes", "ports", "privileged", "network")
	if err != nil {
		return Execute{}, err
	}
	var kind string
	if n, ok := fields["type"]; ok {
		if err := n.Decode(&kind); err != nil {
			return Execute{}, err
		}
	}
	ex := Execute{Kind: ExecuteKind(kind)}
	switch ex.Kind {
	case ExecutePixi:
		decodeStr(fields, "task", &ex.Task)
		decodeStr(fields, "env", &ex.Env)
		decodeStr(fields, "stop_task", &ex.StopTask)
		decodeStr(fields, "cwd", &ex.Cwd)
	case ExecuteROS2:
		decodeStr(fields, "package", &ex.Package)
		decodeStr(fields, "launch_file", &ex.LaunchFile)
		decodeStr(fields, "stop_task", &ex.StopTask)
		decodeStr(fields, "cwd", &ex.Cwd)
		if n, ok := fields["launch_args"]; ok {
			args, err := decodeLaunchArgs(n)
			if err != nil {
				return Execute{}, err
			}
			ex.LaunchArgs = args
		}
	case ExecuteShell:
		decodeStr(fields, "command", &ex.Command)
		decodeStr(fields, "stop_command", &ex.StopCommand)
		decodeStr(fields, "cwd", &ex.Cwd)
	case ExecuteDocker:
		decodeStr(fields, "image", &ex.Image)
		decodeStr(fields, "network", &ex.Network)
		if n, ok := fields["volumes"]; ok {
			_ = n.Decode(&ex.Volumes)
		}
		if n, ok := fields["ports"]; ok {
			_ = n.Decode(&ex.Ports)
		}
		if n, ok := fields["privileged"]; ok {
			_ = n.Decode(&ex.Privileged)
		}
	default:
		return Execute{}, fmt.Errorf("unknown execute type %q", kind)
	}
	return ex, nil
}

func decodeStr(fields map[string]*yaml.Node, key string, dst *string) {
	if n, ok := fields[key]; ok {
		_ = n.Decode(dst)
	}
}

// decodeLaunchArgs accepts a mapping (key: value, ...), preserving the
// order keys were declared in the YAML document.
func decodeLaunchArgs(node *yaml.Node) ([]LaunchArg, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: launch_args must be a mapping", node.Line)
	}
	args := make([]LaunchArg, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		// launch arg values may be any scalar in YAML; their literal text
		// is what ends up on the command line either way.
		value := node.Content[i+1].Value
		args = append(args, LaunchArg{Key: node.Content[i].Value, Value: value})
	}
	return args, nil
}

func decodeHealthCheck(rh *rawHealthCheck) (*HealthCheck, error) {
	fields, err := knownKeys(rh.node, "type", "timeout", "port", "path", "expected_status", "command", "consecutive_failures")
	if err != nil {
		return nil, err
	}
	var kind string
	if n, ok := fields["type"]; ok {
		if err := n.Decode(&kind); err != nil {
			return nil, err
		}
	}
	hc := &HealthCheck{Type: HealthCheckType(kind), ConsecutiveFailures: 1, ExpectedStatus: 200, Path: "/health"}
	if n, ok := fields["consecutive_failures"]; ok {
		_ = n.Decode(&hc.ConsecutiveFailures)
	}
	switch hc.Type {
	case HealthHeartbeat:
		if n, ok := fields["timeout"]; ok {
			d, err := decodeDuration(n)
			if err != nil {
				return nil, err
			}
			hc.Timeout = d
		}
	case HealthTCP:
		if n, ok := fields["port"]; ok {
			_ = n.Decode(&hc.Port)
		}
		if n, ok := fields["timeout"]; ok {
			d, err := decodeDuration(n)
			if err != nil {
				return nil, err
			}
			hc.Timeout = d
		}
	case HealthHTTP:
		if n, ok := fields["port"]; ok {
			_ = n.Decode(&hc.Port)
		}
		if n, ok := fields["path"]; ok {
			_ = n.Decode(&hc.Path)
		}
		if n, ok := fields["expected_status"]; ok {
			_ = n.Decode(&hc.ExpectedStatus)
		}
	case HealthScript:
		if n, ok := fields["command"]; ok {
			_ = n.Decode(&hc.Command)
		}
		if n, ok := fields["timeout"]; ok {
			d, err := decodeDuration(n)
			if err != nil {
				return nil, err
			}
			hc.Timeout = d
		}
	default:
		return nil, fmt.Errorf("unknown health check type %q", kind)
	}
	return hc, nil
}

func decodeDuration(n *yaml.Node) (time.Duration, error) {
	var s string
	if err := n.Decode(&s); err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid duration %q: %w", n.Line, s, err)
	}
	return d, nil
}
