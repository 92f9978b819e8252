// Package graph builds a DAG from declared service dependencies, rejects
// cycles, and computes startup/shutdown layers and cascade sets.
package graph

import (
	"fmt"
	"sort"

	"krill/core/recipe"
)

// Edge is one outgoing dependency from a service.
type Edge struct {
	Target    string
	Condition recipe.DependencyCondition
}

// Graph holds both the forward adjacency (service -> its dependencies) and
// the reverse adjacency (service -> services depending on it).
type Graph struct {
	forward map[string][]Edge
	reverse map[string][]string
	order   []string
}

// CyclicDependencyError lists the services participating in a detected cycle.
type CyclicDependencyError struct {
	Services []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency among services: %v", e.Services)
}

// Build constructs the graph from a recipe. It does not itself check for
// cycles; call Validate for that (orchestrator.New calls both; recipe
// loading runs its own equivalent cycle check).
func Build(rec *recipe.Recipe) *Graph {
	g := &Graph{
		forward: make(map[string][]Edge, len(rec.Services)),
		reverse: make(map[string][]string, len(rec.Services)),
		order:   append([]string(nil), rec.ServiceOrder...),
	}
	for _, name := range rec.ServiceOrder {
		svc := rec.Services[name]
		if _, ok := g.forward[name]; !ok {
			g.forward[name] = nil
		}
		for _, dep := range svc.Dependencies {
			g.forward[name] = append(g.forward[name], Edge{Target: dep.Name, Condition: dep.Condition})
			g.reverse[dep.Name] = append(g.reverse[dep.Name], name)
		}
	}
	return g
}

// Dependencies returns the declared dependency edges of a service.
func (g *Graph) Dependencies(service string) []Edge {
	return g.forward[service]
}

// Dependents returns the services that directly depend on service.
func (g *Graph) Dependents(service string) []string {
	return g.reverse[service]
}

// Validate performs a Kahn-style scan and returns a *CyclicDependencyError
// naming every service still left with unresolved in-degree once the
// algorithm stalls.
func (g *Graph) Validate() error {
	indegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		indegree[name] = 0
	}
	for _, name := range g.order {
		for range g.forward[name] {
			indegree[name]++
		}
	}

	queue := make([]string, 0, len(g.order))
	for _, name := range g.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, dependent := range g.reverse[n] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if visited == len(g.order) {
		return nil
	}

	var remaining []string
	for _, name := range g.order {
		if indegree[name] > 0 {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)
	return &CyclicDependencyError{Services: remaining}
}

// Layers partitions services into ordered startup layers: every dependency
// of a service in layer k lies in a strictly earlier layer. Services
// within a layer may start concurrently. Call only after Validate succeeds.
func (g *Graph) Layers() [][]string {
	remaining := make(map[string][]Edge, len(g.order))
	for _, name := range g.order {
		remaining[name] = g.forward[name]
	}

	var layers [][]string
	placed := make(map[string]bool, len(g.order))

	for len(placed) < len(g.order) {
		var layer []string
		for _, name := range g.order {
			if placed[name] {
				continue
			}
			ready := true
			for _, edge := range remaining[name] {
				if !placed[edge.Target] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, name)
			}
		}
		if len(layer) == 0 {
			// Validate should have caught this; guard against infinite loop.
			break
		}
		for _, name := range layer {
			placed[name] = true
		}
		layers = append(layers, layer)
	}
	return layers
}

// ShutdownLayers is the startup layering reversed. Only the outer slice is
// reversed; the order within each layer is kept as is, which does not
// matter since services in a layer are independent of each other.
func (g *Graph) ShutdownLayers() [][]string {
	startup := g.Layers()
	out := make([][]string, len(startup))
	for i, layer := range startup {
		out[len(startup)-1-i] = layer
	}
	return out
}

// CascadeSet returns the transitive closure of dependents of service
// (excluding service itself), used to stop everything downstream of a
// fault that has exhausted its restart budget.
func (g *Graph) CascadeSet(service string) []string {
	seen := map[string]bool{service: true}
	var out []string
	queue := append([]string(nil), g.reverse[service]...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		queue = append(queue, g.reverse[n]...)
	}
	return out
}
