// Package orchestrator is the graph-wide controller: it owns every Service
// Runner and the dependency graph, drives layered startup and shutdown,
// and applies cascade/emergency-stop policy in response to runner events.
// Grounded on core/agent.Agent's daemon event loop, generalized from one
// profiling session to many supervised services and a broadcast bus
// instead of a single events channel.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"krill/core/events"
	"krill/core/graph"
	"krill/core/recipe"
	"krill/core/runner"
	"krill/core/session"
)

// dependencyPollInterval is how often a pending start re-checks whether its
// dependencies have reached the condition it is waiting for.
const dependencyPollInterval = 20 * time.Millisecond

// Orchestrator is the sole mutator of the service-name-to-runner map; every
// other consumer reads through Snapshot or the event bus.
type Orchestrator struct {
	rec   *recipe.Recipe
	graph *graph.Graph
	bus   *events.Bus
	sess  *session.Session

	mu               sync.Mutex
	runners          map[string]*runner.Runner
	emergencyStopped bool

	stopOnce      sync.Once
	stopRequested chan struct{}
	shutdownOnce  sync.Once
	shutdownErr   error
}

// New builds the orchestrator for a loaded, validated recipe: constructs
// the dependency graph, a runner per service, and arms every runner.
func New(rec *recipe.Recipe, sess *session.Session, ringCap int) (*Orchestrator, error) {
	g := graph.Build(rec)
	if err := g.Validate(); err != nil {
		return nil, err
	}

	bus := events.NewBus()
	o := &Orchestrator{
		rec:           rec,
		graph:         g,
		bus:           bus,
		sess:          sess,
		runners:       make(map[string]*runner.Runner, len(rec.Services)),
		stopRequested: make(chan struct{}),
	}
	for _, svc := range rec.OrderedServices() {
		r := runner.New(rec.Name, svc, rec.Env, bus, sess, ringCap)
		r.Arm()
		o.runners[svc.Name] = r
	}
	return o, nil
}

// Bus exposes the shared event bus, for IPC subscribers.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// Runner looks up one service's runner, or nil if the name is unknown.
func (o *Orchestrator) Runner(name string) *runner.Runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runners[name]
}

// Snapshot returns every runner's current snapshot, in recipe declaration
// order, for the IPC get_snapshot response.
func (o *Orchestrator) Snapshot() []runner.Snapshot {
	o.mu.Lock()
	names := append([]string(nil), o.rec.ServiceOrder...)
	runners := o.runners
	o.mu.Unlock()

	out := make([]runner.Snapshot, 0, len(names))
	for _, name := range names {
		if r, ok := runners[name]; ok {
			out = append(out, r.Snapshot())
		}
	}
	return out
}

// Run drives the daemon's full lifetime: it starts every service in
// dependency order, then watches the event bus for faults until ctx is
// cancelled, at which point it performs a graceful shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go o.watchFaults(watchCtx)

	if err := o.startupSequence(ctx); err != nil {
		o.logf("startup failed: %v", err)
		return err
	}

	select {
	case <-ctx.Done():
	case <-o.stopRequested:
	}
	o.logf("shutdown signal received")
	return o.shutdown(context.Background())
}

// startupSequence starts every service layer by layer, waiting within each
// layer for every service's dependencies before issuing its start, and
// only proceeding to the next layer once the current layer's waits and
// starts have resolved.
func (o *Orchestrator) startupSequence(ctx context.Context) error {
	for _, layer := range o.graph.Layers() {
		group, groupCtx := errgroup.WithContext(ctx)
		for _, name := range layer {
			name := name
			group.Go(func() error {
				if err := o.waitDependencies(groupCtx, name); err != nil {
					return fmt.Errorf("service %s: %w", name, err)
				}
				r := o.Runner(name)
				if r == nil {
					return fmt.Errorf("service %s: no runner", name)
				}
				// The runner's exit watcher and health monitor outlive this
				// layer, so they get the daemon's ctx rather than groupCtx,
				// which errgroup cancels as soon as Wait returns.
				return r.Start(ctx)
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// waitDependencies blocks until every declared dependency of name satisfies
// its condition, or returns an error if a dependency settles into a
// terminal state without ever satisfying it.
func (o *Orchestrator) waitDependencies(ctx context.Context, name string) error {
	edges := o.graph.Dependencies(name)
	for _, edge := range edges {
		if err := o.waitOneDependency(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) waitOneDependency(ctx context.Context, edge graph.Edge) error {
	target := o.Runner(edge.Target)
	if target == nil {
		return fmt.Errorf("unknown dependency %s", edge.Target)
	}
	for {
		snap := target.Snapshot()
		if conditionSatisfied(edge.Condition, snap.State) {
			return nil
		}
		if snap.State.Terminal() {
			return fmt.Errorf("dependency %s settled in %s before satisfying %q", edge.Target, snap.State, edge.Condition)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dependencyPollInterval):
		}
	}
}

func conditionSatisfied(condition recipe.DependencyCondition, state runner.State) bool {
	switch condition {
	case recipe.ConditionHealthy:
		return state == runner.Healthy
	default: // started
		switch state {
		case runner.Running, runner.Healthy, runner.Degraded:
			return true
		default:
			return false
		}
	}
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o.sess != nil {
		o.sess.Logf(format, args...)
	}
}
