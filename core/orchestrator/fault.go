package orchestrator

import (
	"context"
	"sync"

	"krill/core/runner"
)

// watchFaults subscribes to the event bus and applies cascade/emergency-
// stop policy whenever a runner settles into Stopped having exhausted its
// restart budget (or having hit a non-retryable precondition), rather than
// having been told to stop by an operator.
func (o *Orchestrator) watchFaults(ctx context.Context) {
	id, ch := o.bus.Subscribe()
	defer o.bus.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				id, ch = o.bus.Subscribe()
				continue
			}
			if ev.To == "Stopped" && isFaultExhaustion(ev.Reason) {
				o.handleFault(ev.Service)
			}
		}
	}
}

func isFaultExhaustion(reason string) bool {
	return reason == "restart_exhausted" || reason == "non-retryable"
}

// handleFault is invoked once a service's restart budget (or precondition
// check) has been exhausted. A critical service triggers emergency stop;
// any other service cascades a stop to its transitive dependents.
func (o *Orchestrator) handleFault(service string) {
	svc, ok := o.rec.Services[service]
	if !ok {
		return
	}
	if svc.Critical {
		o.EmergencyStop(context.Background(), service)
		return
	}
	o.cascade(context.Background(), service)
}

// cascade stops every transitive dependent of a failed service, in
// reverse-dependency order, leaving the failed service itself untouched
// (it is already settling into Stopped on its own).
func (o *Orchestrator) cascade(ctx context.Context, service string) {
	victims := o.graph.CascadeSet(service)
	if len(victims) == 0 {
		return
	}
	o.logf("%s: cascading stop to %v", service, victims)
	order := o.orderByShutdownLayer(victims)
	for _, layer := range order {
		o.stopLayerConcurrently(ctx, layer)
	}
}

// stopLayerConcurrently issues Stop to every named runner at once and
// waits for all of them, mirroring the startup path's per-layer fan-out.
func (o *Orchestrator) stopLayerConcurrently(ctx context.Context, names []string) {
	var wg sync.WaitGroup
	for _, name := range names {
		r := o.Runner(name)
		if r == nil {
			continue
		}
		wg.Add(1)
		go func(r *runner.Runner) {
			defer wg.Done()
			r.Stop(ctx)
		}(r)
	}
	wg.Wait()
}

// orderByShutdownLayer filters the daemon's global shutdown layering down
// to just the named subset, preserving relative layer order.
func (o *Orchestrator) orderByShutdownLayer(names []string) [][]string {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out [][]string
	for _, layer := range o.graph.ShutdownLayers() {
		var filtered []string
		for _, name := range layer {
			if wanted[name] {
				filtered = append(filtered, name)
			}
		}
		if len(filtered) > 0 {
			out = append(out, filtered)
		}
	}
	return out
}

// EmergencyStop is triggered by a critical service exhausting its restart
// budget. It is irreversible within this daemon's lifetime: every runner
// is forbidden from auto-restarting, then every service is stopped in
// shutdown-layer order. The daemon remains responsive on IPC throughout.
func (o *Orchestrator) EmergencyStop(ctx context.Context, trigger string) {
	o.mu.Lock()
	if o.emergencyStopped {
		o.mu.Unlock()
		return
	}
	o.emergencyStopped = true
	runners := o.runners
	o.mu.Unlock()

	o.logf("emergency stop triggered by critical service %s", trigger)
	for _, r := range runners {
		r.DisableAutoRestart()
	}
	for _, layer := range o.graph.ShutdownLayers() {
		o.stopLayerConcurrently(ctx, layer)
	}
}

// EmergencyStopped reports whether emergency stop has been armed.
func (o *Orchestrator) EmergencyStopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.emergencyStopped
}
