package orchestrator

import (
	"context"
	"fmt"
)

// Action identifies one of the external commands the orchestrator serves
// over IPC.
type Action string

const (
	ActionStart      Action = "start"
	ActionStop       Action = "stop"
	ActionRestart    Action = "restart"
	ActionKill       Action = "kill"
	ActionStopDaemon Action = "stop_daemon"
)

// Dispatch applies one external command to a named service (stop_daemon
// ignores target). It is the single entry point IPC command handling
// calls into.
func (o *Orchestrator) Dispatch(ctx context.Context, action Action, target string) error {
	if action == ActionStopDaemon {
		return o.GracefulShutdown(ctx)
	}

	r := o.Runner(target)
	if r == nil {
		return fmt.Errorf("unknown service %q", target)
	}

	switch action {
	case ActionStart:
		return r.Start(ctx)
	case ActionStop:
		return r.Stop(ctx)
	case ActionKill:
		return r.Kill(ctx)
	case ActionRestart:
		if err := r.Stop(ctx); err != nil {
			return err
		}
		if err := o.waitDependencies(ctx, target); err != nil {
			return err
		}
		return r.Start(ctx)
	default:
		return fmt.Errorf("unknown command action %q", action)
	}
}

// GracefulShutdown stops every service in shutdown-layer order, awaiting
// each layer before beginning the next, and wakes Run's blocked wait if it
// is still running in this same process. Triggered by SIGINT/SIGTERM to the
// daemon or by the stop_daemon command; idempotent if both happen.
func (o *Orchestrator) GracefulShutdown(ctx context.Context) error {
	o.stopOnce.Do(func() { close(o.stopRequested) })
	return o.shutdown(ctx)
}

func (o *Orchestrator) shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		for _, layer := range o.graph.ShutdownLayers() {
			o.stopLayerConcurrently(ctx, layer)
		}
		if o.sess != nil {
			o.shutdownErr = o.sess.Close()
		}
	})
	return o.shutdownErr
}
