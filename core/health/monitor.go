package health

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"krill/core/recipe"
)

// Monitor drives the probe loop for one service's health check.
type Monitor struct {
	kind      recipe.HealthCheckType
	heartbeat *Heartbeat
	prober    Prober
	limiter   *rate.Limiter
}

// New builds the monitor for a service's health check configuration.
func New(check *recipe.HealthCheck) *Monitor {
	period := probePeriod(check.Timeout)
	m := &Monitor{kind: check.Type, limiter: rate.NewLimiter(rate.Every(period), 1)}
	switch check.Type {
	case recipe.HealthHeartbeat:
		m.heartbeat = NewHeartbeat(check.Timeout)
	case recipe.HealthTCP:
		m.prober = NewTCPProbe(check.Port, check.Timeout)
	case recipe.HealthHTTP:
		m.prober = NewHTTPProbe(check.Port, check.Path, check.ExpectedStatus, check.Timeout)
	case recipe.HealthScript:
		m.prober = NewScriptProbe(check.Command, check.Timeout)
	}
	return m
}

// probePeriod defaults the probe cadence to min(1s, probe-specific timeout).
func probePeriod(timeout time.Duration) time.Duration {
	if timeout <= 0 || timeout > time.Second {
		return time.Second
	}
	return timeout
}

// Heartbeat exposes the passive heartbeat sink for IPC ingestion; it is
// nil for every variant other than "heartbeat".
func (m *Monitor) Heartbeat() *Heartbeat {
	return m.heartbeat
}

// Run drives the probe loop until ctx is cancelled, delivering each
// verdict to onVerdict. The heartbeat variant polls its own passively-
// updated state on the same cadence rather than performing active I/O.
func (m *Monitor) Run(ctx context.Context, onVerdict func(Verdict)) {
	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		onVerdict(m.verdict())
	}
}

func (m *Monitor) verdict() Verdict {
	if m.heartbeat != nil {
		return m.heartbeat.Verdict()
	}
	return m.prober.Probe()
}
