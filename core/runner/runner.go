package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"krill/core/events"
	"krill/core/health"
	"krill/core/process"
	"krill/core/recipe"
	"krill/core/session"
	"krill/core/spawn"
)

// healthyResetWindow is the "stays Healthy continuously for 60 seconds"
// counter reset rule, made uniform across restart modes.
const healthyResetWindow = 60 * time.Second

// Snapshot is a copy-on-read view of a runner's state, safe to pass
// around without holding any lock.
type Snapshot struct {
	Service       string
	State         State
	PID           int
	PGID          int
	RestartCount  int
	LastExitCode  int
	LastError     string
	LastHeartbeat time.Time
	NonRetryable  bool
}

// Runner owns the lifecycle of exactly one service. It holds no pointer to
// the orchestrator; it only publishes events to the shared bus, so
// supervisors can fan out state changes without holding runner references.
type Runner struct {
	workspace string
	svc       *recipe.Service
	globalEnv map[string]string
	bus       *events.Bus
	sess      *session.Session
	ringCap   int

	mu                sync.Mutex
	state             State
	proc              *process.Process
	stopPlan          *spawn.Plan
	restartCount      int
	lastExitCode      int
	lastErr           string
	nonRetryable      bool
	everHealthy       bool
	consecutiveFails  int
	noAutoRestart     bool
	healthyTimer      *time.Timer
	monitorCancel     context.CancelFunc
	monitor           *health.Monitor
	monitorStartedAt  time.Time
}

// New creates a runner in the Unknown state; Arm must be called once,
// before any Start, to move it to Pending.
func New(workspace string, svc *recipe.Service, globalEnv map[string]string, bus *events.Bus, sess *session.Session, ringCap int) *Runner {
	return &Runner{
		workspace: workspace,
		svc:       svc,
		globalEnv: globalEnv,
		bus:       bus,
		sess:      sess,
		ringCap:   ringCap,
		state:     Unknown,
	}
}

// Arm transitions Unknown -> Pending. Call once, before any Start.
func (r *Runner) Arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Unknown {
		r.setStateLocked(Pending, "")
	}
}

func (r *Runner) Name() string { return r.svc.Name }

// Snapshot returns a copy-on-read view of the runner's current state.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		Service:      r.svc.Name,
		State:        r.state,
		RestartCount: r.restartCount,
		LastExitCode: r.lastExitCode,
		LastError:    r.lastErr,
		NonRetryable: r.nonRetryable,
	}
	if r.proc != nil {
		s.PID = r.proc.PID
		s.PGID = r.proc.PGID
	}
	return s
}

// Heartbeat exposes the passive heartbeat sink for IPC ingestion, or nil
// if this service's health check is not the heartbeat variant.
func (r *Runner) Heartbeat() *health.Heartbeat {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.monitor == nil {
		return nil
	}
	return r.monitor.Heartbeat()
}

// LogTail returns the current contents of the live process's in-memory log
// ring, oldest first, or nil if the service has no running process.
func (r *Runner) LogTail() []process.LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil {
		return nil
	}
	return r.proc.Ring.Snapshot()
}

func (r *Runner) setStateLocked(to State, reason string) {
	from := r.state
	r.state = to
	ev := events.Event{Service: r.svc.Name, From: string(from), To: string(to), Timestamp: time.Now(), Reason: reason}
	if r.bus != nil {
		r.bus.Publish(ev)
	}
	if r.sess != nil {
		r.sess.Logf("%s: %s -> %s%s", r.svc.Name, from, to, reasonSuffix(reason))
	}
	switch to {
	case Healthy:
		r.armHealthyTimer()
	default:
		r.disarmHealthyTimer()
	}
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return " (" + reason + ")"
}

func (r *Runner) armHealthyTimer() {
	r.disarmHealthyTimerLocked()
	r.healthyTimer = time.AfterFunc(healthyResetWindow, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.state == Healthy {
			r.restartCount = 0
		}
	})
}

func (r *Runner) disarmHealthyTimer() {
	r.disarmHealthyTimerLocked()
}

func (r *Runner) disarmHealthyTimerLocked() {
	if r.healthyTimer != nil {
		r.healthyTimer.Stop()
		r.healthyTimer = nil
	}
}

// Start begins (or idempotently no-ops on) a service. Testable property 6:
// starting an already-Running/Healthy/Degraded service is a no-op success.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case Running, Healthy, Degraded, Starting:
		r.mu.Unlock()
		return nil
	}
	if r.svc.GPU && !process.GPUAvailable() {
		r.nonRetryable = true
		r.lastErr = "gpu unavailable"
		r.setStateLocked(Faulted, "gpu unavailable")
		r.mu.Unlock()
		r.afterFault(ctx)
		return fmt.Errorf("service %s: gpu unavailable", r.svc.Name)
	}
	r.nonRetryable = false
	r.everHealthy = false
	r.consecutiveFails = 0
	r.setStateLocked(Starting, "")
	r.mu.Unlock()

	plan, err := spawn.Build(r.globalEnv, r.svc)
	if err != nil {
		r.mu.Lock()
		r.nonRetryable = true
		r.lastErr = err.Error()
		r.setStateLocked(Faulted, err.Error())
		r.mu.Unlock()
		r.afterFault(ctx)
		return err
	}

	name := process.Name(r.workspace, r.svc.Name)
	onLine := func(line process.LogLine) {
		if r.sess != nil {
			r.sess.ServiceLine(r.svc.Name, line.Stream, line.Text)
		}
	}
	proc, err := process.Spawn(plan, name, r.ringCap, onLine)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err.Error()
		r.setStateLocked(Faulted, err.Error())
		r.mu.Unlock()
		r.afterFault(ctx)
		return err
	}

	r.mu.Lock()
	r.proc = proc
	r.stopPlan = plan.Stop
	r.setStateLocked(Running, "")
	if r.svc.HealthCheck != nil {
		r.startHealthMonitor(ctx)
	}
	r.mu.Unlock()

	go r.awaitExit(ctx, proc)
	return nil
}

func (r *Runner) startHealthMonitor(ctx context.Context) {
	r.monitor = health.New(r.svc.HealthCheck)
	r.monitorStartedAt = time.Now()
	monitorCtx, cancel := context.WithCancel(ctx)
	r.monitorCancel = cancel
	go r.monitor.Run(monitorCtx, r.onVerdict)
}

// startingGrace is how long a probe is allowed to fail without counting
// against the failure threshold before the service has ever gone healthy,
// giving a slow-starting process time to come up. It defaults to the
// check's own timeout, the same duration the probe itself uses to decide
// pass/fail, so a heartbeat that never arrives stops being lenient exactly
// when it would first be considered overdue.
func (r *Runner) startingGrace() time.Duration {
	if r.svc.HealthCheck != nil && r.svc.HealthCheck.Timeout > 0 {
		return r.svc.HealthCheck.Timeout
	}
	return time.Second
}

func (r *Runner) onVerdict(v health.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := 1
	if r.svc.HealthCheck != nil && r.svc.HealthCheck.ConsecutiveFailures > 0 {
		threshold = r.svc.HealthCheck.ConsecutiveFailures
	}

	if v.Passing {
		r.consecutiveFails = 0
		r.everHealthy = true
		if r.svc.HealthCheck != nil && r.svc.HealthCheck.Type == recipe.HealthHeartbeat && v.Status == "degraded" {
			if r.state == Healthy || r.state == Running || r.state == Starting {
				r.setStateLocked(Degraded, "heartbeat reported degraded")
			}
			return
		}
		if r.state == Running || r.state == Starting || r.state == Degraded {
			r.setStateLocked(Healthy, "")
		}
		return
	}

	// Before the first passing probe, a failure only gets a pass if it's
	// still within the starting grace window; once that elapses, a probe
	// that has never passed counts against the threshold like any other.
	if !r.everHealthy && time.Since(r.monitorStartedAt) < r.startingGrace() {
		return
	}

	r.consecutiveFails++
	if r.consecutiveFails < threshold {
		if r.state == Healthy {
			r.setStateLocked(Degraded, "probe failed")
		}
		return
	}

	if !r.state.Live() {
		return
	}
	r.lastErr = "health check failed"
	r.setStateLocked(Faulted, "health check exhausted recovery")
	r.disarmMonitorLocked()
	proc := r.proc
	go func() {
		if proc != nil {
			proc.Kill()
		}
	}()
}

func (r *Runner) disarmMonitorLocked() {
	if r.monitorCancel != nil {
		r.monitorCancel()
		r.monitorCancel = nil
	}
}

func (r *Runner) awaitExit(ctx context.Context, proc *process.Process) {
	result, err := proc.Wait(ctx)
	if err != nil {
		return
	}

	r.mu.Lock()
	if r.state == Stopping {
		r.setStateLocked(Stopped, "")
		r.mu.Unlock()
		return
	}
	r.disarmMonitorLocked()
	r.lastExitCode = result.ExitCode
	if result.Err == nil && result.ExitCode == 0 {
		r.setStateLocked(Completed, "")
		r.mu.Unlock()
		return
	}
	if result.Signal != "" {
		r.lastErr = fmt.Sprintf("killed by signal %s", result.Signal)
	} else {
		r.lastErr = fmt.Sprintf("exited with code %d", result.ExitCode)
	}
	r.setStateLocked(Faulted, r.lastErr)
	r.mu.Unlock()

	r.afterFault(ctx)
}

// afterFault evaluates the restart decision on entry to Faulted. It must
// be called without holding r.mu.
func (r *Runner) afterFault(ctx context.Context) {
	r.mu.Lock()
	if r.nonRetryable || r.noAutoRestart {
		r.setStateLocked(Stopped, "non-retryable")
		r.mu.Unlock()
		return
	}

	policy := r.svc.Restart
	restart := false
	switch policy.Mode {
	case recipe.RestartNever:
		restart = false
	case recipe.RestartAlways, recipe.RestartOnFailure:
		restart = policy.MaxRestarts == 0 || r.restartCount < policy.MaxRestarts
	}

	if !restart {
		r.setStateLocked(Stopped, "restart_exhausted")
		r.mu.Unlock()
		return
	}

	r.restartCount++
	delay := policy.RestartDelay
	if delay <= 0 {
		delay = time.Second
	}
	r.mu.Unlock()

	timer := time.NewTimer(delay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return
	}

	r.mu.Lock()
	if r.state != Faulted || r.noAutoRestart {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.Start(ctx)
}

// Stop runs the termination ladder. Idempotent: stopping an
// already-Stopped/Completed service is a no-op (testable property 6).
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return nil
	}
	if !r.state.Live() {
		r.setStateLocked(Stopped, "")
		r.mu.Unlock()
		return nil
	}
	r.disarmMonitorLocked()
	proc := r.proc
	stopPlan := r.stopPlan
	stopTimeout := r.svc.Restart.StopTimeout
	r.setStateLocked(Stopping, "")
	r.mu.Unlock()

	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	var stopErr error
	if proc != nil {
		stopErr = proc.Stop(ctx, stopPlan, stopTimeout)
	}

	r.mu.Lock()
	if r.state == Stopping {
		r.setStateLocked(Stopped, "")
	}
	r.mu.Unlock()
	return stopErr
}

// Kill skips the graceful stop plan and signal escalation, going straight
// to SIGKILL of the process group.
func (r *Runner) Kill(ctx context.Context) error {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return nil
	}
	r.disarmMonitorLocked()
	proc := r.proc
	r.setStateLocked(Stopping, "kill")
	r.mu.Unlock()

	var killErr error
	if proc != nil {
		killErr = proc.Kill()
		proc.Wait(ctx)
	}

	r.mu.Lock()
	if r.state == Stopping {
		r.setStateLocked(Stopped, "")
	}
	r.mu.Unlock()
	return killErr
}

// DisableAutoRestart forbids future automatic restarts for the remainder
// of the daemon's lifetime, used when emergency stop is armed.
func (r *Runner) DisableAutoRestart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noAutoRestart = true
}
