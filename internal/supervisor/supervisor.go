package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mmr-tortoise/stackd/internal/manifest"
	"github.com/mmr-tortoise/stackd/internal/metrics"
	"github.com/mmr-tortoise/stackd/internal/model"
	"github.com/mmr-tortoise/stackd/internal/probe"
)

// Runtime abstracts the container operations the supervisor performs,
// decoupling supervision logic from the Docker SDK. The production
// implementation is DockerRuntime; tests use an in-memory fake.
type Runtime interface {
	// StartService creates and starts the container for a service,
	// returning its container ID.
	StartService(ctx context.Context, service string) (string, error)

	// WaitService blocks until the container exits and returns its
	// exit code, or ctx's error on cancellation.
	WaitService(ctx context.Context, containerID string) (int64, error)

	// StopService gracefully stops a running container.
	StopService(ctx context.Context, containerID string) error
}

// Supervisor drives a whole stack: one goroutine per service, gated on
// dependency channels, each looping start → wait → restart-decision
// until a terminal state or shutdown.
type Supervisor struct {
	stack    *manifest.Stack
	runtime  Runtime
	logger   *zap.SugaredLogger
	reporter *metrics.Reporter

	mu       sync.Mutex
	configs  map[string]serviceConfig
	states   map[string]*serviceState
	stopping atomic.Bool
}

// New builds a Supervisor for a validated stack. The reporter may be a
// disabled one; the logger must not be nil.
func New(stack *manifest.Stack, runtime Runtime, logger *zap.SugaredLogger, reporter *metrics.Reporter) *Supervisor {
	configs := make(map[string]serviceConfig, len(stack.Services))
	states := make(map[string]*serviceState, len(stack.Services))
	for _, name := range stack.ServiceNames() {
		configs[name] = newServiceConfig(name, stack.Services[name])
		states[name] = newServiceState()
	}

	return &Supervisor{
		stack:    stack,
		runtime:  runtime,
		logger:   logger,
		reporter: reporter,
		configs:  configs,
		states:   states,
	}
}

// Run supervises the stack until ctx is cancelled or every service has
// reached a terminal state (stopped or failed). The error returned is
// nil for a clean shutdown; service failures are reflected in Snapshot
// rather than aborting the other services' supervision.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, name := range s.stack.ServiceNames() {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			s.supervise(ctx, name)
		}(name)
	}

	wg.Wait()
	return nil
}

// Stop initiates a graceful shutdown: restarts are suppressed, then the
// services' containers are stopped in reverse dependency order so
// dependents go down before the stores they talk to.
//
// Stop is typically called from a signal handler while Run is blocked;
// Run returns once every supervision goroutine has observed its
// container exit.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopping.Store(true)

	order, err := manifest.StopOrder(s.stack)
	if err != nil {
		return err
	}

	for _, name := range order {
		s.mu.Lock()
		id := s.states[name].containerID
		status := s.states[name].status
		s.mu.Unlock()

		if id == "" || (status != model.StatusRunning && status != model.StatusStarting) {
			continue
		}

		s.logger.Infow("stopping service", "service", name)
		if err := s.runtime.StopService(ctx, id); err != nil {
			s.logger.Warnw("failed to stop service", "service", name, "error", err)
		}
	}

	return nil
}

// Snapshot returns the current status of every service, keyed by
// service name.
func (s *Supervisor) Snapshot() map[string]model.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(map[string]model.ServiceStatus, len(s.states))
	for name, st := range s.states {
		snap[name] = st.status
	}
	return snap
}

// supervise is the per-service loop. It blocks on dependencies, then
// repeatedly starts the container, waits for it to exit, and applies
// the restart policy until a terminal state or shutdown.
func (s *Supervisor) supervise(ctx context.Context, name string) {
	cfg := s.configs[name]
	state := s.states[name]

	if err := s.awaitDependencies(ctx, cfg); err != nil {
		// Shutdown while waiting — the service never started, nothing
		// to clean up.
		s.setStatus(name, model.StatusStopped)
		return
	}

	delay := cfg.delay

	for {
		s.setStatus(name, model.StatusStarting)
		s.logger.Infow("starting service", "service", name, "attempt", state.attempts)

		startedAt := time.Now()
		containerID, err := s.runtime.StartService(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				s.setStatus(name, model.StatusStopped)
				return
			}
			s.logger.Errorw("failed to start service", "service", name, "error", err)
			if !s.scheduleRestart(ctx, name, cfg, &delay) {
				return
			}
			continue
		}

		s.mu.Lock()
		state.containerID = containerID
		s.mu.Unlock()

		s.reportEvent(func(c context.Context) error { return s.reporter.ServiceStart(c, name) })
		state.markStarted()

		// Probe-gated services only count as healthy (and unblock
		// healthy-conditioned dependents) once the probe passes.
		ready := true
		if cfg.probe != nil {
			if err := probe.WaitReady(ctx, *cfg.probe); err != nil {
				if ctx.Err() != nil {
					s.setStatus(name, model.StatusStopped)
					return
				}
				ready = false
				s.logger.Errorw("service failed readiness probe", "service", name, "error", err)
				// Stop the container; the wait below returns promptly
				// and the restart policy decides what happens next.
				_ = s.runtime.StopService(ctx, containerID)
			} else {
				s.logger.Infow("service ready", "service", name)
			}
		}
		if ready {
			state.markHealthy()
			s.setStatus(name, model.StatusRunning)
		}

		exitCode, err := s.runtime.WaitService(ctx, containerID)
		if err != nil {
			// Cancellation means shutdown; Stop (or down) owns the
			// container from here.
			s.setStatus(name, model.StatusStopped)
			return
		}

		uptime := time.Since(startedAt)
		s.logger.Warnw("service exited", "service", name, "exitCode", exitCode, "uptime", uptime)
		s.reportEvent(func(c context.Context) error { return s.reporter.ServiceExit(c, name, exitCode) })

		// A stable run clears the crash-loop accounting.
		if uptime >= stableRunWindow {
			state.attempts = 0
			delay = cfg.delay
		}

		if !cfg.policy.ShouldRestart(exitCode, s.stopping.Load()) {
			if exitCode == 0 || s.stopping.Load() {
				s.setStatus(name, model.StatusStopped)
			} else {
				s.setStatus(name, model.StatusFailed)
			}
			return
		}

		if !s.scheduleRestart(ctx, name, cfg, &delay) {
			return
		}
	}
}

// awaitDependencies blocks until every depends_on edge is satisfied:
// the dependency's started channel for plain edges, its healthy channel
// for probe-gated edges. Returns ctx.Err() on shutdown.
func (s *Supervisor) awaitDependencies(ctx context.Context, cfg serviceConfig) error {
	for _, dep := range cfg.dependsOn {
		depState, ok := s.states[dep.Service]
		if !ok {
			// Validation guarantees declared dependencies; an unknown
			// one here is a programming error, not a user error.
			return fmt.Errorf("unknown dependency %q", dep.Service)
		}

		gate := depState.startedCh
		if dep.Condition == manifest.ConditionHealthy {
			gate = depState.healthyCh
		}

		s.logger.Debugw("waiting for dependency",
			"service", cfg.name, "dependency", dep.Service, "condition", dep.Condition)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gate:
		}
	}
	return nil
}

// scheduleRestart applies the retry budget and delay before the next
// start attempt. It returns false when supervision should end (budget
// exhausted, shutdown in progress, or ctx cancelled), updating the
// service status accordingly.
func (s *Supervisor) scheduleRestart(ctx context.Context, name string, cfg serviceConfig, delay *time.Duration) bool {
	if s.stopping.Load() {
		s.setStatus(name, model.StatusStopped)
		return false
	}

	state := s.states[name]
	state.attempts++

	if cfg.maxRetries > 0 && state.attempts > cfg.maxRetries {
		s.logger.Errorw("service exceeded restart budget",
			"service", name, "maxRetries", cfg.maxRetries)
		s.setStatus(name, model.StatusFailed)
		return false
	}

	s.setStatus(name, model.StatusRestarting)
	s.logger.Infow("restarting service",
		"service", name, "attempt", state.attempts, "delay", *delay)
	s.reportEvent(func(c context.Context) error { return s.reporter.ServiceRestart(c, name, state.attempts) })

	select {
	case <-ctx.Done():
		s.setStatus(name, model.StatusStopped)
		return false
	case <-time.After(*delay):
	}

	// Grow the delay for the next consecutive restart. The default
	// backoff rate of 1.0 keeps the delay fixed, reproducing plain
	// unconditional-restart behavior.
	*delay = time.Duration(float64(*delay) * cfg.backoff)

	return true
}

// setStatus updates a service's status under the lock.
func (s *Supervisor) setStatus(name string, status model.ServiceStatus) {
	s.mu.Lock()
	s.states[name].status = status
	s.mu.Unlock()
}

// reportEvent runs one best-effort telemetry write with a short
// deadline detached from the supervision context, so a slow metrics
// endpoint cannot stall supervision and shutdown doesn't lose the
// final exit events.
func (s *Supervisor) reportEvent(write func(context.Context) error) {
	if !s.reporter.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := write(ctx); err != nil {
		s.logger.Debugw("metrics write failed", "error", err)
	}
}
