package supervisor

import (
	"sync"
	"time"

	"github.com/mmr-tortoise/stackd/internal/manifest"
	"github.com/mmr-tortoise/stackd/internal/model"
	"github.com/mmr-tortoise/stackd/internal/probe"
)

// stableRunWindow is how long a container must stay up before its
// consecutive-restart counter resets. Without the reset, a service that
// crashes once a day would eventually exhaust a finite retry budget
// meant for crash loops.
const stableRunWindow = 60 * time.Second

// serviceConfig is the supervision plan for one service, precomputed
// from the manifest when the Supervisor is built.
type serviceConfig struct {
	name       string
	policy     model.RestartPolicy
	delay      time.Duration
	backoff    float64
	maxRetries int
	probe      *probe.Spec
	dependsOn  []manifest.Dependency
}

// newServiceConfig normalizes one manifest service into its supervision
// plan. The manifest must already be validated; the restart policy
// parse here cannot fail on a validated stack.
func newServiceConfig(name string, svc *manifest.Service) serviceConfig {
	policy, err := svc.RestartPolicy()
	if err != nil {
		policy = model.RestartAlways
	}

	cfg := serviceConfig{
		name:       name,
		policy:     policy,
		delay:      svc.RestartDelayOrDefault(),
		backoff:    svc.BackoffRateOrDefault(),
		maxRetries: svc.MaxRetries,
		dependsOn:  svc.DependsOn,
	}

	if svc.Probe != nil {
		cfg.probe = &probe.Spec{
			Type:     svc.Probe.Type,
			Target:   svc.Probe.Target,
			Interval: svc.Probe.IntervalOrDefault(),
			Timeout:  svc.Probe.TimeoutOrDefault(),
			Retries:  svc.Probe.RetriesOrDefault(),
		}
	}

	return cfg
}

// serviceState tracks the live supervision state of one service. All
// access goes through the owning Supervisor's mutex.
type serviceState struct {
	status      model.ServiceStatus
	containerID string
	attempts    int

	// startedCh closes the first time the service's container is up;
	// healthyCh closes when the probe passes (for probe-less services
	// both close together). Dependents block on these.
	startedCh chan struct{}
	healthyCh chan struct{}

	startedOnce sync.Once
	healthyOnce sync.Once
}

func newServiceState() *serviceState {
	return &serviceState{
		status:    model.StatusPending,
		startedCh: make(chan struct{}),
		healthyCh: make(chan struct{}),
	}
}

// markStarted closes the started channel, unblocking dependents with
// plain depends_on edges. Idempotent across restarts.
func (s *serviceState) markStarted() {
	s.startedOnce.Do(func() { close(s.startedCh) })
}

// markHealthy closes the healthy channel, unblocking dependents with
// "condition: healthy" edges. Idempotent across restarts.
func (s *serviceState) markHealthy() {
	s.healthyOnce.Do(func() { close(s.healthyCh) })
}
