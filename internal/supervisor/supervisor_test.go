package supervisor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stackd/internal/logging"
	"github.com/mmr-tortoise/stackd/internal/manifest"
	"github.com/mmr-tortoise/stackd/internal/metrics"
	"github.com/mmr-tortoise/stackd/internal/model"
)

// fakeRuntime implements Runtime in memory. Each service has a buffered
// exit-code channel; WaitService blocks on it, so tests script container
// lifetimes by feeding exit codes (or not feeding any, for a container
// that stays up).
type fakeRuntime struct {
	mu       sync.Mutex
	starts   []string
	stops    int
	exits    map[string]chan int64
	services map[string]string
	seq      int
}

func newFakeRuntime(services ...string) *fakeRuntime {
	exits := make(map[string]chan int64, len(services))
	for _, s := range services {
		exits[s] = make(chan int64, 8)
	}
	return &fakeRuntime{
		exits:    exits,
		services: make(map[string]string),
	}
}

func (f *fakeRuntime) StartService(_ context.Context, service string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("%s-%d", service, f.seq)
	f.starts = append(f.starts, service)
	f.services[id] = service
	return id, nil
}

func (f *fakeRuntime) WaitService(ctx context.Context, containerID string) (int64, error) {
	f.mu.Lock()
	ch := f.exits[f.services[containerID]]
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case code := <-ch:
		return code, nil
	}
}

func (f *fakeRuntime) StopService(_ context.Context, containerID string) error {
	f.mu.Lock()
	ch := f.exits[f.services[containerID]]
	f.stops++
	f.mu.Unlock()
	ch <- 137
	return nil
}

// exitWith scripts the next container exit for a service.
func (f *fakeRuntime) exitWith(service string, code int64) {
	f.exits[service] <- code
}

func (f *fakeRuntime) startOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starts...)
}

func (f *fakeRuntime) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func testSupervisor(t *testing.T, services map[string]*manifest.Service) (*Supervisor, *fakeRuntime) {
	t.Helper()

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	rt := newFakeRuntime(names...)

	stack := &manifest.Stack{Name: "test", Services: services}
	sup := New(stack, rt, logging.NewNopLogger(), metrics.NewDisabled())
	return sup, rt
}

// runAsync starts Run on a background goroutine and returns a channel
// that closes when it returns.
func runAsync(ctx context.Context, sup *Supervisor) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sup.Run(ctx)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not finish in time")
	}
}

// TestSupervisor_StartsInDependencyOrder verifies that a dependent
// service is not started until its dependency's container is up.
func TestSupervisor_StartsInDependencyOrder(t *testing.T) {
	sup, rt := testSupervisor(t, map[string]*manifest.Service{
		"db": {Image: "postgres:12-alpine"},
		"api": {
			Image: "example/api:latest",
			DependsOn: manifest.DependencyList{
				{Service: "db", Condition: manifest.ConditionStarted},
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, sup)

	require.Eventually(t, func() bool {
		return rt.startCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"db", "api"}, rt.startOrder())

	cancel()
	waitDone(t, done)
}

// TestSupervisor_RestartAlways verifies that an always-restart service
// is restarted after each crash and ends up running again.
func TestSupervisor_RestartAlways(t *testing.T) {
	sup, rt := testSupervisor(t, map[string]*manifest.Service{
		"bot": {
			Image:        "example/bot:latest",
			Restart:      "always",
			RestartDelay: 5 * time.Millisecond,
		},
	})

	// Two crashes queued up; the third container stays up.
	rt.exitWith("bot", 1)
	rt.exitWith("bot", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, sup)

	require.Eventually(t, func() bool {
		return rt.startCount() == 3 && sup.Snapshot()["bot"] == model.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitDone(t, done)
}

// TestSupervisor_PolicyNoLeavesServiceDown verifies that "restart: no"
// performs a single run and supervision ends with the stack.
func TestSupervisor_PolicyNoLeavesServiceDown(t *testing.T) {
	sup, rt := testSupervisor(t, map[string]*manifest.Service{
		"job": {Image: "example/job:latest", Restart: "no"},
	})
	rt.exitWith("job", 0)

	done := runAsync(context.Background(), sup)
	waitDone(t, done)

	assert.Equal(t, 1, rt.startCount())
	assert.Equal(t, model.StatusStopped, sup.Snapshot()["job"])
}

// TestSupervisor_OnFailureIgnoresCleanExit verifies that on-failure does
// not restart a container that exited with code zero.
func TestSupervisor_OnFailureIgnoresCleanExit(t *testing.T) {
	sup, rt := testSupervisor(t, map[string]*manifest.Service{
		"job": {Image: "example/job:latest", Restart: "on-failure"},
	})
	rt.exitWith("job", 0)

	done := runAsync(context.Background(), sup)
	waitDone(t, done)

	assert.Equal(t, 1, rt.startCount())
	assert.Equal(t, model.StatusStopped, sup.Snapshot()["job"])
}

// TestSupervisor_RetryBudgetExhausted verifies that max_retries bounds
// consecutive restarts and the service ends failed.
func TestSupervisor_RetryBudgetExhausted(t *testing.T) {
	sup, rt := testSupervisor(t, map[string]*manifest.Service{
		"bot": {
			Image:        "example/bot:latest",
			Restart:      "on-failure",
			RestartDelay: 5 * time.Millisecond,
			MaxRetries:   2,
		},
	})
	rt.exitWith("bot", 1)
	rt.exitWith("bot", 1)
	rt.exitWith("bot", 1)

	done := runAsync(context.Background(), sup)
	waitDone(t, done)

	// One initial start plus two retries; the third crash exhausts the
	// budget.
	assert.Equal(t, 3, rt.startCount())
	assert.Equal(t, model.StatusFailed, sup.Snapshot()["bot"])
}

// TestSupervisor_StopSuppressesRestart verifies that a graceful Stop
// ends supervision without triggering the always policy.
func TestSupervisor_StopSuppressesRestart(t *testing.T) {
	sup, rt := testSupervisor(t, map[string]*manifest.Service{
		"bot": {Image: "example/bot:latest", Restart: "always"},
	})

	done := runAsync(context.Background(), sup)

	require.Eventually(t, func() bool {
		return sup.Snapshot()["bot"] == model.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sup.Stop(context.Background()))
	waitDone(t, done)

	assert.Equal(t, 1, rt.startCount())
	assert.Equal(t, model.StatusStopped, sup.Snapshot()["bot"])
}

// TestSupervisor_HealthyConditionWaitsForProbe verifies that a healthy
// edge gates the dependent on the dependency's probe passing. A local
// TCP listener stands in for the dependency's ready endpoint.
func TestSupervisor_HealthyConditionWaitsForProbe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	sup, rt := testSupervisor(t, map[string]*manifest.Service{
		"db": {
			Image: "postgres:12-alpine",
			Probe: &manifest.Probe{
				Type:     "tcp",
				Target:   listener.Addr().String(),
				Interval: 10 * time.Millisecond,
				Timeout:  100 * time.Millisecond,
				Retries:  5,
			},
		},
		"bot": {
			Image: "example/bot:latest",
			DependsOn: manifest.DependencyList{
				{Service: "db", Condition: manifest.ConditionHealthy},
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, sup)

	require.Eventually(t, func() bool {
		return rt.startCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"db", "bot"}, rt.startOrder())

	cancel()
	waitDone(t, done)
}

// TestSupervisor_FailedProbeBlocksHealthyDependents verifies that a
// dependency whose probe never passes keeps its healthy-conditioned
// dependents from ever starting.
func TestSupervisor_FailedProbeBlocksHealthyDependents(t *testing.T) {
	sup, rt := testSupervisor(t, map[string]*manifest.Service{
		"db": {
			Image:   "postgres:12-alpine",
			Restart: "no",
			Probe: &manifest.Probe{
				Type:     "tcp",
				Target:   "127.0.0.1:1", // nothing listens here
				Interval: 10 * time.Millisecond,
				Timeout:  100 * time.Millisecond,
				Retries:  2,
			},
		},
		"bot": {
			Image: "example/bot:latest",
			DependsOn: manifest.DependencyList{
				{Service: "db", Condition: manifest.ConditionHealthy},
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, sup)

	require.Eventually(t, func() bool {
		status := sup.Snapshot()["db"]
		return status == model.StatusFailed || status == model.StatusStopped
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"db"}, rt.startOrder(), "bot must not start behind a failed probe")

	cancel()
	waitDone(t, done)
}
