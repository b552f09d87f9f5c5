// Package cli — up.go implements the "stackd up" command.
//
// The up command loads and validates the stack manifest, checks that
// every declared host port can be bound, creates the stack network and
// named volumes, and then starts the services in dependency order.
//
// In the default foreground mode stackd stays attached as the stack's
// supervisor: it restarts services according to their restart policies,
// and Ctrl-C stops the stack gracefully in reverse dependency order.
// With --detach, containers are started once with the restart handling
// delegated to the Docker daemon, and stackd exits.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stackd/internal/docker"
	"github.com/mmr-tortoise/stackd/internal/logging"
	"github.com/mmr-tortoise/stackd/internal/manifest"
	"github.com/mmr-tortoise/stackd/internal/metrics"
	"github.com/mmr-tortoise/stackd/internal/model"
	"github.com/mmr-tortoise/stackd/internal/port"
	"github.com/mmr-tortoise/stackd/internal/probe"
	"github.com/mmr-tortoise/stackd/internal/supervisor"
)

// stopGraceTimeout bounds the graceful shutdown triggered by a signal.
const stopGraceTimeout = 30 * time.Second

// upFlags holds the flag values for the up command.
type upFlags struct {
	// file is the manifest path; empty means probe the default names.
	file string

	// detach starts the containers and exits instead of supervising.
	detach bool
}

// NewUpCommand creates the "up" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewUpCommand() *cobra.Command {
	flags := &upFlags{}

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start a stack and supervise it",
		Long: `Start every service of the stack in dependency order and keep them
running according to their restart policies.

Without --detach, stackd stays in the foreground as the stack's
supervisor. Service starts, exits, and restarts are logged, and SIGINT
or SIGTERM stops the stack gracefully in reverse dependency order.

With --detach, containers are started once and restart handling is
delegated to the Docker daemon, since no supervisor process remains.

Examples:
  stackd up
  stackd up -f chatbot.yaml
  stackd up --detach`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Manifest file (default: stack.yml, stack.yaml, stack.jsonc, stack.json)")
	cmd.Flags().BoolVarP(&flags.detach, "detach", "d", false, "Start containers and exit; the Docker daemon handles restarts")

	return cmd
}

// runUp is the main logic function for the up command.
func runUp(ctx context.Context, flags *upFlags) error {
	// Step 1: Locate, load, and validate the manifest.
	stack, err := loadStack(flags.file)
	if err != nil {
		return err
	}

	order, err := manifest.StartOrder(stack)
	if err != nil {
		return err // StartOrder returns CLIError with ExitDependencyCycle
	}
	VerboseLog("Start order: %v", order)

	// Step 2: Connect to Docker and verify the daemon is reachable.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 3: Fail fast on host ports that cannot be bound, before any
	// container is created.
	mappings, err := stack.PortMappings()
	if err != nil {
		return model.WrapCLIError(model.ExitManifestInvalid, "invalid port mappings", err)
	}
	checker := port.NewChecker(port.NewScanner())
	if err := checker.CheckBindings(mappings); err != nil {
		return err
	}
	VerboseLog("All %d host ports available", len(mappings))

	// Step 4: Create the stack network and named volumes. Both are
	// idempotent, so repeated `up` runs reuse existing resources (and
	// volume data survives).
	networkName, err := docker.EnsureNetwork(ctx, cli, stack.Name)
	if err != nil {
		return err
	}
	for _, volumeName := range stack.VolumeNames() {
		spec := stack.Volumes[volumeName]
		var labels map[string]string
		if spec != nil {
			labels = spec.Labels
		}
		if err := docker.EnsureVolume(ctx, cli, stack.Name, volumeName, labels); err != nil {
			return err
		}
		VerboseLog("Volume %q ready", docker.VolumeName(stack.Name, volumeName))
	}

	if flags.detach {
		return runUpDetached(ctx, cli, stack, order, networkName)
	}
	return runUpForeground(ctx, cli, stack, networkName)
}

// runUpForeground runs the stack under stackd's own supervisor until a
// signal arrives or every service reaches a terminal state.
func runUpForeground(ctx context.Context, cli *docker.Client, stack *manifest.Stack, networkName string) error {
	logger, err := logging.NewLogger(verbose)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	reporter := newReporter(stack)
	defer reporter.Close()

	runtime := supervisor.NewDockerRuntime(cli, stack, networkName)
	sup := supervisor.New(stack, runtime, logger, reporter)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A signal triggers a graceful stop: restarts are suppressed and the
	// containers go down in reverse dependency order. Cancelling runCtx
	// afterwards releases any goroutine still blocked on a dependency or
	// a restart delay.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Infow("received signal, stopping stack", "signal", sig.String(), "stack", stack.Name)
			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopGraceTimeout)
			defer stopCancel()
			if err := sup.Stop(stopCtx); err != nil {
				logger.Warnw("graceful stop incomplete", "error", err)
			}
			cancel()
		case <-runCtx.Done():
		}
	}()

	logger.Infow("starting stack", "stack", stack.Name, "services", len(stack.Services))
	if err := sup.Run(runCtx); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("supervision of stack %q ended with error", stack.Name), err)
	}

	printUpResult(stack, sup.Snapshot())
	return nil
}

// runUpDetached starts each container once, in dependency order, with
// the daemon's restart policy set from the manifest, then returns.
// Services with readiness probes are waited on before their
// healthy-conditioned dependents start, same as in foreground mode.
func runUpDetached(ctx context.Context, cli *docker.Client, stack *manifest.Stack, order []string, networkName string) error {
	for _, name := range order {
		svc := stack.Services[name]

		ports, err := svc.PortMappings(name)
		if err != nil {
			return model.WrapCLIError(model.ExitManifestInvalid,
				fmt.Sprintf("invalid ports for service %q", name), err)
		}
		mounts, err := svc.VolumeMounts(name)
		if err != nil {
			return model.WrapCLIError(model.ExitManifestInvalid,
				fmt.Sprintf("invalid volumes for service %q", name), err)
		}
		policy, err := svc.RestartPolicy()
		if err != nil {
			return model.WrapCLIError(model.ExitManifestInvalid,
				fmt.Sprintf("invalid restart policy for service %q", name), err)
		}

		VerboseLog("Starting service %q...", name)
		if _, err := docker.CreateServiceContainer(ctx, cli, docker.RunSpec{
			StackName:           stack.Name,
			ServiceName:         name,
			Image:               svc.Image,
			Command:             svc.Command,
			Entrypoint:          svc.Entrypoint,
			Env:                 svc.Environment.Sorted(),
			Ports:               ports,
			Mounts:              mounts,
			NetworkName:         networkName,
			DaemonRestartPolicy: policy,
		}); err != nil {
			return err
		}

		// Only block on the probe when a dependent actually waits for
		// healthiness; otherwise detached startup should not stall on a
		// slow service.
		if svc.Probe != nil && hasHealthyDependents(stack, name) {
			VerboseLog("Waiting for service %q to become ready...", name)
			spec := probe.Spec{
				Type:     svc.Probe.Type,
				Target:   svc.Probe.Target,
				Interval: svc.Probe.IntervalOrDefault(),
				Timeout:  svc.Probe.TimeoutOrDefault(),
				Retries:  svc.Probe.RetriesOrDefault(),
			}
			if err := probe.WaitReady(ctx, spec); err != nil {
				return model.WrapCLIError(model.ExitGeneralError,
					fmt.Sprintf("service %q did not become ready", name), err)
			}
		}
	}

	printUpDetachedResult(stack, order)
	return nil
}

// hasHealthyDependents reports whether any service gates on the named
// service's readiness probe via "condition: healthy".
func hasHealthyDependents(stack *manifest.Stack, name string) bool {
	for _, svc := range stack.Services {
		for _, dep := range svc.DependsOn {
			if dep.Service == name && dep.Condition == manifest.ConditionHealthy {
				return true
			}
		}
	}
	return false
}

// loadStack locates, loads, and validates a manifest. Shared by the up
// and config commands.
func loadStack(explicit string) (*manifest.Stack, error) {
	path, err := manifest.Find(explicit)
	if err != nil {
		return nil, err
	}
	VerboseLog("Using manifest %q", path)

	stack, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(stack); err != nil {
		return nil, err
	}
	return stack, nil
}

// newReporter builds the telemetry reporter from the manifest's metrics
// section; a stack without one gets a disabled reporter.
func newReporter(stack *manifest.Stack) *metrics.Reporter {
	if stack.Metrics == nil {
		return metrics.NewDisabled()
	}
	return metrics.NewReporter(metrics.Config{
		URL:    stack.Metrics.URL,
		Token:  stack.Metrics.Token,
		Org:    stack.Metrics.Org,
		Bucket: stack.Metrics.Bucket,
	}, stack.Name)
}

// printUpResult outputs the final service states after a foreground run
// ends (graceful stop or terminal failures).
func printUpResult(stack *manifest.Stack, snapshot map[string]model.ServiceStatus) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":     stack.Name,
			"action":   "stopped",
			"services": snapshot,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Stack %q stopped\n", stack.Name)
	for _, name := range stack.ServiceNames() {
		fmt.Printf("  %-12s %s\n", name, snapshot[name])
	}
}

// printUpDetachedResult outputs the started services after a detached up.
func printUpDetachedResult(stack *manifest.Stack, order []string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":     stack.Name,
			"action":   "started",
			"detached": true,
			"services": order,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Started stack %q (%d services, detached)\n", stack.Name, len(order))
	for _, name := range order {
		fmt.Printf("  %s\n", docker.ContainerName(stack.Name, name))
	}
}
