// container.go implements Docker container lifecycle operations for the
// stackd CLI: creating service containers with their environment, port
// bindings, mounts, and labels; starting, stopping, and removing them;
// waiting for exits; and discovering managed containers by label.
//
// The SDK-level restart policy is deliberately left disabled on every
// container stackd creates: restart decisions belong to the stackd
// supervisor, which implements the stack's restart policies itself and
// records each restart. Handing that to the daemon would hide exits from
// the supervisor.
package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/go-connections/nat"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// RunSpec is the normalized description of one service container,
// produced from the manifest by the CLI/supervisor layers. Everything
// the Docker API needs is resolved here: the env map is flattened, named
// volumes carry their stack-prefixed Docker names, and the network name
// is final.
type RunSpec struct {
	StackName   string
	ServiceName string
	Image       string
	Command     []string
	Entrypoint  []string
	Env         []string
	Ports       []model.PortMapping
	Mounts      []model.VolumeMount
	NetworkName string

	// DaemonRestartPolicy hands restart handling to the Docker daemon.
	// Empty leaves the daemon policy disabled, which is what supervised
	// (foreground) runs use; detached runs set it from the manifest
	// because no supervisor process remains to do the restarting.
	DaemonRestartPolicy model.RestartPolicy
}

// CreateServiceContainer creates and starts the container for a service.
// An existing container with the same canonical name is removed first,
// so repeated `up` runs converge on the manifest instead of failing on
// name conflicts.
//
// Returns the new container's ID.
func CreateServiceContainer(ctx context.Context, cli *Client, spec RunSpec) (string, error) {
	name := ContainerName(spec.StackName, spec.ServiceName)

	// Recreate semantics: a leftover container under our name (from a
	// previous run, stopped or running) is removed before creating the
	// new one.
	if existing, err := FindServiceContainer(ctx, cli, spec.StackName, spec.ServiceName); err == nil && existing != nil {
		if err := RemoveContainer(ctx, cli, existing.ContainerID, true); err != nil {
			return "", err
		}
	}

	exposed, bindings, err := portBindings(spec.Ports)
	if err != nil {
		return "", model.WrapCLIError(model.ExitPortConflict,
			fmt.Sprintf("invalid port bindings for service %q", spec.ServiceName), err)
	}

	config := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Cmd:          strslice.StrSlice(spec.Command),
		Entrypoint:   strslice.StrSlice(spec.Entrypoint),
		Labels:       BuildServiceLabels(spec.StackName, spec.ServiceName, time.Now()),
		ExposedPorts: exposed,
	}

	hostConfig := &container.HostConfig{
		PortBindings: bindings,
		Mounts:       mountSpecs(spec.StackName, spec.Mounts),
		// Supervision is stackd's job in foreground runs; see the
		// package comment. Detached runs delegate to the daemon.
		RestartPolicy: daemonRestartPolicy(spec.DaemonRestartPolicy),
	}

	// Attach to the stack network under the service name, so services
	// reach each other by the same hostnames the manifest uses
	// (DATABASE_HOST=db resolves to the db container).
	networkConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			spec.NetworkName: {
				Aliases: []string{spec.ServiceName},
			},
		},
	}

	created, err := cli.Inner().ContainerCreate(ctx, config, hostConfig, networkConfig, nil, name)
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container %q", name),
			err,
		)
	}

	if err := StartContainer(ctx, cli, created.ID); err != nil {
		return "", err
	}

	return created.ID, nil
}

// daemonRestartPolicy maps a manifest restart policy onto the Docker
// daemon's own policy names. The manifest names were chosen to match,
// so this is a direct translation; the empty policy means "stackd
// supervises" and leaves the daemon policy disabled.
func daemonRestartPolicy(policy model.RestartPolicy) container.RestartPolicy {
	switch policy {
	case model.RestartAlways:
		return container.RestartPolicy{Name: container.RestartPolicyAlways}
	case model.RestartOnFailure:
		return container.RestartPolicy{Name: container.RestartPolicyOnFailure}
	case model.RestartUnlessStopped:
		return container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	default:
		return container.RestartPolicy{Name: container.RestartPolicyDisabled}
	}
}

// portBindings converts normalized port mappings into the Docker API's
// exposed-port set and host binding map.
func portBindings(mappings []model.PortMapping) (nat.PortSet, nat.PortMap, error) {
	if len(mappings) == 0 {
		return nil, nil, nil
	}

	exposed := make(nat.PortSet, len(mappings))
	bindings := make(nat.PortMap, len(mappings))

	for _, pm := range mappings {
		proto := pm.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.Itoa(pm.ContainerPort))
		if err != nil {
			return nil, nil, fmt.Errorf("container port %d/%s: %w", pm.ContainerPort, proto, err)
		}

		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostPort: strconv.Itoa(pm.HostPort),
		})
	}

	return exposed, bindings, nil
}

// mountSpecs converts normalized volume mounts into Docker API mount
// specs. Named volumes are resolved to their stack-prefixed Docker names
// here; bind sources pass through unchanged.
func mountSpecs(stackName string, mounts []model.VolumeMount) []mount.Mount {
	if len(mounts) == 0 {
		return nil
	}

	specs := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		spec := mount.Mount{
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		}
		if m.Named {
			spec.Type = mount.TypeVolume
			spec.Source = VolumeName(stackName, m.Source)
		} else {
			spec.Type = mount.TypeBind
			spec.Source = m.Source
		}
		specs = append(specs, spec)
	}
	return specs
}

// WaitContainer blocks until the container exits and returns its exit
// code. This is the supervisor's primary signal: a return from
// WaitContainer means the service process is down and the restart policy
// must be consulted.
//
// Returns the context error if ctx is cancelled before the container
// exits.
func WaitContainer(ctx context.Context, cli *Client, containerID string) (int64, error) {
	respCh, errCh := cli.Inner().ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, fmt.Errorf("waiting on container %q: %w", containerID, err)
	case resp := <-respCh:
		if resp.Error != nil {
			return 0, fmt.Errorf("waiting on container %q: %s", containerID, resp.Error.Message)
		}
		return resp.StatusCode, nil
	}
}

// StartContainer starts a stopped container by its ID using the Docker
// SDK. If the container is already running, Docker returns an error.
func StartContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.Inner().ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", containerID),
			err,
		)
	}
	return nil
}

// StopContainer stops a running container by its ID. Docker sends the
// container's main process a SIGTERM and escalates to SIGKILL after the
// daemon's default timeout (typically 10 seconds).
func StopContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.Inner().ContainerStop(ctx, containerID, container.StopOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop container %q", containerID),
			err,
		)
	}
	return nil
}

// RemoveContainer removes a container by its ID. The container must be
// stopped first unless force is true, in which case Docker kills it
// before removal.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}

// ListManagedContainers queries the Docker daemon for all containers that
// carry the "stackd.managed-by=stackd" label, including stopped ones.
// This is the primary entry point for discovering what stacks currently
// exist on the host — all state is derived from Docker labels rather
// than any external database.
func ListManagedContainers(ctx context.Context, cli *Client) ([]model.ContainerInfo, error) {
	// Docker performs label filtering server-side, which is cheaper than
	// listing everything and filtering in Go.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}

	return result, nil
}

// ListStackContainers lists the managed containers belonging to one
// stack, including stopped ones.
func ListStackContainers(ctx context.Context, cli *Client, stackName string) ([]model.ContainerInfo, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
		filters.Arg("label", LabelStack+"="+stackName),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to list containers for stack %q", stackName),
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		result = append(result, containerToInfo(c))
	}

	return result, nil
}

// FindServiceContainer returns the container implementing one service of
// a stack, or nil if none exists.
func FindServiceContainer(ctx context.Context, cli *Client, stackName, serviceName string) (*model.ContainerInfo, error) {
	containers, err := ListStackContainers(ctx, cli, stackName)
	if err != nil {
		return nil, err
	}
	for i := range containers {
		if containers[i].ServiceName == serviceName {
			return &containers[i], nil
		}
	}
	return nil, nil
}

// GroupContainersByStack groups a slice of ContainerInfo by their
// "stackd.stack" label value. This is what the "ps" command uses to
// display containers organized by stack.
//
// Containers without a stack label are silently skipped, since they
// cannot be attributed to any stack. This should not happen in practice
// because ListManagedContainers already filters on stackd labels.
func GroupContainersByStack(containers []model.ContainerInfo) map[string][]model.ContainerInfo {
	groups := make(map[string][]model.ContainerInfo)

	for _, c := range containers {
		if c.StackName == "" {
			continue
		}
		groups[c.StackName] = append(groups[c.StackName], c)
	}

	return groups
}

// containerToInfo converts a Docker API Container struct to our domain
// model ContainerInfo. This is a pure mapping function with no side effects.
//
// The Docker API returns container names with a leading "/" prefix
// (e.g., "/chatbot-db"), which we strip for cleaner display in CLI
// output. The State field from the Docker API is a short string like
// "running", "exited", or "created".
func containerToInfo(c types.Container) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		// The leading "/" is an artifact of the API, not meaningful
		// to users.
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		StackName:     c.Labels[LabelStack],
		ServiceName:   c.Labels[LabelService],
		Status:        c.State,
		Labels:        c.Labels,
	}
}
