package supervisor

import (
	"context"
	"fmt"

	"github.com/mmr-tortoise/stackd/internal/docker"
	"github.com/mmr-tortoise/stackd/internal/manifest"
)

// DockerRuntime implements Runtime against a live Docker daemon. It
// resolves each service name back to its manifest definition and builds
// the container run spec on every start, so restarts always pick up the
// normalized manifest state.
type DockerRuntime struct {
	cli         *docker.Client
	stack       *manifest.Stack
	networkName string
}

// NewDockerRuntime wires a Runtime to the stack's network. The network
// must already exist (the up command ensures it before supervision
// begins).
func NewDockerRuntime(cli *docker.Client, stack *manifest.Stack, networkName string) *DockerRuntime {
	return &DockerRuntime{
		cli:         cli,
		stack:       stack,
		networkName: networkName,
	}
}

// StartService creates and starts the service's container, recreating
// any leftover container under the same name.
func (r *DockerRuntime) StartService(ctx context.Context, service string) (string, error) {
	svc, ok := r.stack.Services[service]
	if !ok {
		return "", fmt.Errorf("service %q not in stack %q", service, r.stack.Name)
	}

	ports, err := svc.PortMappings(service)
	if err != nil {
		return "", err
	}
	mounts, err := svc.VolumeMounts(service)
	if err != nil {
		return "", err
	}

	return docker.CreateServiceContainer(ctx, r.cli, docker.RunSpec{
		StackName:   r.stack.Name,
		ServiceName: service,
		Image:       svc.Image,
		Command:     svc.Command,
		Entrypoint:  svc.Entrypoint,
		Env:         svc.Environment.Sorted(),
		Ports:       ports,
		Mounts:      mounts,
		NetworkName: r.networkName,
	})
}

// WaitService blocks until the container exits.
func (r *DockerRuntime) WaitService(ctx context.Context, containerID string) (int64, error) {
	return docker.WaitContainer(ctx, r.cli, containerID)
}

// StopService gracefully stops the container.
func (r *DockerRuntime) StopService(ctx context.Context, containerID string) error {
	return docker.StopContainer(ctx, r.cli, containerID)
}
