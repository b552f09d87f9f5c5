// network.go manages the per-stack bridge network. Every container in a
// stack attaches to the same network with its service name as an alias,
// which is what makes manifest hostnames like DATABASE_HOST=db resolve.
package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// EnsureNetwork creates the stack's bridge network if it does not
// already exist, and returns its name. An existing network is reused so
// repeated `up` runs don't churn container connectivity.
func EnsureNetwork(ctx context.Context, cli *Client, stackName string) (string, error) {
	name := NetworkName(stackName)

	_, err := cli.Inner().NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return name, nil
	}
	if !client.IsErrNotFound(err) {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect network %q", name),
			err,
		)
	}

	_, err = cli.Inner().NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: BuildStackLabels(stackName, time.Now()),
	})
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create network %q", name),
			err,
		)
	}

	return name, nil
}

// RemoveNetwork removes the stack's network. Containers must be removed
// first; `down` handles that ordering.
//
// A missing network is not an error — `down` should be idempotent.
func RemoveNetwork(ctx context.Context, cli *Client, stackName string) error {
	name := NetworkName(stackName)
	if err := cli.Inner().NetworkRemove(ctx, name); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove network %q", name),
			err,
		)
	}
	return nil
}
