// volume.go manages the named volumes a stack declares. Named volumes
// are the persistence contract of the stack: they survive container
// recreation, so database state outlives any individual `up`/`down`
// cycle unless the user explicitly asks for volume removal.
package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// EnsureVolume creates the named volume for a stack if it does not
// already exist. Docker's VolumeCreate is idempotent for an existing
// name with matching driver, which is exactly the semantics we want:
// an existing volume (and its data) is left untouched.
//
// The extraLabels come from the manifest's volume declaration and are
// merged under the stackd management labels.
func EnsureVolume(ctx context.Context, cli *Client, stackName, volumeName string, extraLabels map[string]string) error {
	labels := BuildStackLabels(stackName, time.Now())
	for k, v := range extraLabels {
		labels[k] = v
	}

	_, err := cli.Inner().VolumeCreate(ctx, volume.CreateOptions{
		Name:   VolumeName(stackName, volumeName),
		Labels: labels,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create volume %q", VolumeName(stackName, volumeName)),
			err,
		)
	}
	return nil
}

// RemoveVolume removes one managed volume by its full Docker name (as
// returned by ListStackVolumes). The volume must not be in use by any
// container; `down` removes containers first.
func RemoveVolume(ctx context.Context, cli *Client, name string) error {
	if err := cli.Inner().VolumeRemove(ctx, name, false); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove volume %q", name),
			err,
		)
	}
	return nil
}

// ListStackVolumes returns the names of the managed volumes belonging to
// one stack. Used by `down --volumes` to clean up everything the stack
// created, even if the manifest has since changed.
func ListStackVolumes(ctx context.Context, cli *Client, stackName string) ([]string, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
		filters.Arg("label", LabelStack+"="+stackName),
	)

	resp, err := cli.Inner().VolumeList(ctx, volume.ListOptions{Filters: filterArgs})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to list volumes for stack %q", stackName),
			err,
		)
	}

	names := make([]string, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		names = append(names, v.Name)
	}
	return names, nil
}
