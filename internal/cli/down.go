// Package cli — down.go implements the "stackd down" command.
//
// The down command tears a stack down: containers are stopped and
// removed, the stack network is removed, and with --volumes the named
// volumes (and their data) go too. Without --volumes the volumes stay,
// so database state survives a down/up cycle.
//
// The stack is located by Docker labels, so down works from anywhere —
// no manifest file is needed when the stack name is given explicitly.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stackd/internal/docker"
	"github.com/mmr-tortoise/stackd/internal/model"
)

// downFlags holds the flag values for the down command.
type downFlags struct {
	// file is the manifest path used to resolve the stack name when no
	// positional argument is given.
	file string

	// volumes also removes the stack's named volumes and their data.
	volumes bool
}

// NewDownCommand creates the "down" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewDownCommand() *cobra.Command {
	flags := &downFlags{}

	cmd := &cobra.Command{
		Use:   "down [stack]",
		Short: "Stop and remove a stack",
		Long: `Stop and remove all containers of a stack, along with its network.

Named volumes are preserved by default so persistent data (databases,
dashboards) survives; pass --volumes to remove them as well.

The stack is named either by the positional argument or by the manifest
in the current directory.

Examples:
  stackd down
  stackd down chatbot
  stackd down chatbot --volumes`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDown(cmd.Context(), flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Manifest file used to resolve the stack name")
	cmd.Flags().BoolVar(&flags.volumes, "volumes", false, "Also remove the stack's named volumes")

	return cmd
}

// runDown is the main logic function for the down command.
func runDown(ctx context.Context, flags *downFlags, args []string) error {
	stackName, err := resolveStackName(flags.file, args)
	if err != nil {
		return err
	}

	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	// Discover the stack's containers by label. An empty result means
	// there is nothing to tear down under that name.
	containers, err := docker.ListStackContainers(ctx, cli, stackName)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return model.NewCLIError(model.ExitStackNotFound,
			fmt.Sprintf("stack %q not found", stackName))
	}
	VerboseLog("Found %d container(s) for stack %q", len(containers), stackName)

	// Stop and remove every container. Force removal also covers
	// containers whose stop timed out.
	for _, c := range containers {
		VerboseLog("Removing container %s...", c.ContainerName)
		if c.Status == "running" {
			if err := docker.StopContainer(ctx, cli, c.ContainerID); err != nil {
				VerboseLog("Warning: stop failed for %s: %v", c.ContainerName, err)
			}
		}
		if err := docker.RemoveContainer(ctx, cli, c.ContainerID, true); err != nil {
			return err
		}
	}

	// The network can only go once its containers are gone.
	if err := docker.RemoveNetwork(ctx, cli, stackName); err != nil {
		return err
	}
	VerboseLog("Removed network %q", docker.NetworkName(stackName))

	var removedVolumes []string
	if flags.volumes {
		names, err := docker.ListStackVolumes(ctx, cli, stackName)
		if err != nil {
			return err
		}
		for _, name := range names {
			VerboseLog("Removing volume %s...", name)
			if err := docker.RemoveVolume(ctx, cli, name); err != nil {
				return err
			}
			removedVolumes = append(removedVolumes, name)
		}
	}

	printDownResult(stackName, len(containers), removedVolumes)
	return nil
}

// printDownResult outputs the down command result in text or JSON format.
func printDownResult(stackName string, containerCount int, removedVolumes []string) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":           stackName,
			"action":         "removed",
			"containerCount": containerCount,
			"removedVolumes": removedVolumes,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Removed stack %q (%d containers)\n", stackName, containerCount)
	for _, name := range removedVolumes {
		fmt.Printf("  removed volume %s\n", name)
	}
}

// resolveStackName determines the target stack: the positional argument
// wins, otherwise the manifest supplies the name. Shared by the down and
// stop commands.
func resolveStackName(file string, args []string) (string, error) {
	if len(args) == 1 {
		if err := model.ValidateName(args[0]); err != nil {
			return "", model.WrapCLIError(model.ExitGeneralError, "invalid stack name", err)
		}
		return args[0], nil
	}

	stack, err := loadStack(file)
	if err != nil {
		return "", err
	}
	return stack.Name, nil
}
