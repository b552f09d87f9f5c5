// Package cli — stop.go implements the "stackd stop" command.
//
// The stop command gracefully stops a stack's containers without
// removing them. Containers, network, and volumes all stay in place, so
// the stack can be brought back with "up" (which recreates containers
// from the manifest) while preserving every named volume.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stackd/internal/docker"
	"github.com/mmr-tortoise/stackd/internal/model"
)

// stopFlags holds the flag values for the stop command.
type stopFlags struct {
	// file is the manifest path used to resolve the stack name when no
	// positional argument is given.
	file string
}

// NewStopCommand creates the "stop" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewStopCommand() *cobra.Command {
	flags := &stopFlags{}

	cmd := &cobra.Command{
		Use:   "stop [stack]",
		Short: "Stop a stack without removing it",
		Long: `Gracefully stop all running containers of a stack.

Containers are stopped but not removed; the network and named volumes
are left untouched. Use "down" for a full teardown.

Examples:
  stackd stop
  stackd stop chatbot`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Manifest file used to resolve the stack name")

	return cmd
}

// runStop is the main logic function for the stop command.
func runStop(ctx context.Context, flags *stopFlags, args []string) error {
	stackName, err := resolveStackName(flags.file, args)
	if err != nil {
		return err
	}

	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	containers, err := docker.ListStackContainers(ctx, cli, stackName)
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return model.NewCLIError(model.ExitStackNotFound,
			fmt.Sprintf("stack %q not found", stackName))
	}

	stopped := 0
	for _, c := range containers {
		if c.Status != "running" {
			continue
		}
		VerboseLog("Stopping container %s...", c.ContainerName)
		if err := docker.StopContainer(ctx, cli, c.ContainerID); err != nil {
			return err
		}
		stopped++
	}

	printStopResult(stackName, stopped)
	return nil
}

// printStopResult outputs the stop command result in text or JSON format.
func printStopResult(stackName string, stopped int) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":         stackName,
			"action":       "stopped",
			"stoppedCount": stopped,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Stopped stack %q (%d containers)\n", stackName, stopped)
}
