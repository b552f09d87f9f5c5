// Package cli — ps.go implements the "stackd ps" command.
//
// The ps command displays managed containers by querying Docker for the
// "stackd.managed-by=stackd" label. Containers are grouped by stack and
// presented as a text table or JSON, depending on the --json flag.
// Since labels are the only persistence mechanism, ps shows exactly what
// exists on the host, regardless of which stackd invocation created it.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stackd/internal/docker"
	"github.com/mmr-tortoise/stackd/internal/model"
)

// NewPsCommand creates the "ps" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewPsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ps [stack]",
		Short: "List managed stacks and their containers",
		Long: `List the containers of every stackd-managed stack on this host,
including stopped ones. An optional stack name limits the output to one
stack.

Examples:
  stackd ps
  stackd ps chatbot
  stackd ps --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			return runPs(cmd.Context(), filter)
		},
	}

	return cmd
}

// runPs is the main logic function for the ps command.
func runPs(ctx context.Context, stackFilter string) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	containers, err := docker.ListManagedContainers(ctx, cli)
	if err != nil {
		return err
	}
	VerboseLog("Found %d managed containers", len(containers))

	groups := docker.GroupContainersByStack(containers)

	if stackFilter != "" {
		group, ok := groups[stackFilter]
		if !ok {
			return model.NewCLIError(model.ExitStackNotFound,
				fmt.Sprintf("stack %q not found", stackFilter))
		}
		groups = map[string][]model.ContainerInfo{stackFilter: group}
	}

	printPsResult(groups)
	return nil
}

// printPsResult outputs the grouped containers in text or JSON format.
func printPsResult(groups map[string][]model.ContainerInfo) {
	if IsJSONOutput() {
		printPsResultJSON(groups)
	} else {
		printPsResultText(groups)
	}
}

// psContainerJSON is the JSON output structure for one container in the
// ps command.
type psContainerJSON struct {
	Service       string `json:"service"`
	ContainerName string `json:"containerName"`
	ContainerID   string `json:"containerId"`
	Status        string `json:"status"`
}

// printPsResultJSON outputs the container groups as structured JSON.
// The top-level key is "stacks", mapping stack names to container arrays.
func printPsResultJSON(groups map[string][]model.ContainerInfo) {
	type resultJSON struct {
		Stacks map[string][]psContainerJSON `json:"stacks"`
	}

	result := resultJSON{
		// An empty map marshals to {}, not null, for stable output shape.
		Stacks: make(map[string][]psContainerJSON, len(groups)),
	}

	for stackName, containers := range groups {
		entries := make([]psContainerJSON, 0, len(containers))
		for _, c := range containers {
			entries = append(entries, psContainerJSON{
				Service:       c.ServiceName,
				ContainerName: c.ContainerName,
				ContainerID:   shortID(c.ContainerID),
				Status:        c.Status,
			})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Service < entries[j].Service })
		result.Stacks[stackName] = entries
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// printPsResultText outputs the container groups as a human-readable
// table, one section per stack:
//
//	STACK: chatbot
//	SERVICE    CONTAINER        ID            STATUS
//	api        chatbot-api      1a2b3c4d5e6f  running
//	bot        chatbot-bot      2b3c4d5e6f7a  running
func printPsResultText(groups map[string][]model.ContainerInfo) {
	if len(groups) == 0 {
		fmt.Println("No managed stacks found.")
		return
	}

	stackNames := make([]string, 0, len(groups))
	for name := range groups {
		stackNames = append(stackNames, name)
	}
	sort.Strings(stackNames)

	for _, stackName := range stackNames {
		containers := append([]model.ContainerInfo(nil), groups[stackName]...)
		sort.Slice(containers, func(i, j int) bool {
			return containers[i].ServiceName < containers[j].ServiceName
		})

		fmt.Printf("STACK: %s\n", stackName)
		fmt.Printf("%-12s %-24s %-14s %s\n", "SERVICE", "CONTAINER", "ID", "STATUS")
		for _, c := range containers {
			fmt.Printf("%-12s %-24s %-14s %s\n",
				c.ServiceName, c.ContainerName, shortID(c.ContainerID), c.Status)
		}
		fmt.Println()
	}
}

// shortID truncates a container ID to the customary 12 characters.
// Exported behavior is tested in ps_test.go.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
