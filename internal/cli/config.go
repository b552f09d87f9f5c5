// Package cli — config.go implements the "stackd config" command.
//
// The config command loads and validates a manifest without touching
// Docker, then prints the fully normalized view: defaults applied,
// environment interpolated, both depends_on syntaxes collapsed to the
// explicit condition form, and the computed start order. It is the
// quick answer to "what would up actually do with this file".
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/stackd/internal/manifest"
	"github.com/mmr-tortoise/stackd/internal/model"
)

// configFlags holds the flag values for the config command.
type configFlags struct {
	// file is the manifest path; empty means probe the default names.
	file string
}

// NewConfigCommand creates the "config" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewConfigCommand() *cobra.Command {
	flags := &configFlags{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate a manifest and print its normalized form",
		Long: `Validate the stack manifest and print the normalized configuration:
interpolated environment, resolved restart policies, explicit dependency
conditions, and the computed start order.

Exits with code 2 when the manifest is missing or invalid, without
contacting the Docker daemon.

Examples:
  stackd config
  stackd config -f chatbot.yaml
  stackd config --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Manifest file (default: stack.yml, stack.yaml, stack.jsonc, stack.json)")

	return cmd
}

// configView is the normalized manifest representation printed by the
// config command. One struct serves both YAML and JSON output.
type configView struct {
	Name       string                  `yaml:"name" json:"name"`
	StartOrder []string                `yaml:"start_order" json:"startOrder"`
	Services   map[string]serviceView  `yaml:"services" json:"services"`
	Volumes    []string                `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	Metrics    *manifest.MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// serviceView is the normalized per-service representation.
type serviceView struct {
	Image       string            `yaml:"image" json:"image"`
	Command     []string          `yaml:"command,omitempty" json:"command,omitempty"`
	Entrypoint  []string          `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	Ports       []string          `yaml:"ports,omitempty" json:"ports,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	DependsOn   map[string]string `yaml:"depends_on,omitempty" json:"dependsOn,omitempty"`
	Restart     string            `yaml:"restart" json:"restart"`
}

// runConfig is the main logic function for the config command.
func runConfig(flags *configFlags) error {
	stack, err := loadStack(flags.file)
	if err != nil {
		return err
	}

	order, err := manifest.StartOrder(stack)
	if err != nil {
		return err
	}

	view := configView{
		Name:       stack.Name,
		StartOrder: order,
		Services:   make(map[string]serviceView, len(stack.Services)),
		Volumes:    stack.VolumeNames(),
		Metrics:    stack.Metrics,
	}

	for _, name := range stack.ServiceNames() {
		svc := stack.Services[name]

		// Validation already proved the policy parses.
		policy, err := svc.RestartPolicy()
		if err != nil {
			return model.WrapCLIError(model.ExitManifestInvalid,
				fmt.Sprintf("invalid restart policy for service %q", name), err)
		}

		deps := make(map[string]string, len(svc.DependsOn))
		for _, dep := range svc.DependsOn {
			deps[dep.Service] = dep.Condition
		}

		view.Services[name] = serviceView{
			Image:       svc.Image,
			Command:     svc.Command,
			Entrypoint:  svc.Entrypoint,
			Environment: svc.Environment,
			Ports:       svc.Ports,
			Volumes:     svc.Volumes,
			DependsOn:   deps,
			Restart:     policy.String(),
		}
	}

	return printConfigResult(view)
}

// printConfigResult renders the normalized view as YAML (default) or
// JSON (--json).
func printConfigResult(view configView) error {
	if IsJSONOutput() {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to render configuration", err)
		}
		fmt.Println(string(data))
		return nil
	}

	data, err := yaml.Marshal(view)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to render configuration", err)
	}
	fmt.Print(string(data))
	return nil
}
