// validate.go performs structural validation of a decoded Stack before
// any Docker resources are touched. Validation failures carry
// ExitManifestInvalid (or ExitPortConflict / ExitDependencyCycle for
// their dedicated cases) so scripts can distinguish them.
package manifest

import (
	"fmt"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// Validate checks the stack for structural problems:
//
//   - stack and service names are well-formed
//   - every service declares an image
//   - restart policies, port specs, and volume specs parse
//   - depends_on edges reference declared services (and not themselves)
//   - "condition: healthy" edges point at services that declare a probe
//   - every named volume mount references a declared stack volume
//   - host ports are unique across the stack
//   - the dependency graph is acyclic (checked via StartOrder)
//
// The first problem found is returned as a model.CLIError.
func Validate(stack *Stack) error {
	if err := model.ValidateName(stack.Name); err != nil {
		return model.WrapCLIError(model.ExitManifestInvalid, "invalid stack name", err)
	}

	for _, name := range stack.ServiceNames() {
		svc := stack.Services[name]
		if err := validateService(stack, name, svc); err != nil {
			return err
		}
	}

	// Host port uniqueness is a stack-wide property, checked over the
	// full normalized mapping set.
	mappings, err := stack.PortMappings()
	if err != nil {
		return model.WrapCLIError(model.ExitManifestInvalid, "invalid port mapping", err)
	}
	if err := model.ValidatePortMappings(mappings); err != nil {
		return model.WrapCLIError(model.ExitPortConflict, "conflicting port mappings", err)
	}

	// StartOrder doubles as the cycle check.
	if _, err := StartOrder(stack); err != nil {
		return err
	}

	return nil
}

// validateService checks one service definition in the context of its stack.
func validateService(stack *Stack, name string, svc *Service) error {
	if err := model.ValidateName(name); err != nil {
		return model.WrapCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("invalid service name %q", name), err)
	}
	if svc == nil || svc.Image == "" {
		return model.NewCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("service %q: image is required", name))
	}

	if _, err := svc.RestartPolicy(); err != nil {
		return model.WrapCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("service %q", name), err)
	}

	if _, err := svc.PortMappings(name); err != nil {
		return model.WrapCLIError(model.ExitManifestInvalid, "invalid port mapping", err)
	}

	mounts, err := svc.VolumeMounts(name)
	if err != nil {
		return model.WrapCLIError(model.ExitManifestInvalid, "invalid volume mount", err)
	}
	for _, m := range mounts {
		if m.Named {
			if _, declared := stack.Volumes[m.Source]; !declared {
				return model.NewCLIError(model.ExitManifestInvalid,
					fmt.Sprintf("service %q mounts undeclared volume %q (declare it under volumes:)", name, m.Source))
			}
		}
	}

	for _, dep := range svc.DependsOn {
		if dep.Service == name {
			return model.NewCLIError(model.ExitDependencyCycle,
				fmt.Sprintf("service %q depends on itself", name))
		}
		target, declared := stack.Services[dep.Service]
		if !declared {
			return model.NewCLIError(model.ExitManifestInvalid,
				fmt.Sprintf("service %q depends on undeclared service %q", name, dep.Service))
		}
		if dep.Condition == ConditionHealthy && target.Probe == nil {
			return model.NewCLIError(model.ExitManifestInvalid,
				fmt.Sprintf("service %q requires %q healthy, but %q declares no probe", name, dep.Service, dep.Service))
		}
	}

	if svc.Probe != nil {
		if err := validateProbe(name, svc.Probe); err != nil {
			return err
		}
	}

	if svc.MaxRetries < 0 {
		return model.NewCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("service %q: max_retries cannot be negative", name))
	}
	if svc.BackoffRate < 0 {
		return model.NewCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("service %q: backoff_rate cannot be negative", name))
	}
	if svc.RestartDelay < 0 {
		return model.NewCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("service %q: restart_delay cannot be negative", name))
	}

	return nil
}

// validateProbe checks a readiness probe declaration. The probe types
// are defined by the probe package; the manifest layer only knows the
// valid names and that a target is required.
func validateProbe(serviceName string, p *Probe) error {
	switch p.Type {
	case "tcp", "http", "postgres", "influx":
	default:
		return model.NewCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("service %q: invalid probe type %q (valid: tcp, http, postgres, influx)", serviceName, p.Type))
	}
	if p.Target == "" {
		return model.NewCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("service %q: probe target is required", serviceName))
	}
	if p.Interval < 0 || p.Timeout < 0 || p.Retries < 0 {
		return model.NewCLIError(model.ExitManifestInvalid,
			fmt.Sprintf("service %q: probe interval/timeout/retries cannot be negative", serviceName))
	}
	return nil
}
