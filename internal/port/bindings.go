package port

import (
	"fmt"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// Checker validates that a stack's declared host ports can actually be
// bound before any container is created. It combines two layers:
// intra-stack uniqueness (two services must not publish the same host
// port) and OS-level availability via the Scanner.
//
// Failing early here is friendlier than letting the Docker daemon fail
// partway through a stack start, which would leave some services up and
// others not.
type Checker struct {
	// scanner probes the OS for actual port availability.
	// Injected via constructor to allow test doubles if needed.
	scanner *Scanner
}

// NewChecker creates a new Checker with the given Scanner.
// The scanner must not be nil — it is required for availability checks.
func NewChecker(scanner *Scanner) *Checker {
	return &Checker{scanner: scanner}
}

// CheckBindings validates a full set of published port mappings:
//
//  1. Each mapping is individually valid (ranges, protocol).
//  2. No host port is published by two services (delegated to
//     model.ValidatePortMappings).
//  3. Every host port is currently free on the host.
//
// Returns a model.CLIError with ExitPortConflict naming every port that
// is already in use, so the user can fix them all in one pass.
func (c *Checker) CheckBindings(mappings []model.PortMapping) error {
	if err := model.ValidatePortMappings(mappings); err != nil {
		return model.WrapCLIError(model.ExitPortConflict, "conflicting port mappings", err)
	}

	var conflicts []string
	for _, pm := range mappings {
		proto := pm.Protocol
		if proto == "" {
			proto = "tcp"
		}
		if !c.scanner.IsPortAvailable(pm.HostPort, proto) {
			conflicts = append(conflicts,
				fmt.Sprintf("%d/%s (%s)", pm.HostPort, proto, pm.ServiceName))
		}
	}

	if len(conflicts) > 0 {
		return model.NewCLIError(model.ExitPortConflict,
			fmt.Sprintf("host ports already in use: %v", conflicts))
	}

	return nil
}
