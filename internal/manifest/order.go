// order.go resolves the service start order from the depends_on graph.
//
// The orchestration contract is leaf-first: a service starts only after
// every service it depends on has started (or reported healthy, for
// healthy-conditioned edges). Shutdown uses the same order reversed, so
// dependents stop before the stores they talk to.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// StartOrder returns the stack's services sorted so that every service
// appears after all of its dependencies (Kahn's algorithm). Among
// services whose dependencies are equally satisfied, names are taken in
// sorted order, making the result deterministic for a given manifest.
//
// Returns a model.CLIError with ExitDependencyCycle when the graph has
// no valid ordering, naming the services stuck in the cycle.
func StartOrder(stack *Stack) ([]string, error) {
	// in-degree per service = number of (declared) dependencies.
	// Undeclared dependency targets are a validation error, not an
	// ordering concern, so they are ignored here.
	indegree := make(map[string]int, len(stack.Services))
	dependents := make(map[string][]string, len(stack.Services))

	for _, name := range stack.ServiceNames() {
		indegree[name] = 0
	}
	for _, name := range stack.ServiceNames() {
		for _, dep := range stack.Services[name].DependsOn {
			if _, declared := stack.Services[dep.Service]; !declared {
				continue
			}
			indegree[name]++
			dependents[dep.Service] = append(dependents[dep.Service], name)
		}
	}

	// Seed the ready set with the leaves (no dependencies), sorted for
	// deterministic output.
	var ready []string
	for _, name := range stack.ServiceNames() {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(stack.Services))
	for len(ready) > 0 {
		// Pop the lexicographically smallest ready service.
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(stack.Services) {
		// Whatever never reached in-degree zero is part of (or downstream
		// of) a cycle. Report them all for easier debugging.
		var stuck []string
		for _, name := range stack.ServiceNames() {
			if indegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, model.NewCLIError(model.ExitDependencyCycle,
			fmt.Sprintf("dependency cycle involving: %s", strings.Join(stuck, ", ")))
	}

	return order, nil
}

// StopOrder returns the reverse of StartOrder: dependents first, leaf
// dependencies last.
func StopOrder(stack *Stack) ([]string, error) {
	order, err := StartOrder(stack)
	if err != nil {
		return nil, err
	}
	reversed := make([]string, len(order))
	for i, name := range order {
		reversed[len(order)-1-i] = name
	}
	return reversed, nil
}
