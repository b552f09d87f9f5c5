// Package docker provides Docker Engine API wrappers and container
// lifecycle management for the stackd CLI.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Label management for marking stack resources and reconstructing
//     running stacks (Docker labels are the sole state storage mechanism)
//   - Container lifecycle operations: create, start, stop, remove, wait,
//     and label-filtered discovery
//   - Stack resource lifecycle: named volumes and the per-stack bridge
//     network
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
