// Package model defines the domain types and value objects for the
// stackd CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (ServiceStatus, RestartPolicy, PortMapping, ContainerInfo,
// etc.) are transient representations — running stacks are reconstructed
// from Docker container labels at runtime, and there are no persistent
// state files.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
