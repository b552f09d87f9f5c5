// Package model defines the domain types for the stackd CLI.
//
// All entities in this package represent the coordination contract between
// services in a stack: names, restart policies, port publications, and
// volume mounts. These types are used throughout the application for
// passing data between the manifest, docker, and supervisor layers.
//
// Key design decision: all runtime state is persisted via Docker container
// labels, so these types are transient representations reconstructed from
// Docker API queries at runtime.
package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ServiceStatus represents the lifecycle state of a supervised service.
// The state transitions are:
//
//	Pending → Starting → Running ⇄ Restarting → Stopped
//	Starting/Running → Failed (start error, or retry budget exhausted)
type ServiceStatus string

const (
	// StatusPending indicates the service is waiting for its declared
	// dependencies before it can be started.
	StatusPending ServiceStatus = "pending"

	// StatusStarting indicates the container is being created/started,
	// or a declared readiness probe has not yet passed.
	StatusStarting ServiceStatus = "starting"

	// StatusRunning indicates the container is up and, if a probe is
	// declared, readiness has been confirmed.
	StatusRunning ServiceStatus = "running"

	// StatusRestarting indicates the container exited and the restart
	// policy scheduled another start attempt.
	StatusRestarting ServiceStatus = "restarting"

	// StatusStopped indicates the service was deliberately stopped and
	// will not be restarted.
	StatusStopped ServiceStatus = "stopped"

	// StatusFailed indicates the service could not be started, or its
	// restart retry budget was exhausted.
	StatusFailed ServiceStatus = "failed"
)

// String returns the string representation of ServiceStatus.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (s ServiceStatus) String() string {
	return string(s)
}

// IsValid checks whether the ServiceStatus value is one of the
// predefined valid states.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusStarting, StatusRunning, StatusRestarting, StatusStopped, StatusFailed:
		return true
	default:
		return false
	}
}

// RestartPolicy defines when a supervised service is restarted after its
// container exits.
type RestartPolicy string

const (
	// RestartAlways restarts the container on every exit, regardless of
	// exit code. This is the default policy.
	RestartAlways RestartPolicy = "always"

	// RestartOnFailure restarts the container only when it exits with a
	// non-zero code.
	RestartOnFailure RestartPolicy = "on-failure"

	// RestartNever leaves the container down after any exit.
	RestartNever RestartPolicy = "no"

	// RestartUnlessStopped behaves like RestartAlways except when the
	// service was stopped explicitly through the CLI.
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// String returns the string representation of RestartPolicy.
func (p RestartPolicy) String() string {
	return string(p)
}

// IsValid checks whether the RestartPolicy value is one of the
// predefined valid policies.
func (p RestartPolicy) IsValid() bool {
	switch p {
	case RestartAlways, RestartOnFailure, RestartNever, RestartUnlessStopped:
		return true
	default:
		return false
	}
}

// ParseRestartPolicy converts a string to a RestartPolicy. An empty string
// resolves to RestartAlways, which matches the uniform policy of the
// reference stack. Returns an error for any other unknown value.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	if s == "" {
		return RestartAlways, nil
	}
	policy := RestartPolicy(strings.ToLower(s))
	if !policy.IsValid() {
		return "", fmt.Errorf("invalid restart policy: %q (valid: always, on-failure, no, unless-stopped)", s)
	}
	return policy, nil
}

// ShouldRestart reports whether a container exit with the given code
// warrants another start attempt under this policy. The stopped flag
// indicates an explicit CLI stop, which suppresses restarts for every
// policy except none (a stopped service stays stopped).
func (p RestartPolicy) ShouldRestart(exitCode int64, stopped bool) bool {
	if stopped {
		return false
	}
	switch p {
	case RestartAlways, RestartUnlessStopped:
		return true
	case RestartOnFailure:
		return exitCode != 0
	default:
		return false
	}
}

// nameRegex validates stack and service names: alphanumeric + hyphens and
// underscores, must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid stack or service name.
// Valid names contain only alphanumeric characters, hyphens, and
// underscores, and must start/end with an alphanumeric character.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name %q: must contain only alphanumeric characters, hyphens, and underscores, and start/end with alphanumeric", name)
	}
	return nil
}

// PortMapping represents a single published port: a binding from a host
// port to a container port for one service.
type PortMapping struct {
	// ServiceName is the service that owns this port publication.
	ServiceName string `json:"serviceName"`

	// ContainerPort is the port number inside the container (1-65535).
	ContainerPort int `json:"containerPort"`

	// HostPort is the port number published on the host machine (1-65535).
	// Must be unique across all services in the stack.
	HostPort int `json:"hostPort"`

	// Protocol is the network protocol for the port mapping.
	// Defaults to "tcp". Also supports "udp".
	Protocol string `json:"protocol"`
}

// Validate checks whether the PortMapping has valid field values.
// It verifies port number ranges and protocol values.
func (p *PortMapping) Validate() error {
	if p.ServiceName == "" {
		return fmt.Errorf("port mapping: service name must not be empty")
	}
	if p.ContainerPort < 1 || p.ContainerPort > 65535 {
		return fmt.Errorf("port mapping: container port %d out of range (1-65535)", p.ContainerPort)
	}
	if p.HostPort < 1 || p.HostPort > 65535 {
		return fmt.Errorf("port mapping: host port %d out of range (1-65535)", p.HostPort)
	}
	if p.Protocol == "" {
		p.Protocol = "tcp"
	}
	if p.Protocol != "tcp" && p.Protocol != "udp" {
		return fmt.Errorf("port mapping: invalid protocol %q (valid: tcp, udp)", p.Protocol)
	}
	return nil
}

// String returns a human-readable representation of the port mapping.
// Format: "service:hostPort → containerPort/protocol"
func (p *PortMapping) String() string {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return fmt.Sprintf("%s:%d → %d/%s", p.ServiceName, p.HostPort, p.ContainerPort, proto)
}

// ParsePortMapping parses a compose-style port string of the form
// "host:container" or "host:container/protocol" into a PortMapping
// owned by the given service.
func ParsePortMapping(serviceName, spec string) (*PortMapping, error) {
	proto := "tcp"
	portPart := spec
	if slash := strings.IndexByte(spec, '/'); slash >= 0 {
		portPart = spec[:slash]
		proto = spec[slash+1:]
	}

	host, container, found := strings.Cut(portPart, ":")
	if !found {
		return nil, fmt.Errorf("invalid port %q: expected \"host:container\" format", spec)
	}

	hostPort, err := strconv.Atoi(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host port in %q: %w", spec, err)
	}
	containerPort, err := strconv.Atoi(container)
	if err != nil {
		return nil, fmt.Errorf("invalid container port in %q: %w", spec, err)
	}

	pm := &PortMapping{
		ServiceName:   serviceName,
		ContainerPort: containerPort,
		HostPort:      hostPort,
		Protocol:      proto,
	}
	if err := pm.Validate(); err != nil {
		return nil, err
	}
	return pm, nil
}

// ValidatePortMappings checks a slice of PortMappings for individual
// validity and cross-service host port uniqueness. Only two services in
// the reference stack publish ports, but the check holds for any stack:
// no two services may claim the same host port and protocol.
func ValidatePortMappings(mappings []PortMapping) error {
	// Track seen host ports to detect duplicates within the same stack.
	// Key: "hostPort/protocol", Value: service name that owns it.
	seen := make(map[string]string)

	for i := range mappings {
		if err := mappings[i].Validate(); err != nil {
			return err
		}

		// Different protocols on the same port are allowed
		// (e.g., 3000/tcp and 3000/udp).
		key := fmt.Sprintf("%d/%s", mappings[i].HostPort, mappings[i].Protocol)
		if existingService, exists := seen[key]; exists {
			return fmt.Errorf("port mapping: host port %s is published by both %q and %q",
				key, existingService, mappings[i].ServiceName)
		}
		seen[key] = mappings[i].ServiceName
	}
	return nil
}

// VolumeMount represents a single mount into a service container: either
// a named volume declared at the stack level, or a host path bind mount.
type VolumeMount struct {
	// Source is the named volume name, or the host path for bind mounts.
	Source string `json:"source"`

	// Target is the absolute mount path inside the container.
	Target string `json:"target"`

	// Named reports whether Source refers to a stack-level named volume
	// (true) or a host path (false).
	Named bool `json:"named"`

	// ReadOnly mounts the target read-only when true.
	ReadOnly bool `json:"readOnly,omitempty"`
}

// ParseVolumeMount parses a compose-style volume string of the form
// "source:/target" or "source:/target:ro". A source beginning with "/",
// "./", or "~/" is treated as a host path bind mount; anything else is a
// named volume reference.
func ParseVolumeMount(spec string) (*VolumeMount, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid volume %q: expected \"source:/target[:ro]\" format", spec)
	}

	mount := &VolumeMount{
		Source: parts[0],
		Target: parts[1],
	}
	if mount.Source == "" {
		return nil, fmt.Errorf("invalid volume %q: source must not be empty", spec)
	}
	if !strings.HasPrefix(mount.Target, "/") {
		return nil, fmt.Errorf("invalid volume %q: target must be an absolute container path", spec)
	}
	if len(parts) == 3 {
		if parts[2] != "ro" {
			return nil, fmt.Errorf("invalid volume %q: unknown mount option %q (valid: ro)", spec, parts[2])
		}
		mount.ReadOnly = true
	}

	// Host paths start with an absolute or relative path marker; everything
	// else refers to a named volume declared in the stack manifest.
	mount.Named = !strings.HasPrefix(mount.Source, "/") &&
		!strings.HasPrefix(mount.Source, "./") &&
		!strings.HasPrefix(mount.Source, "~/")

	return mount, nil
}

// String returns a human-readable representation of the volume mount.
func (m *VolumeMount) String() string {
	suffix := ""
	if m.ReadOnly {
		suffix = ":ro"
	}
	return fmt.Sprintf("%s:%s%s", m.Source, m.Target, suffix)
}

// ContainerInfo holds runtime information about a Docker container.
// This data is fetched dynamically from the Docker API, not persisted.
type ContainerInfo struct {
	// ContainerID is the unique Docker container identifier (SHA-256 hash prefix).
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// StackName is the stack this container belongs to, from labels.
	StackName string `json:"stackName,omitempty"`

	// ServiceName is the stack service this container implements, from labels.
	ServiceName string `json:"serviceName,omitempty"`

	// Status is the Docker container status (e.g., "running", "exited", "created").
	Status string `json:"status"`

	// Labels is the full set of Docker labels on the container.
	// Includes stackd management labels (stackd.* prefix).
	Labels map[string]string `json:"labels,omitempty"`
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitManifestInvalid indicates the stack manifest was not found
	// or failed validation.
	ExitManifestInvalid ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortConflict indicates a declared host port is already in use
	// or published twice within the stack.
	ExitPortConflict ExitCode = 4

	// ExitDependencyCycle indicates the depends_on graph contains a cycle
	// and no start order exists.
	ExitDependencyCycle ExitCode = 5

	// ExitStackNotFound indicates the named stack has no managed
	// containers on this host.
	ExitStackNotFound ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
