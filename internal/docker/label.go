package docker

import (
	"fmt"
	"strings"
	"time"
)

// Label key constants define the Docker label keys used to mark stack
// resources (containers, volumes, networks) as managed by stackd. The
// labels are the sole persistence mechanism — running stacks are
// reconstructed from Docker API queries, not from state files.
//
// All keys share the "stackd." prefix to namespace them and avoid
// collisions with labels set by other tools.
const (
	// LabelPrefix is the common prefix for all stackd labels.
	// Using a consistent prefix enables efficient label-based filtering
	// when listing resources via the Docker API.
	LabelPrefix = "stackd."

	// LabelManagedBy identifies resources managed by stackd.
	// This is the primary label used for filtering and discovery.
	// Key: "stackd.managed-by", Value: always "stackd".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelStack stores the stack name a resource belongs to.
	// Key: "stackd.stack", Value: stack name (e.g., "chatbot").
	LabelStack = LabelPrefix + "stack"

	// LabelService stores the service name a container implements.
	// Key: "stackd.service", Value: service name (e.g., "bot").
	// Volumes and networks are stack-level resources and do not carry it.
	LabelService = LabelPrefix + "service"

	// LabelCreatedAt stores the ISO-8601 timestamp of resource creation.
	// Key: "stackd.created-at", Value: RFC3339 formatted timestamp.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
// All resources created by this CLI are tagged with this value,
// enabling discovery via Docker API label filters.
const ManagedByValue = "stackd"

// BuildServiceLabels constructs the Docker label map applied to a
// service's container. The stack and service names together identify
// the container; created-at records when stackd created it.
func BuildServiceLabels(stackName, serviceName string, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelStack:     stackName,
		LabelService:   serviceName,
		// UTC ensures consistent timestamps regardless of the host
		// machine's timezone.
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
}

// BuildStackLabels constructs the Docker label map applied to
// stack-level resources (named volumes, the stack network).
func BuildStackLabels(stackName string, createdAt time.Time) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelStack:     stackName,
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
}

// ParseServiceLabels extracts the stack and service names from a
// container's label map. Missing required labels cause an error listing
// every absent key, for easier debugging with `docker inspect`.
func ParseServiceLabels(labels map[string]string) (stackName, serviceName string, err error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelStack,
		LabelService,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", "", fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return "", "", fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	return labels[LabelStack], labels[LabelService], nil
}

// ContainerName returns the canonical container name for a service:
// "<stack>-<service>". The stack prefix namespaces containers so two
// stacks can both run a service called "db" on the same host.
func ContainerName(stackName, serviceName string) string {
	return stackName + "-" + serviceName
}

// NetworkName returns the canonical name of a stack's bridge network.
func NetworkName(stackName string) string {
	return stackName + "_default"
}

// VolumeName returns the canonical Docker volume name for a named volume
// declared in a stack manifest: "<stack>_<volume>". The prefix keeps
// volumes from different stacks distinct while preserving the manifest's
// short names ("db_data" → "chatbot_db_data").
func VolumeName(stackName, volumeName string) string {
	return stackName + "_" + volumeName
}
