package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildServiceLabels verifies that BuildServiceLabels produces the
// full stackd label set for a service container.
func TestBuildServiceLabels(t *testing.T) {
	createdAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	labels := BuildServiceLabels("chatbot", "bot", createdAt)

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy],
		"managed-by label should always be set to the constant value")
	assert.Equal(t, "chatbot", labels[LabelStack])
	assert.Equal(t, "bot", labels[LabelService])
	assert.Equal(t, "2026-08-25T10:00:00Z", labels[LabelCreatedAt])
	assert.Len(t, labels, 4)
}

// TestBuildStackLabels verifies the label set for stack-level resources,
// which carry no service label.
func TestBuildStackLabels(t *testing.T) {
	createdAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	labels := BuildStackLabels("chatbot", createdAt)

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy])
	assert.Equal(t, "chatbot", labels[LabelStack])
	assert.NotContains(t, labels, LabelService)
	assert.Len(t, labels, 3)
}

// TestParseServiceLabels verifies reconstruction of the stack/service
// identity from a container's labels. This is the inverse of
// BuildServiceLabels.
func TestParseServiceLabels(t *testing.T) {
	labels := BuildServiceLabels("chatbot", "api", time.Now())

	stack, service, err := ParseServiceLabels(labels)
	require.NoError(t, err)
	assert.Equal(t, "chatbot", stack)
	assert.Equal(t, "api", service)
}

// TestParseServiceLabels_Missing verifies that missing required labels
// are all reported at once for easier debugging.
func TestParseServiceLabels_Missing(t *testing.T) {
	_, _, err := ParseServiceLabels(map[string]string{
		LabelManagedBy: ManagedByValue,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelStack)
	assert.Contains(t, err.Error(), LabelService)
}

// TestParseServiceLabels_ForeignManager verifies that containers tagged
// by some other tool are rejected rather than adopted.
func TestParseServiceLabels_ForeignManager(t *testing.T) {
	_, _, err := ParseServiceLabels(map[string]string{
		LabelManagedBy: "someone-else",
		LabelStack:     "chatbot",
		LabelService:   "db",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected value")
}

// TestCanonicalNames verifies the naming scheme for containers, volumes,
// and networks: all derive from the stack name so two stacks can share
// a host without collisions.
func TestCanonicalNames(t *testing.T) {
	assert.Equal(t, "chatbot-db", ContainerName("chatbot", "db"))
	assert.Equal(t, "chatbot_db_data", VolumeName("chatbot", "db_data"))
	assert.Equal(t, "chatbot_default", NetworkName("chatbot"))
}
