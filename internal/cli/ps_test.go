package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stackd/internal/manifest"
	"github.com/mmr-tortoise/stackd/internal/model"
)

// TestShortID verifies container ID truncation to the customary 12
// characters, with short inputs passed through.
func TestShortID(t *testing.T) {
	assert.Equal(t, "1a2b3c4d5e6f", shortID("1a2b3c4d5e6f7a8b9c0d"))
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "", shortID(""))
}

// TestResolveStackName_PositionalWins verifies that an explicit stack
// argument is used without consulting any manifest.
func TestResolveStackName_PositionalWins(t *testing.T) {
	name, err := resolveStackName("", []string{"chatbot"})
	require.NoError(t, err)
	assert.Equal(t, "chatbot", name)
}

// TestResolveStackName_InvalidName verifies that a malformed stack name
// is rejected with a CLI error.
func TestResolveStackName_InvalidName(t *testing.T) {
	_, err := resolveStackName("", []string{"-bad-"})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGeneralError, cliErr.Code)
}

// TestResolveStackName_FromManifest verifies that without a positional
// argument the name comes from the manifest file.
func TestResolveStackName_FromManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.yml")
	content := `name: chatbot
services:
  bot:
    image: example/bot:latest
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Chdir(dir)

	name, err := resolveStackName("", nil)
	require.NoError(t, err)
	assert.Equal(t, "chatbot", name)
}

// TestHasHealthyDependents verifies the detection of services whose
// readiness probe gates other services.
func TestHasHealthyDependents(t *testing.T) {
	stack := &manifest.Stack{
		Name: "test",
		Services: map[string]*manifest.Service{
			"db":     {Image: "postgres:12-alpine"},
			"influx": {Image: "influxdb:1.8-alpine"},
			"bot": {
				Image: "example/bot:latest",
				DependsOn: manifest.DependencyList{
					{Service: "db", Condition: manifest.ConditionHealthy},
					{Service: "influx", Condition: manifest.ConditionStarted},
				},
			},
		},
	}

	assert.True(t, hasHealthyDependents(stack, "db"))
	assert.False(t, hasHealthyDependents(stack, "influx"), "started edges do not gate on probes")
	assert.False(t, hasHealthyDependents(stack, "bot"))
}
