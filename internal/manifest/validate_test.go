package manifest

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// writeFile writes test fixture content, failing the test on error.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// parseStack decodes an inline YAML manifest for validation tests.
func parseStack(t *testing.T, text string) *Stack {
	t.Helper()
	stack, err := Parse([]byte(text), ".yaml")
	require.NoError(t, err)
	if stack.Name == "" {
		stack.Name = "test"
	}
	return stack
}

// exitCode extracts the CLIError exit code from a validation error.
func exitCode(t *testing.T, err error) model.ExitCode {
	t.Helper()
	require.Error(t, err)
	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok, "expected a CLIError, got %T: %v", err, err)
	return cliErr.Code
}

// TestValidate_MissingImage verifies that a service without an image is
// rejected as an invalid manifest.
func TestValidate_MissingImage(t *testing.T) {
	stack := parseStack(t, `
services:
  app:
    restart: always
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, err.Error(), "image is required")
}

// TestValidate_UnknownRestartPolicy verifies rejection of restart
// policies outside the documented set.
func TestValidate_UnknownRestartPolicy(t *testing.T) {
	stack := parseStack(t, `
services:
  app:
    image: example/app:1
    restart: occasionally
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, err.Error(), "invalid restart policy")
}

// TestValidate_UndeclaredDependency verifies that depends_on must
// reference a declared service.
func TestValidate_UndeclaredDependency(t *testing.T) {
	stack := parseStack(t, `
services:
  app:
    image: example/app:1
    depends_on: [db]
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, err.Error(), "undeclared service")
}

// TestValidate_SelfDependency verifies that a service depending on
// itself is reported as a cycle.
func TestValidate_SelfDependency(t *testing.T) {
	stack := parseStack(t, `
services:
  app:
    image: example/app:1
    depends_on: [app]
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitDependencyCycle, exitCode(t, err))
}

// TestValidate_HealthyConditionRequiresProbe verifies that a healthy
// condition on a probe-less dependency is rejected — there would be
// nothing to wait for.
func TestValidate_HealthyConditionRequiresProbe(t *testing.T) {
	stack := parseStack(t, `
services:
  db:
    image: postgres:12-alpine
  app:
    image: example/app:1
    depends_on:
      db:
        condition: healthy
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, err.Error(), "declares no probe")
}

// TestValidate_UndeclaredVolume verifies that a named-volume mount must
// reference a volume declared at the stack level.
func TestValidate_UndeclaredVolume(t *testing.T) {
	stack := parseStack(t, `
services:
  db:
    image: postgres:12-alpine
    volumes:
      - db_data:/var/lib/postgresql/data
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, err.Error(), "undeclared volume")
}

// TestValidate_DuplicateHostPort verifies that two services publishing
// the same host port fail validation with the port-conflict exit code.
func TestValidate_DuplicateHostPort(t *testing.T) {
	stack := parseStack(t, `
services:
  api:
    image: example/api:1
    ports: ["2939:8080"]
  grafana:
    image: grafana/grafana:latest
    ports: ["2939:3000"]
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitPortConflict, exitCode(t, err))
}

// TestValidate_InvalidProbeType verifies the probe type allowlist.
func TestValidate_InvalidProbeType(t *testing.T) {
	stack := parseStack(t, `
services:
  db:
    image: postgres:12-alpine
    probe:
      type: icmp
      target: localhost
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, err.Error(), "invalid probe type")
}

// TestValidate_ProbeTargetRequired verifies that a probe without a
// target is rejected.
func TestValidate_ProbeTargetRequired(t *testing.T) {
	stack := parseStack(t, `
services:
  db:
    image: postgres:12-alpine
    probe:
      type: tcp
`)
	err := Validate(stack)
	assert.Equal(t, model.ExitManifestInvalid, exitCode(t, err))
	assert.Contains(t, err.Error(), "probe target is required")
}

// TestValidate_BindMountNeedsNoDeclaration verifies that host-path bind
// mounts do not require a stack-level volume declaration.
func TestValidate_BindMountNeedsNoDeclaration(t *testing.T) {
	stack := parseStack(t, `
services:
  app:
    image: example/app:1
    volumes:
      - /etc/app/config:/config:ro
`)
	assert.NoError(t, Validate(stack))
}
