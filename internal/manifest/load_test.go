package manifest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// loadChatbotStack loads the reference five-service stack from testdata
// with known credentials in the environment. This is the canonical
// fixture for the coordination-contract tests below.
func loadChatbotStack(t *testing.T) *Stack {
	t.Helper()
	t.Setenv("CLIENT_ID", "123456")
	t.Setenv("TOKEN", "bot-token")
	t.Setenv("LOG_CHANNEL", "987654")

	stack, err := Load(filepath.Join("testdata", "chatbot.yaml"))
	require.NoError(t, err)
	require.NoError(t, Validate(stack))
	return stack
}

// TestLoad_ChatbotStack verifies the basic shape of the reference stack:
// five services, two named volumes.
func TestLoad_ChatbotStack(t *testing.T) {
	stack := loadChatbotStack(t)

	assert.Equal(t, "chatbot", stack.Name)
	assert.Equal(t, []string{"api", "bot", "db", "grafana", "influx"}, stack.ServiceNames())
	assert.Equal(t, []string{"db_data", "influx_data"}, stack.VolumeNames())
}

// TestLoad_RestartPolicyUniform verifies that every service in the
// reference stack carries restart policy "always".
func TestLoad_RestartPolicyUniform(t *testing.T) {
	stack := loadChatbotStack(t)

	for _, name := range stack.ServiceNames() {
		policy, err := stack.Services[name].RestartPolicy()
		require.NoError(t, err)
		assert.Equal(t, model.RestartAlways, policy, "service %q should restart always", name)
	}
}

// TestLoad_DependencyEdges verifies the declared dependency edges:
// bot → db, influx; api → db; grafana → influx; db and influx are leaves.
func TestLoad_DependencyEdges(t *testing.T) {
	stack := loadChatbotStack(t)

	assert.Equal(t, []string{"db", "influx"}, stack.Services["bot"].DependsOn.ServiceNames())
	assert.Equal(t, []string{"db"}, stack.Services["api"].DependsOn.ServiceNames())
	assert.Equal(t, []string{"influx"}, stack.Services["grafana"].DependsOn.ServiceNames())
	assert.Empty(t, stack.Services["db"].DependsOn)
	assert.Empty(t, stack.Services["influx"].DependsOn)
}

// TestLoad_DependencyConditions verifies that both depends_on syntaxes
// normalize correctly: the mapping form preserves conditions, the list
// form defaults to "started".
func TestLoad_DependencyConditions(t *testing.T) {
	stack := loadChatbotStack(t)

	for _, dep := range stack.Services["bot"].DependsOn {
		assert.Equal(t, ConditionHealthy, dep.Condition,
			"bot should gate on %q health", dep.Service)
	}
	require.Len(t, stack.Services["grafana"].DependsOn, 1)
	assert.Equal(t, ConditionStarted, stack.Services["grafana"].DependsOn[0].Condition,
		"list-form depends_on should default to started")
}

// TestLoad_PublishedPorts verifies that exactly two services publish
// host ports: 2939→8080 for api and 2938→3000 for grafana.
func TestLoad_PublishedPorts(t *testing.T) {
	stack := loadChatbotStack(t)

	mappings, err := stack.PortMappings()
	require.NoError(t, err)
	require.Len(t, mappings, 2, "only api and grafana publish ports")

	assert.Equal(t, model.PortMapping{
		ServiceName: "api", ContainerPort: 8080, HostPort: 2939, Protocol: "tcp",
	}, mappings[0])
	assert.Equal(t, model.PortMapping{
		ServiceName: "grafana", ContainerPort: 3000, HostPort: 2938, Protocol: "tcp",
	}, mappings[1])
}

// TestLoad_NamedVolumesMountedOnce verifies that each named volume is
// mounted by exactly one service: db_data by db, influx_data by influx.
func TestLoad_NamedVolumesMountedOnce(t *testing.T) {
	stack := loadChatbotStack(t)

	mountedBy := make(map[string][]string)
	for _, name := range stack.ServiceNames() {
		mounts, err := stack.Services[name].VolumeMounts(name)
		require.NoError(t, err)
		for _, m := range mounts {
			if m.Named {
				mountedBy[m.Source] = append(mountedBy[m.Source], name)
			}
		}
	}

	assert.Equal(t, []string{"db"}, mountedBy["db_data"])
	assert.Equal(t, []string{"influx"}, mountedBy["influx_data"])
	assert.Len(t, mountedBy, 2)
}

// TestLoad_DatabaseCredentialsConsistent verifies that bot and api
// resolve identical database credential literals, so both processes
// reach the same relational store with the same identity.
func TestLoad_DatabaseCredentialsConsistent(t *testing.T) {
	stack := loadChatbotStack(t)

	botEnv := stack.Services["bot"].Environment
	apiEnv := stack.Services["api"].Environment

	for key, want := range map[string]string{
		"DATABASE_USER": "postgres",
		"DATABASE_PASS": "postgres",
		"DATABASE_NAME": "postgres",
		"DATABASE_HOST": "db",
		"DATABASE_PORT": "5432",
	} {
		assert.Equal(t, want, botEnv[key], "bot %s", key)
		assert.Equal(t, want, apiEnv[key], "api %s", key)
	}
}

// TestLoad_EnvironmentInterpolation verifies that ${VAR} references pick
// up process environment values and ${VAR:-default} falls back when the
// variable is unset.
func TestLoad_EnvironmentInterpolation(t *testing.T) {
	stack := loadChatbotStack(t)

	botEnv := stack.Services["bot"].Environment
	assert.Equal(t, "123456", botEnv["CLIENT_ID"])
	assert.Equal(t, "bot-token", botEnv["TOKEN"])

	// GRAFANA_USER/GRAFANA_PASSWORD are not set, so the defaults apply.
	grafanaEnv := stack.Services["grafana"].Environment
	assert.Equal(t, "admin", grafanaEnv["GF_SECURITY_ADMIN_USER"])
	assert.Equal(t, "admin", grafanaEnv["GF_SECURITY_ADMIN_PASSWORD"])
}

// TestParse_JSONC verifies that a JSONC manifest with comments decodes
// through the same schema as YAML.
func TestParse_JSONC(t *testing.T) {
	raw := []byte(`{
  // minimal two-service stack
  "name": "mini",
  "services": {
    "db": {
      "image": "postgres:12-alpine",
      "restart": "always",
    },
    "app": {
      "image": "example/app:1",
      "depends_on": ["db"],
      "environment": ["DATABASE_HOST=db", "DATABASE_PORT=5432"],
    },
  },
}`)

	stack, err := Parse(raw, ".jsonc")
	require.NoError(t, err)

	assert.Equal(t, "mini", stack.Name)
	assert.Equal(t, []string{"db"}, stack.Services["app"].DependsOn.ServiceNames())
	assert.Equal(t, "5432", stack.Services["app"].Environment["DATABASE_PORT"],
		"list-form environment should normalize into the map")
}

// TestParse_NoServices verifies that an empty services map is rejected.
func TestParse_NoServices(t *testing.T) {
	_, err := Parse([]byte("name: empty\nservices: {}\n"), ".yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no services")
}

// TestParse_UnknownExtension verifies the extension allowlist.
func TestParse_UnknownExtension(t *testing.T) {
	_, err := Parse([]byte("name: x"), ".toml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported manifest extension")
}

// TestLoad_MissingFile verifies that a missing manifest surfaces
// ExitManifestInvalid for scriptable failure handling.
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "does-not-exist.yaml"))
	require.Error(t, err)

	cliErr, ok := err.(*model.CLIError)
	require.True(t, ok, "expected a CLIError")
	assert.Equal(t, model.ExitManifestInvalid, cliErr.Code)
}

// TestLoad_NameFromFilename verifies that a manifest without an explicit
// name inherits the file's base name.
func TestLoad_NameFromFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edge.yaml")
	writeFile(t, path, "services:\n  app:\n    image: example/app:1\n")

	stack, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "edge", stack.Name)
}
