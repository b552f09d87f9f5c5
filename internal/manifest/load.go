// load.go reads a manifest file from disk and decodes it into a Stack.
//
// Two on-disk formats are accepted, selected by file extension:
//   - .yml / .yaml — decoded directly with yaml.v3
//   - .json / .jsonc — JSONC comments are stripped first, then the clean
//     JSON is decoded with yaml.v3 (YAML is a JSON superset, so one set
//     of field tags serves both formats)
//
// Environment variable references are substituted before decoding, so
// values like TOKEN or GF_SECURITY_ADMIN_PASSWORD never need to appear
// literally in the manifest.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/stackd/internal/model"
)

// DefaultManifestNames are probed in order when no -f flag is given.
var DefaultManifestNames = []string{
	"stack.yml",
	"stack.yaml",
	"stack.jsonc",
	"stack.json",
}

// Load reads, interpolates, and decodes the manifest at path.
// The returned Stack is decoded but NOT validated — callers should run
// Validate before acting on it.
//
// Returns a model.CLIError with ExitManifestInvalid when the file cannot
// be read or parsed.
func Load(path string) (*Stack, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitManifestInvalid,
			fmt.Sprintf("cannot read manifest %q", path),
			err,
		)
	}

	stack, err := Parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitManifestInvalid,
			fmt.Sprintf("cannot parse manifest %q", path),
			err,
		)
	}

	// A manifest without an explicit name inherits the file's base name,
	// e.g. "chatbot.yml" → stack "chatbot".
	if stack.Name == "" {
		base := filepath.Base(path)
		stack.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return stack, nil
}

// Parse decodes manifest bytes with the format implied by ext
// (".yml", ".yaml", ".json", or ".jsonc"). Environment interpolation
// runs on the raw text before decoding.
func Parse(raw []byte, ext string) (*Stack, error) {
	text := InterpolateEnv(string(raw))

	var data []byte
	switch strings.ToLower(ext) {
	case ".yml", ".yaml", "":
		data = []byte(text)
	case ".json", ".jsonc":
		// Strip comments and trailing commas; the result is plain JSON,
		// which yaml.v3 decodes with the same struct tags.
		data = jsonc.ToJSON([]byte(text))
	default:
		return nil, fmt.Errorf("unsupported manifest extension %q (valid: .yml, .yaml, .json, .jsonc)", ext)
	}

	var stack Stack
	if err := yaml.Unmarshal(data, &stack); err != nil {
		return nil, err
	}

	if len(stack.Services) == 0 {
		return nil, fmt.Errorf("manifest declares no services")
	}

	return &stack, nil
}

// Find locates a manifest file: an explicit path is used as-is, otherwise
// the default names are probed in the current directory.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", model.WrapCLIError(
				model.ExitManifestInvalid,
				fmt.Sprintf("manifest %q not found", explicit),
				err,
			)
		}
		return explicit, nil
	}

	for _, name := range DefaultManifestNames {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	return "", model.NewCLIError(
		model.ExitManifestInvalid,
		fmt.Sprintf("no manifest found (looked for %s); use -f to point at one", strings.Join(DefaultManifestNames, ", ")),
	)
}
