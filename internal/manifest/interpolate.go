// interpolate.go implements environment variable substitution in manifest
// text before decoding. The supported syntax is the common descriptor
// subset:
//
//	${VAR}         value of VAR, empty if unset
//	${VAR:-def}    value of VAR, "def" if unset or empty
//	$VAR           shorthand for ${VAR}
//	$$             literal dollar sign
//
// Substitution happens on the raw manifest bytes, so it works identically
// for YAML and JSONC manifests.
package manifest

import (
	"os"
	"strings"
)

// LookupFunc resolves a variable name to its value. The second return
// reports whether the variable is set at all, which distinguishes unset
// from set-but-empty for the ${VAR:-def} form.
type LookupFunc func(name string) (string, bool)

// Interpolate substitutes variable references in the manifest text using
// the given lookup. Unset variables without a default substitute to the
// empty string, matching conventional descriptor behavior.
func Interpolate(text string, lookup LookupFunc) string {
	// os.Expand handles the $VAR / ${...} scanning; the mapping callback
	// only has to interpret what lands between the braces.
	return os.Expand(text, func(ref string) string {
		// os.Expand passes "$" for the "$$" escape sequence.
		if ref == "$" {
			return "$"
		}

		name, def, hasDefault := strings.Cut(ref, ":-")
		value, ok := lookup(name)
		if hasDefault && (!ok || value == "") {
			return def
		}
		return value
	})
}

// InterpolateEnv substitutes variable references from the process
// environment. This is what Load uses for real manifests.
func InterpolateEnv(text string) string {
	return Interpolate(text, os.LookupEnv)
}
