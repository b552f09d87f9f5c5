// Package manifest handles parsing and analysis of stack manifest files.
//
// A stack manifest declares the services of a deployment (image,
// environment, published ports, volume mounts, dependency edges, restart
// policy, readiness probe), the named volumes they persist into, and an
// optional metrics endpoint for orchestration telemetry.
//
// Manifests are written in YAML (.yml/.yaml) or JSON with comments
// (.json/.jsonc). Environment variable references (${VAR}, ${VAR:-default})
// are substituted from the process environment before decoding, so a single
// manifest can carry secrets and host-specific values externally.
package manifest
