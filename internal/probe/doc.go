// Package probe implements readiness checks for stack services.
//
// A plain depends_on edge only guarantees start ORDER — the dependency's
// container is running, but the application inside it may still be
// initializing. For dependencies like a relational store, that gap
// matters: a bot process that connects before the database accepts
// connections just crashes and burns a restart. Services can therefore
// declare a probe, and dependents can gate on "condition: healthy",
// which waits for the probe to pass.
//
// Four probe types cover the stores a stack typically fronts:
//
//	tcp       raw dial, for anything that listens
//	http      GET returning a non-error status
//	postgres  driver-level ping through lib/pq
//	influx    the 1.x /ping health endpoint
package probe
