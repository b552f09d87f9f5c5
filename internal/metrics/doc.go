// Package metrics reports orchestration telemetry to InfluxDB.
//
// When a stack manifest carries a metrics section, the supervisor emits
// one point per lifecycle event: a service starting, a container
// exiting (with its exit code), and a restart attempt (with the
// consecutive attempt count). Charted over time, the restart series is
// the earliest signal of a crash-looping service — an unconditional
// restart policy otherwise hides the looping entirely.
//
// Without a metrics section the reporter is a no-op, so callers never
// branch on whether telemetry is configured.
package metrics
