// Package supervisor implements the orchestration core of stackd: it
// starts the services of a stack in dependency order and keeps them
// running according to their restart policies.
//
// Each service is driven by its own goroutine through a small lifecycle:
//
//	pending → starting → running ⇄ restarting → stopped
//	                  ↘ failed (start error or retry budget exhausted)
//
// Startup gating is channel-based: a service's goroutine blocks until
// every dependency has closed its "started" channel (plain depends_on)
// or its "healthy" channel (probe-gated edges). Restart decisions are
// made by the supervisor itself — the containers it creates carry no
// daemon-level restart policy — so every exit is observed, logged, and
// reported before the policy is applied.
package supervisor
