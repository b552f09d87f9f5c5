package probe

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	// Registers the "postgres" driver with database/sql for the
	// postgres probe type.
	_ "github.com/lib/pq"
)

// Probe type names accepted in a Spec.
const (
	TypeTCP      = "tcp"
	TypeHTTP     = "http"
	TypePostgres = "postgres"
	TypeInflux   = "influx"
)

// Spec describes one readiness check: what to probe and how patiently.
type Spec struct {
	// Type is one of the Type* constants.
	Type string

	// Target depends on the type: "host:port" for tcp, a URL for http
	// and influx, a connection DSN for postgres.
	Target string

	// Interval is the pause between attempts.
	Interval time.Duration

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// Retries bounds the total number of attempts.
	Retries int
}

// Check runs a single probe attempt, bounded by spec.Timeout.
// A nil return means the target is ready.
func Check(ctx context.Context, spec Spec) error {
	attemptCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	switch spec.Type {
	case TypeTCP:
		return checkTCP(attemptCtx, spec.Target)
	case TypeHTTP:
		return checkHTTP(attemptCtx, spec.Target)
	case TypePostgres:
		return checkPostgres(attemptCtx, spec.Target)
	case TypeInflux:
		return checkInflux(attemptCtx, spec.Target)
	default:
		return fmt.Errorf("unknown probe type %q", spec.Type)
	}
}

// WaitReady runs the probe until it passes, the retry budget is
// exhausted, or ctx is cancelled. The first attempt runs immediately;
// subsequent attempts are spaced by spec.Interval.
//
// Returns nil once ready, the context error on cancellation, or an
// error wrapping the last attempt's failure when the budget runs out.
func WaitReady(ctx context.Context, spec Spec) error {
	var lastErr error

	for attempt := 0; attempt < spec.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(spec.Interval):
			}
		}

		lastErr = Check(ctx, spec)
		if lastErr == nil {
			return nil
		}

		// A cancelled context surfaces through the attempt error too;
		// stop retrying rather than burning the remaining budget.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("probe %s %q not ready after %d attempts: %w",
		spec.Type, spec.Target, spec.Retries, lastErr)
}

// checkTCP dials the target address. Success means something is
// accepting connections; it says nothing about application state, which
// is why stores get the postgres/influx types instead.
func checkTCP(ctx context.Context, target string) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("tcp dial %s: %w", target, err)
	}
	return conn.Close()
}

// checkHTTP performs a GET and accepts any non-5xx, non-4xx response.
// Redirect-family statuses count as ready: the server is up and routing.
func checkHTTP(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("http probe %s: %w", target, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http probe %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http probe %s: status %d", target, resp.StatusCode)
	}
	return nil
}

// checkPostgres opens a connection with the lib/pq driver and pings it.
// The pool is closed immediately — the probe must not hold connections
// open against a database that is still warming up.
func checkPostgres(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("postgres probe: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres probe: %w", err)
	}
	return nil
}

// checkInflux hits the InfluxDB 1.x /ping endpoint, which returns 204
// when the instance is ready to accept reads and writes.
func checkInflux(ctx context.Context, baseURL string) error {
	url := strings.TrimSuffix(baseURL, "/") + "/ping"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("influx probe %s: %w", baseURL, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("influx probe %s: %w", baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("influx probe %s: status %d", baseURL, resp.StatusCode)
	}
	return nil
}
