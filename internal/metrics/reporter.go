package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Measurement names for lifecycle points.
const (
	MeasurementStart   = "service_start"
	MeasurementExit    = "service_exit"
	MeasurementRestart = "service_restart"
)

// Reporter writes stack lifecycle events to an InfluxDB bucket.
// The zero-value/disabled Reporter (from NewDisabled, or NewReporter
// with an empty URL) accepts all calls and writes nothing.
//
// Writes are best-effort: a telemetry failure must never take down
// supervision, so errors are returned for logging but callers are not
// expected to act on them.
type Reporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	stack    string
}

// Config holds the InfluxDB connection settings, typically decoded from
// the manifest's metrics section.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewReporter creates a Reporter for the given stack. An empty URL
// yields a disabled reporter.
func NewReporter(cfg Config, stackName string) *Reporter {
	if cfg.URL == "" {
		return NewDisabled()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Reporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		stack:    stackName,
	}
}

// NewDisabled returns a Reporter that discards every event.
func NewDisabled() *Reporter {
	return &Reporter{}
}

// Enabled reports whether events actually reach an InfluxDB endpoint.
func (r *Reporter) Enabled() bool {
	return r.writeAPI != nil
}

// ServiceStart records a service (re)entering the starting state.
func (r *Reporter) ServiceStart(ctx context.Context, service string) error {
	return r.write(ctx, MeasurementStart, service, map[string]interface{}{
		"count": 1,
	})
}

// ServiceExit records a container exit and its exit code.
func (r *Reporter) ServiceExit(ctx context.Context, service string, exitCode int64) error {
	return r.write(ctx, MeasurementExit, service, map[string]interface{}{
		"exit_code": exitCode,
	})
}

// ServiceRestart records a restart attempt with the consecutive attempt
// count since the last stable run.
func (r *Reporter) ServiceRestart(ctx context.Context, service string, attempt int) error {
	return r.write(ctx, MeasurementRestart, service, map[string]interface{}{
		"attempt": attempt,
	})
}

// write builds and writes one point tagged with the stack and service.
func (r *Reporter) write(ctx context.Context, measurement, service string, fields map[string]interface{}) error {
	if r.writeAPI == nil {
		return nil
	}

	p := influxdb2.NewPoint(
		measurement,
		map[string]string{
			"stack":   r.stack,
			"service": service,
		},
		fields,
		time.Now(),
	)
	return r.writeAPI.WritePoint(ctx, p)
}

// Close flushes and releases the underlying client. Safe on a disabled
// reporter.
func (r *Reporter) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
