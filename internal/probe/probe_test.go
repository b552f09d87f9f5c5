package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quickSpec builds a Spec with short timings suitable for unit tests.
func quickSpec(probeType, target string, retries int) Spec {
	return Spec{
		Type:     probeType,
		Target:   target,
		Interval: 10 * time.Millisecond,
		Timeout:  200 * time.Millisecond,
		Retries:  retries,
	}
}

// TestCheck_TCP verifies the tcp probe against a live local listener.
func TestCheck_TCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	// Accept in the background so the dial completes cleanly.
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	err = Check(context.Background(), quickSpec(TypeTCP, listener.Addr().String(), 1))
	assert.NoError(t, err)
}

// TestCheck_TCP_Refused verifies that a closed port fails the probe.
func TestCheck_TCP_Refused(t *testing.T) {
	// Bind and immediately release a port so nothing is listening on it.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	err = Check(context.Background(), quickSpec(TypeTCP, addr, 1))
	assert.Error(t, err)
}

// TestCheck_HTTP verifies the http probe accepts 2xx and rejects 5xx.
func TestCheck_HTTP(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	assert.NoError(t, Check(context.Background(), quickSpec(TypeHTTP, ok.URL, 1)))

	err := Check(context.Background(), quickSpec(TypeHTTP, failing.URL, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

// TestCheck_Influx verifies the influx probe against a fake /ping
// endpoint returning 204, the InfluxDB 1.x ready signal.
func TestCheck_Influx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	assert.NoError(t, Check(context.Background(), quickSpec(TypeInflux, server.URL, 1)))
}

// TestCheck_UnknownType verifies that an unknown probe type is an error
// rather than a silent pass.
func TestCheck_UnknownType(t *testing.T) {
	err := Check(context.Background(), quickSpec("icmp", "localhost", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown probe type")
}

// TestWaitReady_EventualSuccess verifies that WaitReady keeps retrying
// until the target comes up. The fake server starts failing and flips
// to healthy after two attempts.
func TestWaitReady_EventualSuccess(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := WaitReady(context.Background(), quickSpec(TypeHTTP, server.URL, 10))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 3, "probe should have retried past the failures")
}

// TestWaitReady_BudgetExhausted verifies that WaitReady gives up after
// the retry budget and reports the attempt count and last error.
func TestWaitReady_BudgetExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := WaitReady(context.Background(), quickSpec(TypeHTTP, server.URL, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

// TestWaitReady_Cancelled verifies that cancelling the context stops
// the retry loop promptly with the context error.
func TestWaitReady_Cancelled(t *testing.T) {
	// Nothing listens on the target, so every attempt fails.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = WaitReady(ctx, quickSpec(TypeTCP, addr, 1000))
	assert.ErrorIs(t, err, context.Canceled)
}
