package port

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIsPortAvailable_FreePort verifies that a port nothing is listening
// on reports as available. The port is discovered by binding to :0 and
// immediately releasing it.
func TestIsPortAvailable_FreePort(t *testing.T) {
	scanner := NewScanner()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	freePort := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	assert.True(t, scanner.IsPortAvailable(freePort, "tcp"),
		"a just-released port should be available")
}

// TestIsPortAvailable_BoundPort verifies that a port held by a live
// listener reports as unavailable.
func TestIsPortAvailable_BoundPort(t *testing.T) {
	scanner := NewScanner()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	boundPort := listener.Addr().(*net.TCPAddr).Port
	assert.False(t, scanner.IsPortAvailable(boundPort, "tcp"),
		"a bound port should not be available")
}

// TestIsPortAvailable_UDP verifies the UDP path using ListenPacket.
func TestIsPortAvailable_UDP(t *testing.T) {
	scanner := NewScanner()

	conn, err := net.ListenPacket("udp", ":0")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	boundPort := conn.LocalAddr().(*net.UDPAddr).Port
	assert.False(t, scanner.IsPortAvailable(boundPort, "udp"),
		"a bound UDP port should not be available")
}

// TestIsPortAvailable_UnknownProtocol verifies that unknown protocols
// fail safe as unavailable.
func TestIsPortAvailable_UnknownProtocol(t *testing.T) {
	scanner := NewScanner()
	assert.False(t, scanner.IsPortAvailable(48000, "sctp"))
}

// TestGetUsedPorts verifies that a bound port inside the scanned range
// is reported as used.
func TestGetUsedPorts(t *testing.T) {
	scanner := NewScanner()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	boundPort := listener.Addr().(*net.TCPAddr).Port
	used := scanner.GetUsedPorts(boundPort, boundPort)

	assert.Equal(t, []int{boundPort}, used,
		fmt.Sprintf("port %d should be reported as used", boundPort))
}
