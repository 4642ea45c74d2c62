package datadog

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_EmitsNamespacedMetrics(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	c, err := New(conn.LocalAddr().String(), "sensor_dashboard.", []string{"env:test"})
	require.NoError(t, err)
	defer c.Close()

	c.SetReading("lounge", "temperature", 21.5)
	require.NoError(t, c.Flush())

	buf := make([]byte, 4096)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)

	payload := string(buf[:n])
	assert.Contains(t, payload, "sensor_dashboard.sensor.temperature:21.5|g")
	assert.Contains(t, payload, "device:lounge")
	assert.Contains(t, payload, "env:test")
}
