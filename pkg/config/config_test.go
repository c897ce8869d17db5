package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
bus:
  port: /dev/ttyUSB0
telemetry:
  broker: mqtt://broker.local:1883
motors:
  - addr: 1
    max_position_deg: 90
  - addr: 2
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "encos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "/dev/ttyUSB0", cfg.Bus.Port)
	require.Equal(t, DefaultBaudRate, cfg.Bus.BaudRate)
	require.Equal(t, DefaultQueueSize, cfg.Bus.QueueSize)
	require.Equal(t, "mqtt://broker.local:1883", cfg.Telemetry.Broker)
	require.Equal(t, DefaultTopicPrefix, cfg.Telemetry.TopicPrefix)

	require.Len(t, cfg.Motors, 2)
	// Explicit limit kept, the rest defaulted.
	require.Equal(t, 90.0, cfg.Motors[0].MaxPositionDeg)
	require.Equal(t, 1000.0, cfg.Motors[0].MaxVelocityRPM)
	require.Equal(t, 360.0, cfg.Motors[1].MaxPositionDeg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "motors: {not a list}"))
	require.Error(t, err)
}

func TestValidateAddrRange(t *testing.T) {
	_, err := Load(writeTemp(t, "motors:\n  - addr: 0\n"))
	require.ErrorContains(t, err, "out of range")
	_, err = Load(writeTemp(t, "motors:\n  - addr: 33\n"))
	require.ErrorContains(t, err, "out of range")
}

func TestValidateDuplicateAddr(t *testing.T) {
	_, err := Load(writeTemp(t, "motors:\n  - addr: 4\n  - addr: 4\n"))
	require.ErrorContains(t, err, "duplicate addr")
}

func TestValidateNegativeLimit(t *testing.T) {
	_, err := Load(writeTemp(t, "motors:\n  - addr: 4\n    max_current_a: -1\n"))
	require.ErrorContains(t, err, "must not be negative")
}

func TestValidateNegativeBusSettings(t *testing.T) {
	_, err := Load(writeTemp(t, "bus:\n  baud_rate: -1\n"))
	require.ErrorContains(t, err, "baud_rate must not be negative")
	_, err = Load(writeTemp(t, "bus:\n  queue_size: -1\n"))
	require.ErrorContains(t, err, "queue_size must not be negative")
}
