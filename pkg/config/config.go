// Package config loads the SDK configuration from YAML: the bus port,
// optional telemetry broker, and per-motor safety limits.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root document.
type Config struct {
	Bus       BusConfig       `yaml:"bus" json:"bus"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Motors    []MotorConfig   `yaml:"motors" json:"motors"`
}

// BusConfig selects the serial CAN adapter.
type BusConfig struct {
	Port      string `yaml:"port" json:"port"`
	BaudRate  int    `yaml:"baud_rate" json:"baud_rate"`
	QueueSize int    `yaml:"queue_size" json:"queue_size"`
}

// TelemetryConfig configures the optional MQTT status bridge. An empty
// broker disables it.
type TelemetryConfig struct {
	Broker      string `yaml:"broker" json:"broker"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
}

// MotorConfig declares a motor and its safety limits. Zero limits are
// filled with the SDK defaults by Normalize.
type MotorConfig struct {
	Addr           uint8   `yaml:"addr" json:"addr"`
	MaxPositionDeg float64 `yaml:"max_position_deg" json:"max_position_deg"`
	MaxVelocityRPM float64 `yaml:"max_velocity_rpm" json:"max_velocity_rpm"`
	MaxCurrentA    float64 `yaml:"max_current_a" json:"max_current_a"`
	MaxTorqueNm    float64 `yaml:"max_torque_nm" json:"max_torque_nm"`
}

// Load reads, normalizes and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
