package config

import (
	"fmt"

	"github.com/LyraLiu1208/encos-sdk/pkg/protocol"
)

// Validate checks the config after Normalize. It reports the first
// problem found.
func (c *Config) Validate() error {
	if c.Bus.BaudRate < 0 {
		return fmt.Errorf("config: bus: baud_rate must not be negative")
	}
	if c.Bus.QueueSize < 0 {
		return fmt.Errorf("config: bus: queue_size must not be negative")
	}

	seen := make(map[uint8]bool)
	for i, m := range c.Motors {
		if !protocol.ValidAddr(m.Addr) {
			return fmt.Errorf("config: motors[%d]: addr %d out of range [%d,%d]",
				i, m.Addr, protocol.MinAddr, protocol.MaxAddr)
		}
		if seen[m.Addr] {
			return fmt.Errorf("config: motors[%d]: duplicate addr %d", i, m.Addr)
		}
		seen[m.Addr] = true
		if m.MaxPositionDeg < 0 || m.MaxVelocityRPM < 0 || m.MaxCurrentA < 0 || m.MaxTorqueNm < 0 {
			return fmt.Errorf("config: motors[%d]: limits must not be negative", i)
		}
	}
	return nil
}
