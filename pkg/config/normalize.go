package config

// Defaults applied by Normalize.
const (
	DefaultBaudRate    = 1_000_000
	DefaultQueueSize   = 256
	DefaultTopicPrefix = "encos"

	defaultMaxPositionDeg = 360
	defaultMaxVelocityRPM = 1000
	defaultMaxCurrentA    = 10
	defaultMaxTorqueNm    = 5
)

// Normalize fills unset fields with defaults. It never overwrites an
// explicitly configured value.
func (c *Config) Normalize() {
	if c.Bus.BaudRate == 0 {
		c.Bus.BaudRate = DefaultBaudRate
	}
	if c.Bus.QueueSize == 0 {
		c.Bus.QueueSize = DefaultQueueSize
	}
	if c.Telemetry.TopicPrefix == "" {
		c.Telemetry.TopicPrefix = DefaultTopicPrefix
	}
	for i := range c.Motors {
		m := &c.Motors[i]
		if m.MaxPositionDeg == 0 {
			m.MaxPositionDeg = defaultMaxPositionDeg
		}
		if m.MaxVelocityRPM == 0 {
			m.MaxVelocityRPM = defaultMaxVelocityRPM
		}
		if m.MaxCurrentA == 0 {
			m.MaxCurrentA = defaultMaxCurrentA
		}
		if m.MaxTorqueNm == 0 {
			m.MaxTorqueNm = defaultMaxTorqueNm
		}
	}
}
