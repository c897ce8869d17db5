// Package protocol implements the motor control codec: pure functions
// mapping between physical-unit commands/feedback and the fixed 8-byte
// frame payloads on the wire.
package protocol

import (
	"math"
	"time"
)

// Bus-wide protocol constants.
const (
	// MinAddr and MaxAddr bound the addressable motor range.
	MinAddr = 1
	MaxAddr = 32

	// Bitrate of the CAN bus in bit/s.
	Bitrate = 1_000_000

	// HeartbeatWindow is the interval after which a command stream
	// with no further traffic is considered stale.
	HeartbeatWindow = 500 * time.Millisecond

	// PacingInterval is the minimum recommended spacing between
	// configuration-class commands to the same motor.
	PacingInterval = 500 * time.Millisecond
)

// Wire scaling: physical value per raw LSB.
const (
	positionScale    = (2 * math.Pi) / 65536 // rad
	velocityScale    = 0.1                   // RPM
	currentScale     = 0.01                  // A
	torqueScale      = 0.01                  // N·m
	temperatureScale = 0.1                   // °C
	voltageScale     = 0.1                   // V
)

// Control-parameter field limits.
const (
	kpMax = 4095 // 12 bits
	kdMax = 511  // 9 bits
)

// ValidAddr reports whether addr is an addressable motor.
func ValidAddr(addr uint8) bool {
	return addr >= MinAddr && addr <= MaxAddr
}

// FeedbackKind discriminates which physical quantities a feedback
// frame carries. It travels in the top 3 bits of payload byte 0.
type FeedbackKind uint8

const (
	// FeedbackTorque carries position, velocity and torque.
	FeedbackTorque FeedbackKind = 1
	// FeedbackCurrent carries position, velocity and current.
	FeedbackCurrent FeedbackKind = 2
	// FeedbackWide carries float32 position (and nominally velocity,
	// which does not fit the frame; see DecodeFeedback).
	FeedbackWide FeedbackKind = 3
	// FeedbackDevice carries temperature and bus voltage.
	FeedbackDevice FeedbackKind = 4
	// FeedbackFault carries a fault report.
	FeedbackFault FeedbackKind = 5
)

func (k FeedbackKind) valid() bool {
	return k >= FeedbackTorque && k <= FeedbackFault
}

// Fault is a single reported fault condition. The wire carries a
// bitmask; decoding reports only the highest-priority set bit.
type Fault uint8

const (
	FaultNone            Fault = 0x00
	FaultOverVoltage     Fault = 0x01
	FaultUnderVoltage    Fault = 0x02
	FaultOverCurrent     Fault = 0x04
	FaultOverTemperature Fault = 0x08
	FaultEncoder         Fault = 0x10
	FaultHall            Fault = 0x20
	FaultUnknown         Fault = 0xFF
)

var faultNames = map[Fault]string{
	FaultNone:            "no fault",
	FaultOverVoltage:     "over-voltage",
	FaultUnderVoltage:    "under-voltage",
	FaultOverCurrent:     "over-current",
	FaultOverTemperature: "over-temperature",
	FaultEncoder:         "encoder fault",
	FaultHall:            "hall sensor fault",
	FaultUnknown:         "unknown fault",
}

func (f Fault) String() string {
	if s, ok := faultNames[f]; ok {
		return s
	}
	return "unknown fault"
}

// Status is decoded feedback in physical units. Fields not carried by
// the frame's FeedbackKind stay zero; zero is not distinguishable from
// "not reported" on this protocol.
type Status struct {
	Addr        uint8        `json:"addr"`
	Position    float64      `json:"position_deg"`
	Velocity    float64      `json:"velocity_rpm"`
	Current     float64      `json:"current_a"`
	Torque      float64      `json:"torque_nm"`
	Temperature float64      `json:"temperature_c"`
	Voltage     float64      `json:"voltage_v"`
	Fault       Fault        `json:"fault"`
	Kind        FeedbackKind `json:"kind"`
}

// HasFault reports whether the status carries a fault.
func (s Status) HasFault() bool {
	return s.Fault != FaultNone
}
