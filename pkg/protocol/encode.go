package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
)

func addrError(addr uint8) error {
	return fmt.Errorf("protocol: motor address %d out of range [%d,%d]", addr, MinAddr, MaxAddr)
}

// QueryAddresses builds the broadcast discovery request. Every motor on
// the bus answers with its address.
func QueryAddresses() can.Frame {
	return can.NewFrame(0x000, []byte{0x55, 0xAA, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
}

// ResetAddress builds the broadcast command assigning newAddr to the
// (single) motor on the bus.
func ResetAddress(newAddr uint8) (can.Frame, error) {
	if !ValidAddr(newAddr) {
		return can.Frame{}, addrError(newAddr)
	}
	return can.NewFrame(0x000, []byte{0x55, 0xAA, 0x55, 0xAA, newAddr, 0x00, 0x00, 0x00}), nil
}

// SetZero builds the command declaring the motor's current position as
// its zero point. Allow PacingInterval before the next configuration
// command.
func SetZero(addr uint8) (can.Frame, error) {
	if !ValidAddr(addr) {
		return can.Frame{}, addrError(addr)
	}
	return can.NewFrame(uint32(addr), []byte{0x55, 0xAA, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}), nil
}

// ForcePosition builds a force/position hybrid command. Inputs are
// clamped to their valid ranges and packed most-significant-first:
//
//	bits 63-52  Kp        [0, 4095]
//	bits 51-43  Kd        [0, 511]
//	bits 42-27  position  [-π, π] rad → [0, 65535]
//	bits 26-16  velocity  [-10, 10] rad/s → [0, 2047]
//	bits 15-5   torque    [-10, 10] N·m → [0, 2047]
//	bits 4-0    reserved, zero
func ForcePosition(addr uint8, kp, kd, positionRad, velocityRadPerS, torqueNm float64) (can.Frame, error) {
	if !ValidAddr(addr) {
		return can.Frame{}, addrError(addr)
	}
	word := uint64(clamp(kp, 0, kpMax)) << 52
	word |= uint64(clamp(kd, 0, kdMax)) << 43
	word |= uint64(ScaleToRange(positionRad, -math.Pi, math.Pi, 16)) << 27
	word |= uint64(ScaleToRange(velocityRadPerS, -10, 10, 11)) << 16
	word |= uint64(ScaleToRange(torqueNm, -10, 10, 11)) << 5

	var f can.Frame
	f.ID = uint32(addr)
	f.Len = 8
	binary.BigEndian.PutUint64(f.Data[:], word)
	return f, nil
}

// ServoPosition builds a servo position command: float32 big-endian
// position in radians, then speed limit as round(RPM*10) and current
// limit as round(A*100), both unsigned 16-bit big-endian.
func ServoPosition(addr uint8, positionDeg, speedLimitRPM, currentLimitA float64) (can.Frame, error) {
	if !ValidAddr(addr) {
		return can.Frame{}, addrError(addr)
	}
	var f can.Frame
	f.ID = uint32(addr)
	f.Len = 8
	EncodeFloat32(f.Data[0:4], float32(radians(positionDeg)))
	binary.BigEndian.PutUint16(f.Data[4:6], clampU16(speedLimitRPM*10))
	binary.BigEndian.PutUint16(f.Data[6:8], clampU16(currentLimitA*100))
	return f, nil
}

// ServoVelocity builds a servo velocity command: float32 big-endian
// speed in RPM, then float32 big-endian current limit in A.
func ServoVelocity(addr uint8, speedRPM, currentLimitA float64) (can.Frame, error) {
	if !ValidAddr(addr) {
		return can.Frame{}, addrError(addr)
	}
	var f can.Frame
	f.ID = uint32(addr)
	f.Len = 8
	EncodeFloat32(f.Data[0:4], float32(speedRPM))
	EncodeFloat32(f.Data[4:8], float32(currentLimitA))
	return f, nil
}

// StatusRequest builds a feedback request for one kind.
func StatusRequest(addr uint8, kind FeedbackKind) (can.Frame, error) {
	if !ValidAddr(addr) {
		return can.Frame{}, addrError(addr)
	}
	if !kind.valid() {
		return can.Frame{}, fmt.Errorf("protocol: feedback kind %d out of range [1,5]", kind)
	}
	return can.NewFrame(uint32(addr), []byte{0xAA, 0x55, byte(kind), 0x00, 0x00, 0x00, 0x00, 0x00}), nil
}
