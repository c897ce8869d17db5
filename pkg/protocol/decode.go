package protocol

import (
	"encoding/binary"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
)

// faultPriority is the fixed tie-break order: when multiple fault bits
// are set, only the first match is reported. Inherited from the device
// protocol; do not reorder.
var faultPriority = []Fault{
	FaultOverVoltage,
	FaultUnderVoltage,
	FaultOverCurrent,
	FaultOverTemperature,
	FaultEncoder,
	FaultHall,
}

func decodeFault(b byte) Fault {
	for _, f := range faultPriority {
		if b&byte(f) != 0 {
			return f
		}
	}
	if b != 0 {
		return FaultUnknown
	}
	return FaultNone
}

func s16(b []byte) float64 {
	return float64(int16(binary.BigEndian.Uint16(b)))
}

func u16(b []byte) float64 {
	return float64(binary.BigEndian.Uint16(b))
}

// DecodeFeedback decodes a feedback frame into physical-unit status.
// ok is false for frames that are not 8-byte feedback of a known kind;
// that is an expected condition on a shared bus, not an error.
func DecodeFeedback(f can.Frame) (Status, bool) {
	if f.Len != 8 {
		return Status{}, false
	}
	kind := FeedbackKind((f.Data[0] >> 5) & 0x07)
	st := Status{Addr: uint8(f.ID), Kind: kind}
	d := f.Data

	switch kind {
	case FeedbackTorque:
		st.Position = degrees(u16(d[1:3]) * positionScale)
		st.Velocity = s16(d[3:5]) * velocityScale
		st.Torque = s16(d[5:7]) * torqueScale
		st.Temperature = float64(d[7]) * temperatureScale
	case FeedbackCurrent:
		st.Position = degrees(u16(d[1:3]) * positionScale)
		st.Velocity = s16(d[3:5]) * velocityScale
		st.Current = s16(d[5:7]) * currentScale
		st.Temperature = float64(d[7]) * temperatureScale
	case FeedbackWide:
		st.Position = degrees(float64(DecodeFloat32(d[1:5])))
		// The nominal layout puts a float32 velocity at bytes 5-8,
		// one byte past the end of an 8-byte frame. The device never
		// delivers it; report velocity 0 rather than misreading the
		// three bytes that are present.
		st.Velocity = 0
	case FeedbackDevice:
		st.Temperature = float64(d[1]) * temperatureScale
		st.Voltage = u16(d[2:4]) * voltageScale
	case FeedbackFault:
		st.Fault = decodeFault(d[1])
	default:
		return Status{}, false
	}
	return st, true
}

// DecodeDiscovery extracts motor addresses from a discovery response
// (a frame on the broadcast address whose payload bytes are addresses).
// ok is false when the frame is not a discovery response or names no
// valid address.
func DecodeDiscovery(f can.Frame) ([]uint8, bool) {
	if f.ID != 0x000 {
		return nil, false
	}
	var addrs []uint8
	for _, b := range f.Payload() {
		if ValidAddr(b) {
			addrs = append(addrs, b)
		}
	}
	return addrs, len(addrs) > 0
}
