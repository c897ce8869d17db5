package protocol

import (
	"encoding/binary"
	"math"
)

// EncodeFloat32 writes the IEEE-754 big-endian encoding of v into b.
func EncodeFloat32(b []byte, v float32) {
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
}

// DecodeFloat32 reads a big-endian IEEE-754 float32 from b.
func DecodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// ScaleToRange maps v, clamped to [lo, hi], onto the unsigned integer
// range [0, 2^bits-1].
func ScaleToRange(v, lo, hi float64, bits uint) uint32 {
	if v < lo {
		v = lo
	} else if v > hi {
		v = hi
	}
	ratio := (v - lo) / (hi - lo)
	return uint32(ratio * float64((uint32(1)<<bits)-1))
}

// UnscaleFromRange inverts ScaleToRange.
func UnscaleFromRange(raw uint32, lo, hi float64, bits uint) float64 {
	ratio := float64(raw) / float64((uint32(1)<<bits)-1)
	return lo + ratio*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampU16(v float64) uint16 {
	return uint16(clamp(math.Round(v), 0, math.MaxUint16))
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
