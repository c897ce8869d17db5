package can

import (
	"errors"
	"fmt"
)

// Identifier limits for standard (11-bit) and extended (29-bit) frames.
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
)

var (
	// ErrInvalidID indicates the identifier is out of range.
	ErrInvalidID = errors.New("can: invalid identifier")
	// ErrInvalidLen indicates the data length is out of range.
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Frame is one unit of bus traffic: an identifier plus up to 8 data bytes.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool   // true for 29-bit identifier
	Len      uint8  // 0..8
	Data     [8]byte
}

// NewFrame builds a standard-identifier frame carrying data.
func NewFrame(id uint32, data []byte) Frame {
	var f Frame
	f.ID = id
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f
}

// Payload returns the Len-bounded view of the frame data.
func (f Frame) Payload() []byte {
	if f.Len > 8 {
		return f.Data[:]
	}
	return f.Data[:f.Len]
}

// Validate returns an error if the frame cannot go on the wire.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	max := uint32(MaxStdID)
	if f.Extended {
		max = MaxExtID
	}
	if f.ID > max {
		return ErrInvalidID
	}
	return nil
}

// String formats the frame for logs.
func (f Frame) String() string {
	return fmt.Sprintf("ID=0x%03X Data=%X", f.ID, f.Payload())
}
