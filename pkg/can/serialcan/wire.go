// Package serialcan drives a USB-CAN adapter speaking a fixed 13-byte
// framing over a serial line: a header byte (0x80 | flags | DLC), the
// identifier big-endian, then 8 data bytes regardless of DLC.
package serialcan

import (
	"encoding/binary"
	"fmt"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
)

const frameSize = 13

const (
	headerMark   = 0x80
	remoteFlag   = 0x10
	extendedFlag = 0x20
)

func marshalFrame(f can.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, frameSize)
	header := byte(headerMark | (f.Len & 0x0F))
	if f.Extended {
		header |= extendedFlag
	}
	buf[0] = header
	binary.BigEndian.PutUint32(buf[1:5], f.ID)
	copy(buf[5:], f.Data[:])
	return buf, nil
}

func unmarshalFrame(raw []byte) (can.Frame, error) {
	if len(raw) != frameSize {
		return can.Frame{}, fmt.Errorf("serialcan: frame size %d, want %d", len(raw), frameSize)
	}
	header := raw[0]
	if header&headerMark == 0 {
		return can.Frame{}, fmt.Errorf("serialcan: bad header 0x%02x", header)
	}
	var f can.Frame
	f.Len = header & 0x0F
	f.Extended = header&extendedFlag != 0
	id := binary.BigEndian.Uint32(raw[1:5])
	if f.Extended {
		f.ID = id & can.MaxExtID
	} else {
		f.ID = id & can.MaxStdID
	}
	copy(f.Data[:], raw[5:])
	if err := f.Validate(); err != nil {
		return can.Frame{}, err
	}
	return f, nil
}

// parser accumulates frames from the serial byte stream. A byte that
// cannot start a frame is skipped; a read timeout mid-frame discards
// the partial frame so the stream realigns on the next header.
type parser struct {
	buf [frameSize]byte
	n   int
}

func plausibleHeader(b byte) bool {
	return b&headerMark != 0 && b&0x0F <= 8 && b&0x40 == 0
}

func (p *parser) feed(b byte) (can.Frame, bool) {
	if p.n == 0 && !plausibleHeader(b) {
		return can.Frame{}, false
	}
	p.buf[p.n] = b
	p.n++
	if p.n < frameSize {
		return can.Frame{}, false
	}
	p.n = 0
	f, err := unmarshalFrame(p.buf[:])
	if err != nil {
		return can.Frame{}, false
	}
	return f, true
}

// reset discards any partially accumulated frame.
func (p *parser) reset() {
	p.n = 0
}
