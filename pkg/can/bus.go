package can

import (
	"errors"
	"time"
)

var (
	// ErrClosed indicates the bus has been closed.
	ErrClosed = errors.New("can: bus closed")
	// ErrNotConnected indicates Connect has not succeeded yet.
	ErrNotConnected = errors.New("can: bus not connected")
)

// Handler consumes one inbound frame. It runs on the driver's receive
// goroutine, concurrently with the subscriber's own goroutines.
type Handler func(Frame)

// Bus is the transport contract consumed by the motor layer.
// Implementations must be safe for concurrent use.
type Bus interface {
	// Connect opens the transport and starts inbound delivery.
	Connect() error

	// Close stops inbound delivery and releases the transport.
	Close() error

	// Send transmits one frame, blocking at most timeout.
	Send(f Frame, timeout time.Duration) error

	// Receive takes the next queued inbound frame, waiting at most
	// timeout. ok is false when no frame arrived in time.
	Receive(timeout time.Duration) (f Frame, ok bool)

	// Subscribe registers a handler for every inbound frame. The
	// returned cancel removes it; cancel is idempotent.
	Subscribe(h Handler) (cancel func())
}
