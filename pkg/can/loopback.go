package can

import (
	"sync"
	"time"
)

// Responder produces zero or more reply frames for a frame sent on a
// Loopback bus.
type Responder func(Frame) []Frame

// Loopback is an in-memory Bus for tests and demos. Frames given to
// Inject, and replies produced by registered responders, flow through
// the same queue and subscriber path as on real hardware.
type Loopback struct {
	disp *Dispatcher

	mu         sync.Mutex
	connected  bool
	closed     bool
	responders []Responder
	sent       []Frame
}

// NewLoopback creates a disconnected loopback bus.
func NewLoopback() *Loopback {
	return &Loopback{disp: NewDispatcher(0)}
}

// Respond registers a responder invoked for every sent frame.
func (l *Loopback) Respond(r Responder) {
	l.mu.Lock()
	l.responders = append(l.responders, r)
	l.mu.Unlock()
}

// Inject delivers a frame as if it arrived from the wire.
func (l *Loopback) Inject(f Frame) {
	l.disp.Dispatch(f)
}

// Sent returns a copy of all frames sent so far.
func (l *Loopback) Sent() []Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Frame, len(l.sent))
	copy(out, l.sent)
	return out
}

// Connect implements Bus.
func (l *Loopback) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.connected = true
	return nil
}

// Close implements Bus.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.connected = false
	l.closed = true
	l.mu.Unlock()
	return nil
}

// Send implements Bus. Responder replies are delivered synchronously
// before Send returns, so a follow-up Receive observes them.
func (l *Loopback) Send(f Frame, timeout time.Duration) error {
	if err := f.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if !l.connected {
		l.mu.Unlock()
		return ErrNotConnected
	}
	l.sent = append(l.sent, f)
	responders := make([]Responder, len(l.responders))
	copy(responders, l.responders)
	l.mu.Unlock()

	for _, r := range responders {
		for _, reply := range r(f) {
			l.disp.Dispatch(reply)
		}
	}
	return nil
}

// Receive implements Bus.
func (l *Loopback) Receive(timeout time.Duration) (Frame, bool) {
	return l.disp.Receive(timeout)
}

// Subscribe implements Bus.
func (l *Loopback) Subscribe(h Handler) func() {
	return l.disp.Subscribe(h)
}
