package can

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultQueueSize bounds the inbound frame queue when the driver does
// not configure one.
const DefaultQueueSize = 256

// Dispatcher owns the inbound side shared by all bus drivers: a bounded
// pollable queue and a subscriber registry. Drivers call Dispatch from
// their receive goroutine; consumers use Receive and Subscribe.
type Dispatcher struct {
	queue chan Frame

	mu   sync.RWMutex
	subs map[uint64]Handler
	next uint64
}

// NewDispatcher creates a dispatcher with the given queue capacity.
// size <= 0 selects DefaultQueueSize.
func NewDispatcher(size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		queue: make(chan Frame, size),
		subs:  make(map[uint64]Handler),
	}
}

// Dispatch enqueues the frame, evicting the oldest entry when the queue
// is full, then fans it out to all subscribers. A panicking subscriber
// is logged and does not abort delivery to the rest.
func (d *Dispatcher) Dispatch(f Frame) {
	for {
		select {
		case d.queue <- f:
		default:
			select {
			case <-d.queue:
			default:
			}
			continue
		}
		break
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for id, h := range d.subs {
		deliver(id, h, f)
	}
}

func deliver(id uint64, h Handler, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("frame handler %d panic: %v", id, r)
		}
	}()
	h(f)
}

// Receive takes the next queued frame, waiting at most timeout.
func (d *Dispatcher) Receive(timeout time.Duration) (Frame, bool) {
	if timeout <= 0 {
		select {
		case f := <-d.queue:
			return f, true
		default:
			return Frame{}, false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case f := <-d.queue:
		return f, true
	case <-t.C:
		return Frame{}, false
	}
}

// Subscribe registers h and returns an idempotent cancel.
func (d *Dispatcher) Subscribe(h Handler) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.subs[id] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}
}
