package serialcan

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
)

// Config selects the serial port and tuning for the adapter.
type Config struct {
	Port      string
	BaudRate  int           // default 1000000
	QueueSize int           // inbound queue, default can.DefaultQueueSize
	ReadSlice time.Duration // port read timeout, default 100ms
}

// Bus implements can.Bus over a serial USB-CAN adapter.
type Bus struct {
	cfg  Config
	disp *can.Dispatcher

	sendMu sync.Mutex

	mu   sync.Mutex
	port serial.Port
	stop chan struct{}
	done chan struct{}
}

// New creates an unconnected bus for the configured port.
func New(cfg Config) *Bus {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 1_000_000
	}
	if cfg.ReadSlice <= 0 {
		cfg.ReadSlice = 100 * time.Millisecond
	}
	return &Bus{cfg: cfg, disp: can.NewDispatcher(cfg.QueueSize)}
}

// Connect opens the port and starts the background reader.
func (b *Bus) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: b.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(b.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("serialcan: open %s: %w", b.cfg.Port, err)
	}
	if err := port.SetReadTimeout(b.cfg.ReadSlice); err != nil {
		port.Close()
		return fmt.Errorf("serialcan: set read timeout: %w", err)
	}
	b.port = port
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.readLoop(port, b.stop, b.done)
	glog.Infof("serialcan: connected %s @ %d", b.cfg.Port, b.cfg.BaudRate)
	return nil
}

// Close stops the reader and closes the port.
func (b *Bus) Close() error {
	b.mu.Lock()
	port, stop, done := b.port, b.stop, b.done
	b.port, b.stop, b.done = nil, nil, nil
	b.mu.Unlock()
	if port == nil {
		return nil
	}
	close(stop)
	err := port.Close()
	<-done
	glog.Infof("serialcan: disconnected %s", b.cfg.Port)
	return err
}

// Send transmits one frame. The adapter accepts writes immediately, so
// timeout only guards against a wedged port driver.
func (b *Bus) Send(f can.Frame, timeout time.Duration) error {
	b.mu.Lock()
	port := b.port
	b.mu.Unlock()
	if port == nil {
		return can.ErrNotConnected
	}
	raw, err := marshalFrame(f)
	if err != nil {
		return err
	}

	// The writer goroutine holds sendMu until Write returns, so a send
	// that timed out here cannot overlap a later write on the port.
	errCh := make(chan error, 1)
	go func() {
		b.sendMu.Lock()
		defer b.sendMu.Unlock()
		_, werr := port.Write(raw)
		errCh <- werr
	}()
	if timeout <= 0 {
		return <-errCh
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case werr := <-errCh:
		if werr != nil {
			return fmt.Errorf("serialcan: write: %w", werr)
		}
		glog.V(4).Infof("serialcan: sent %s", f)
		return nil
	case <-t.C:
		return fmt.Errorf("serialcan: write %s: timeout", f)
	}
}

// Receive implements can.Bus.
func (b *Bus) Receive(timeout time.Duration) (can.Frame, bool) {
	return b.disp.Receive(timeout)
}

// Subscribe implements can.Bus.
func (b *Bus) Subscribe(h can.Handler) func() {
	return b.disp.Subscribe(h)
}

func (b *Bus) readLoop(port serial.Port, stop, done chan struct{}) {
	defer close(done)
	var p parser
	buf := make([]byte, 64)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-stop:
			default:
				glog.Errorf("serialcan: read: %v", err)
			}
			return
		}
		if n == 0 {
			// Read timeout: drop any partial frame so the stream
			// realigns on the next header byte.
			p.reset()
			continue
		}
		for _, c := range buf[:n] {
			if f, ok := p.feed(c); ok {
				glog.V(4).Infof("serialcan: recv %s", f)
				b.disp.Dispatch(f)
			}
		}
	}
}
