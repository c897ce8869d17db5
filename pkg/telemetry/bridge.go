package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/LyraLiu1208/encos-sdk/pkg/motor"
	"github.com/LyraLiu1208/encos-sdk/pkg/protocol"
)

// observerName keys the bridge's handlers on each unit.
const observerName = "telemetry"

// attachInterval is how often Run picks up units added to the fleet
// after the bridge started.
const attachInterval = time.Second

// faultReport is the error-topic payload.
type faultReport struct {
	Addr  uint8  `json:"addr"`
	Fault string `json:"fault"`
}

// Bridge publishes fleet feedback to a Sink. Status frames go to
// motor/<addr>/status, faults to motor/<addr>/error.
type Bridge struct {
	fleet *motor.Fleet
	sink  Sink

	mu       sync.Mutex
	attached map[uint8]bool
}

// NewBridge creates a Bridge over fleet publishing to sink.
func NewBridge(fleet *motor.Fleet, sink Sink) *Bridge {
	return &Bridge{
		fleet:    fleet,
		sink:     sink,
		attached: make(map[uint8]bool),
	}
}

// Attach registers the bridge's observers on the unit. Attaching twice
// is harmless.
func (b *Bridge) Attach(u *motor.Unit) {
	addr := u.Addr()
	b.mu.Lock()
	if b.attached[addr] {
		b.mu.Unlock()
		return
	}
	b.attached[addr] = true
	b.mu.Unlock()

	u.OnStatus(observerName, func(st protocol.Status) {
		b.publishStatus(addr, st)
	})
	u.OnFault(observerName, func(f protocol.Fault) {
		b.publishFault(addr, f)
	})
	glog.V(2).Infof("telemetry: attached motor %d", addr)
}

// Detach removes the bridge's observers from the unit.
func (b *Bridge) Detach(u *motor.Unit) {
	u.RemoveStatusHandler(observerName)
	u.RemoveFaultHandler(observerName)
	b.mu.Lock()
	delete(b.attached, u.Addr())
	b.mu.Unlock()
}

// Run implements runtime.Runnable. It attaches every unit currently in
// the fleet, keeps picking up new ones, and detaches all on shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(attachInterval)
	defer ticker.Stop()
	b.attachAll()
	for {
		select {
		case <-ctx.Done():
			for _, u := range b.fleet.Units() {
				b.Detach(u)
			}
			return ctx.Err()
		case <-ticker.C:
			b.attachAll()
		}
	}
}

func (b *Bridge) attachAll() {
	for _, u := range b.fleet.Units() {
		b.Attach(u)
	}
}

func (b *Bridge) publishStatus(addr uint8, st protocol.Status) {
	payload, err := json.Marshal(st)
	if err != nil {
		glog.Errorf("telemetry: encode status for motor %d: %v", addr, err)
		return
	}
	b.sink.Pub(fmt.Sprintf("motor/%d/status", addr), payload)
}

func (b *Bridge) publishFault(addr uint8, f protocol.Fault) {
	payload, err := json.Marshal(faultReport{Addr: addr, Fault: f.String()})
	if err != nil {
		glog.Errorf("telemetry: encode fault for motor %d: %v", addr, err)
		return
	}
	b.sink.Pub(fmt.Sprintf("motor/%d/error", addr), payload)
}
