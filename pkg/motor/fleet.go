package motor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
	"github.com/LyraLiu1208/encos-sdk/pkg/protocol"
)

// Fleet owns the address → Unit registry for one bus and provides
// bus-wide discovery and bulk operations. Safe for concurrent use.
type Fleet struct {
	bus can.Bus

	mu    sync.RWMutex
	units map[uint8]*Unit
}

// NewFleet creates an empty fleet on bus.
func NewFleet(bus can.Bus) *Fleet {
	return &Fleet{bus: bus, units: make(map[uint8]*Unit)}
}

// Add returns the Unit for addr, creating it with default limits on
// first reference. Idempotent: repeated calls return the same Unit.
func (m *Fleet) Add(addr uint8) (*Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.units[addr]; ok {
		return u, nil
	}
	u, err := NewUnit(addr, m.bus)
	if err != nil {
		return nil, err
	}
	m.units[addr] = u
	glog.V(4).Infof("fleet: added motor %d", addr)
	return u, nil
}

// Remove detaches and discards the Unit for addr. A later Add creates
// a fresh Unit with default limits.
func (m *Fleet) Remove(addr uint8) {
	m.mu.Lock()
	u, ok := m.units[addr]
	delete(m.units, addr)
	m.mu.Unlock()
	if ok {
		u.Close()
		glog.V(4).Infof("fleet: removed motor %d", addr)
	}
}

// Get returns the registered Unit for addr, if any.
func (m *Fleet) Get(addr uint8) (*Unit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[addr]
	return u, ok
}

// Units returns all registered units ordered by address.
func (m *Fleet) Units() []*Unit {
	m.mu.RLock()
	units := make([]*Unit, 0, len(m.units))
	for _, u := range m.units {
		units = append(units, u)
	}
	m.mu.RUnlock()
	sort.Slice(units, func(i, j int) bool { return units[i].Addr() < units[j].Addr() })
	return units
}

// Scan broadcasts a discovery request and drains responses for timeout.
// It returns the sorted, duplicate-free addresses that answered.
// Garbled responses are skipped. ctx cancels the wait early.
func (m *Fleet) Scan(ctx context.Context, timeout time.Duration) ([]uint8, error) {
	if err := m.bus.Send(protocol.QueryAddresses(), sendTimeout); err != nil {
		glog.Errorf("fleet: discovery request: %v", err)
		return nil, err
	}

	found := make(map[uint8]struct{})
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return sortedAddrs(found), ctx.Err()
		default:
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		slice := pollSlice
		if remaining < slice {
			slice = remaining
		}
		f, ok := m.bus.Receive(slice)
		if !ok {
			continue
		}
		if addrs, ok := protocol.DecodeDiscovery(f); ok {
			for _, a := range addrs {
				found[a] = struct{}{}
			}
		}
	}
	addrs := sortedAddrs(found)
	glog.Infof("fleet: discovered %d motors: %v", len(addrs), addrs)
	return addrs, nil
}

func sortedAddrs(set map[uint8]struct{}) []uint8 {
	addrs := make([]uint8, 0, len(set))
	for a := range set {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// StopAll stops every registered motor. A failure on one unit never
// blocks the others.
func (m *Fleet) StopAll() {
	for _, u := range m.Units() {
		if !u.Stop() {
			glog.Errorf("fleet: stop motor %d failed", u.Addr())
		}
	}
	glog.Info("fleet: all motors stopped")
}

// AllStatus fetches feedback of kind from every registered motor, each
// within timeout. Motors that do not answer map to nil.
func (m *Fleet) AllStatus(ctx context.Context, kind protocol.FeedbackKind, timeout time.Duration) map[uint8]*protocol.Status {
	out := make(map[uint8]*protocol.Status)
	for _, u := range m.Units() {
		if st, ok := u.Status(ctx, kind, timeout); ok {
			st := st
			out[u.Addr()] = &st
		} else {
			out[u.Addr()] = nil
		}
	}
	return out
}
