// Package motor provides the per-motor control endpoint (Unit) and the
// bus-wide registry (Fleet) on top of the protocol codec and a can.Bus.
package motor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
	"github.com/LyraLiu1208/encos-sdk/pkg/protocol"
)

// ControlMode selects how SetPosition drives the motor.
type ControlMode int

const (
	// ModeServo uses the servo position command.
	ModeServo ControlMode = iota
	// ModeForce uses the force/position hybrid command with default
	// stiffness and damping and no feed-forward.
	ModeForce
)

// Default stiffness/damping for ModeForce.
const (
	defaultKp = 50
	defaultKd = 5
)

const (
	sendTimeout = time.Second
	pollSlice   = 100 * time.Millisecond
)

// Limits are the per-motor safety bounds. Commands exceeding them are
// refused before any frame is built.
type Limits struct {
	MaxPositionDeg float64
	MaxVelocityRPM float64
	MaxCurrentA    float64
	MaxTorqueNm    float64
}

// DefaultLimits returns the factory safety bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionDeg: 360,
		MaxVelocityRPM: 1000,
		MaxCurrentA:    10,
		MaxTorqueNm:    5,
	}
}

// StatusHandler observes decoded feedback.
type StatusHandler func(protocol.Status)

// FaultHandler observes reported faults.
type FaultHandler func(protocol.Fault)

// Unit is one motor endpoint. Its inbound handler runs on the bus
// delivery goroutine, concurrently with command-issuing callers; all
// mutable state is guarded by mu.
type Unit struct {
	addr uint8
	bus  can.Bus

	mu          sync.RWMutex
	limits      Limits
	enabled     bool
	last        protocol.Status
	hasLast     bool
	lastCommand time.Time
	statusObs   map[string]StatusHandler
	faultObs    map[string]FaultHandler

	unsubscribe func()
}

// NewUnit creates a Unit for addr and subscribes it to inbound frames.
// Call Close to detach it from the bus.
func NewUnit(addr uint8, bus can.Bus) (*Unit, error) {
	if !protocol.ValidAddr(addr) {
		return nil, addrError(addr)
	}
	u := &Unit{
		addr:      addr,
		bus:       bus,
		limits:    DefaultLimits(),
		enabled:   true,
		statusObs: make(map[string]StatusHandler),
		faultObs:  make(map[string]FaultHandler),
	}
	u.unsubscribe = bus.Subscribe(u.onFrame)
	return u, nil
}

// Close detaches the unit from the bus. The Unit must not be used
// afterwards.
func (u *Unit) Close() {
	u.unsubscribe()
}

// Addr returns the immutable motor address.
func (u *Unit) Addr() uint8 {
	return u.addr
}

// Limits returns the current safety bounds.
func (u *Unit) Limits() Limits {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.limits
}

// SetLimits replaces the safety bounds.
func (u *Unit) SetLimits(l Limits) {
	u.mu.Lock()
	u.limits = l
	u.mu.Unlock()
}

// Enable allows commands to be issued.
func (u *Unit) Enable() {
	u.mu.Lock()
	u.enabled = true
	u.mu.Unlock()
	glog.V(4).Infof("motor %d enabled", u.addr)
}

// Disable refuses further commands until Enable. It does not stop a
// motion already commanded; call Stop for that.
func (u *Unit) Disable() {
	u.mu.Lock()
	u.enabled = false
	u.mu.Unlock()
	glog.V(4).Infof("motor %d disabled", u.addr)
}

// Enabled reports the soft-enable latch.
func (u *Unit) Enabled() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.enabled
}

// SetZeroPoint declares the current position as zero. On success the
// pacing clock resets: allow protocol.PacingInterval before the next
// configuration-class command. The wait is advisory, not enforced here.
func (u *Unit) SetZeroPoint() bool {
	if !u.commandAllowed() {
		return false
	}
	f, err := protocol.SetZero(u.addr)
	if err != nil {
		glog.Errorf("motor %d: %v", u.addr, err)
		return false
	}
	if err := u.bus.Send(f, sendTimeout); err != nil {
		glog.Errorf("motor %d: set zero point: %v", u.addr, err)
		return false
	}
	u.recordCommand()
	glog.Infof("motor %d: zero point set", u.addr)
	return true
}

// SetPosition commands a target position in degrees. It fails closed
// (no frame sent) when any safety bound is exceeded.
func (u *Unit) SetPosition(positionDeg, speedLimitRPM, currentLimitA float64, mode ControlMode) bool {
	if !u.commandAllowed() {
		return false
	}
	if !u.positionSafe(positionDeg) || !u.velocitySafe(speedLimitRPM) || !u.currentSafe(currentLimitA) {
		return false
	}

	var f can.Frame
	var err error
	switch mode {
	case ModeServo:
		f, err = protocol.ServoPosition(u.addr, positionDeg, speedLimitRPM, currentLimitA)
	case ModeForce:
		f, err = protocol.ForcePosition(u.addr, defaultKp, defaultKd, radians(positionDeg), 0, 0)
	default:
		glog.Errorf("motor %d: unsupported control mode %d", u.addr, mode)
		return false
	}
	if err != nil {
		glog.Errorf("motor %d: %v", u.addr, err)
		return false
	}
	if err := u.bus.Send(f, sendTimeout); err != nil {
		glog.Errorf("motor %d: set position: %v", u.addr, err)
		return false
	}
	u.recordCommand()
	glog.V(4).Infof("motor %d: position %.2f deg", u.addr, positionDeg)
	return true
}

// SetVelocity commands a target speed in RPM.
func (u *Unit) SetVelocity(speedRPM, currentLimitA float64) bool {
	if !u.commandAllowed() {
		return false
	}
	if !u.velocitySafe(speedRPM) || !u.currentSafe(currentLimitA) {
		return false
	}
	f, err := protocol.ServoVelocity(u.addr, speedRPM, currentLimitA)
	if err != nil {
		glog.Errorf("motor %d: %v", u.addr, err)
		return false
	}
	if err := u.bus.Send(f, sendTimeout); err != nil {
		glog.Errorf("motor %d: set velocity: %v", u.addr, err)
		return false
	}
	u.recordCommand()
	glog.V(4).Infof("motor %d: velocity %.2f RPM", u.addr, speedRPM)
	return true
}

// Stop commands zero velocity with zero current limit. Stop is always
// allowed, even while disabled.
func (u *Unit) Stop() bool {
	f, err := protocol.ServoVelocity(u.addr, 0, 0)
	if err != nil {
		glog.Errorf("motor %d: %v", u.addr, err)
		return false
	}
	if err := u.bus.Send(f, sendTimeout); err != nil {
		glog.Errorf("motor %d: stop: %v", u.addr, err)
		return false
	}
	u.recordCommand()
	return true
}

// Status requests feedback of the given kind and waits for the reply.
// It polls the bus queue in short slices, checking ctx each iteration,
// until a decodable frame from this address arrives or timeout elapses.
// ok is false on timeout or cancellation; an unresponsive motor is an
// expected operating condition.
//
// Correlation is by address only: the wire has no sequence field, so a
// stale reply arriving inside the window is taken as the answer.
func (u *Unit) Status(ctx context.Context, kind protocol.FeedbackKind, timeout time.Duration) (protocol.Status, bool) {
	req, err := protocol.StatusRequest(u.addr, kind)
	if err != nil {
		glog.Errorf("motor %d: %v", u.addr, err)
		return protocol.Status{}, false
	}
	if err := u.bus.Send(req, sendTimeout); err != nil {
		glog.Errorf("motor %d: status request: %v", u.addr, err)
		return protocol.Status{}, false
	}

	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return protocol.Status{}, false
		default:
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			glog.Warningf("motor %d: status request timed out", u.addr)
			return protocol.Status{}, false
		}
		slice := pollSlice
		if remaining < slice {
			slice = remaining
		}
		f, ok := u.bus.Receive(slice)
		if !ok || f.ID != uint32(u.addr) {
			continue
		}
		if st, ok := protocol.DecodeFeedback(f); ok {
			u.mu.Lock()
			u.last = st
			u.hasLast = true
			u.mu.Unlock()
			return st, true
		}
	}
}

// LastStatus returns the most recent decoded feedback, if any.
func (u *Unit) LastStatus() (protocol.Status, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.last, u.hasLast
}

// HeartbeatAlive reports whether the command stream is fresh: true when
// no command was ever sent, or the last one is within
// protocol.HeartbeatWindow. A liveness heuristic for the caller, not a
// watchdog.
func (u *Unit) HeartbeatAlive() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.lastCommand.IsZero() {
		return true
	}
	return time.Since(u.lastCommand) < protocol.HeartbeatWindow
}

// LastCommand returns the time of the most recent sent command.
func (u *Unit) LastCommand() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastCommand
}

// OnStatus registers a named observer for every decoded feedback frame.
// Handlers run on the bus delivery goroutine.
func (u *Unit) OnStatus(name string, h StatusHandler) {
	u.mu.Lock()
	u.statusObs[name] = h
	u.mu.Unlock()
}

// RemoveStatusHandler unregisters a status observer.
func (u *Unit) RemoveStatusHandler(name string) {
	u.mu.Lock()
	delete(u.statusObs, name)
	u.mu.Unlock()
}

// OnFault registers a named observer for reported faults.
func (u *Unit) OnFault(name string, h FaultHandler) {
	u.mu.Lock()
	u.faultObs[name] = h
	u.mu.Unlock()
}

// RemoveFaultHandler unregisters a fault observer.
func (u *Unit) RemoveFaultHandler(name string) {
	u.mu.Lock()
	delete(u.faultObs, name)
	u.mu.Unlock()
}

// Monitor polls status at interval and hands each result to fn until
// ctx is done. Cancellation is checked every iteration, so shutdown
// interrupts a long monitor promptly.
func (u *Unit) Monitor(ctx context.Context, kind protocol.FeedbackKind, interval time.Duration, fn StatusHandler) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if st, ok := u.Status(ctx, kind, interval); ok {
				fn(st)
			}
		}
	}
}

// Info is a point-in-time snapshot of the unit.
type Info struct {
	Addr           uint8
	Enabled        bool
	Limits         Limits
	LastStatus     *protocol.Status
	LastCommand    time.Time
	HeartbeatAlive bool
}

// Info snapshots the unit state.
func (u *Unit) Info() Info {
	alive := u.HeartbeatAlive()
	u.mu.RLock()
	defer u.mu.RUnlock()
	info := Info{
		Addr:           u.addr,
		Enabled:        u.enabled,
		Limits:         u.limits,
		LastCommand:    u.lastCommand,
		HeartbeatAlive: alive,
	}
	if u.hasLast {
		st := u.last
		info.LastStatus = &st
	}
	return info
}

// onFrame is the bus inbound callback. Frames for other addresses are
// ignored. Observer panics are recovered and logged; one faulty
// observer never stops delivery to the rest.
func (u *Unit) onFrame(f can.Frame) {
	if f.ID != uint32(u.addr) {
		return
	}
	st, ok := protocol.DecodeFeedback(f)
	if !ok {
		return
	}

	u.mu.Lock()
	u.last = st
	u.hasLast = true
	u.mu.Unlock()

	u.mu.RLock()
	statusObs := make([]StatusHandler, 0, len(u.statusObs))
	for _, h := range u.statusObs {
		statusObs = append(statusObs, h)
	}
	var faultObs []FaultHandler
	if st.HasFault() {
		faultObs = make([]FaultHandler, 0, len(u.faultObs))
		for _, h := range u.faultObs {
			faultObs = append(faultObs, h)
		}
	}
	u.mu.RUnlock()

	for _, h := range statusObs {
		notifyStatus(u.addr, h, st)
	}
	if st.HasFault() {
		glog.Warningf("motor %d: %s", u.addr, st.Fault)
		for _, h := range faultObs {
			notifyFault(u.addr, h, st.Fault)
		}
	}
}

func notifyStatus(addr uint8, h StatusHandler, st protocol.Status) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("motor %d: status observer panic: %v", addr, r)
		}
	}()
	h(st)
}

func notifyFault(addr uint8, h FaultHandler, f protocol.Fault) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("motor %d: fault observer panic: %v", addr, r)
		}
	}()
	h(f)
}

func (u *Unit) commandAllowed() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.enabled {
		glog.Warningf("motor %d: command refused while disabled", u.addr)
		return false
	}
	return true
}

func (u *Unit) recordCommand() {
	u.mu.Lock()
	u.lastCommand = time.Now()
	u.mu.Unlock()
}

func (u *Unit) positionSafe(deg float64) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if abs(deg) > u.limits.MaxPositionDeg {
		glog.Errorf("motor %d: position %.2f deg exceeds ±%.2f", u.addr, deg, u.limits.MaxPositionDeg)
		return false
	}
	return true
}

func (u *Unit) velocitySafe(rpm float64) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if abs(rpm) > u.limits.MaxVelocityRPM {
		glog.Errorf("motor %d: velocity %.2f RPM exceeds ±%.2f", u.addr, rpm, u.limits.MaxVelocityRPM)
		return false
	}
	return true
}

func (u *Unit) currentSafe(a float64) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if a > u.limits.MaxCurrentA {
		glog.Errorf("motor %d: current %.2f A exceeds %.2f", u.addr, a, u.limits.MaxCurrentA)
		return false
	}
	return true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func addrError(addr uint8) error {
	return fmt.Errorf("motor: address %d out of range [%d,%d]", addr, protocol.MinAddr, protocol.MaxAddr)
}
