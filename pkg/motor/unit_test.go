package motor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
	"github.com/LyraLiu1208/encos-sdk/pkg/protocol"
)

func newTestBus(t *testing.T) *can.Loopback {
	t.Helper()
	bus := can.NewLoopback()
	require.NoError(t, bus.Connect())
	return bus
}

func newTestUnit(t *testing.T, bus *can.Loopback, addr uint8) *Unit {
	t.Helper()
	u, err := NewUnit(addr, bus)
	require.NoError(t, err)
	t.Cleanup(u.Close)
	return u
}

func kind1Feedback(addr uint8) can.Frame {
	return can.NewFrame(uint32(addr), []byte{0x20, 0x10, 0x00, 0x01, 0x00, 0x00, 0x10, 0x1E})
}

func TestNewUnitAddrRange(t *testing.T) {
	bus := newTestBus(t)
	_, err := NewUnit(0, bus)
	require.Error(t, err)
	_, err = NewUnit(33, bus)
	require.Error(t, err)
	u, err := NewUnit(32, bus)
	require.NoError(t, err)
	defer u.Close()
	require.Equal(t, uint8(32), u.Addr())
}

func TestSafetyGatePosition(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)
	u.SetLimits(Limits{MaxPositionDeg: 90, MaxVelocityRPM: 1000, MaxCurrentA: 10, MaxTorqueNm: 5})

	require.False(t, u.SetPosition(180, 100, 5, ModeServo))
	require.Empty(t, bus.Sent(), "no frame may be sent on a safety violation")

	require.True(t, u.SetPosition(45, 100, 5, ModeServo))
	sent := bus.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, uint32(1), sent[0].ID)
}

func TestSafetyGateVelocityCurrent(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)
	u.SetLimits(Limits{MaxPositionDeg: 360, MaxVelocityRPM: 100, MaxCurrentA: 2, MaxTorqueNm: 5})

	require.False(t, u.SetVelocity(150, 1))
	require.False(t, u.SetVelocity(-150, 1))
	require.False(t, u.SetVelocity(50, 3))
	require.Empty(t, bus.Sent())

	require.True(t, u.SetVelocity(-50, 1))
	require.Len(t, bus.Sent(), 1)
}

func TestDisableRefusesCommands(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	u.Disable()
	require.False(t, u.Enabled())
	require.False(t, u.SetPosition(10, 10, 1, ModeServo))
	require.False(t, u.SetVelocity(10, 1))
	require.False(t, u.SetZeroPoint())
	require.Empty(t, bus.Sent())

	// Stop must still work on a disabled motor.
	require.True(t, u.Stop())
	require.Len(t, bus.Sent(), 1)

	u.Enable()
	require.True(t, u.SetVelocity(10, 1))
}

func TestSetPositionForceMode(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	require.True(t, u.SetPosition(0, 10, 1, ModeForce))
	sent := bus.Sent()
	require.Len(t, sent, 1)
	// Kp=50, Kd=5, mid-scale position/velocity/torque.
	want, err := protocol.ForcePosition(1, 50, 5, 0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, want, sent[0])
}

func TestSetPositionUnsupportedMode(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)
	require.False(t, u.SetPosition(0, 10, 1, ControlMode(42)))
	require.Empty(t, bus.Sent())
}

func TestStatusRoundTrip(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	bus.Respond(func(f can.Frame) []can.Frame {
		if f.ID != 1 || f.Data[0] != 0xAA || f.Data[1] != 0x55 {
			return nil
		}
		return []can.Frame{kind1Feedback(1)}
	})

	st, ok := u.Status(context.Background(), protocol.FeedbackTorque, time.Second)
	require.True(t, ok)
	require.Equal(t, protocol.FeedbackTorque, st.Kind)
	require.InDelta(t, 3.0, st.Temperature, 1e-9)

	last, ok := u.LastStatus()
	require.True(t, ok)
	require.Equal(t, st, last)
}

func TestStatusTimeout(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	start := time.Now()
	_, ok := u.Status(context.Background(), protocol.FeedbackTorque, 150*time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	require.Less(t, time.Since(start), time.Second)
}

func TestStatusCancellation(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, ok := u.Status(ctx, protocol.FeedbackTorque, 10*time.Second)
	require.False(t, ok)
	require.Less(t, time.Since(start), time.Second)
}

func TestStatusIgnoresOtherAddresses(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	bus.Respond(func(f can.Frame) []can.Frame {
		if f.Data[0] != 0xAA {
			return nil
		}
		return []can.Frame{kind1Feedback(2), kind1Feedback(1)}
	})

	st, ok := u.Status(context.Background(), protocol.FeedbackTorque, time.Second)
	require.True(t, ok)
	require.Equal(t, uint8(1), st.Addr)
}

func TestObserverFanOut(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	var statusCalls, faultCalls int32
	u.OnStatus("panicky", func(protocol.Status) { panic("boom") })
	u.OnStatus("counter", func(protocol.Status) { atomic.AddInt32(&statusCalls, 1) })
	u.OnFault("counter", func(f protocol.Fault) {
		require.Equal(t, protocol.FaultOverVoltage, f)
		atomic.AddInt32(&faultCalls, 1)
	})

	// Frame for another motor is ignored.
	bus.Inject(kind1Feedback(2))
	require.Equal(t, int32(0), atomic.LoadInt32(&statusCalls))

	bus.Inject(kind1Feedback(1))
	require.Equal(t, int32(1), atomic.LoadInt32(&statusCalls))
	require.Equal(t, int32(0), atomic.LoadInt32(&faultCalls))

	// Fault feedback reaches both observer kinds.
	bus.Inject(can.NewFrame(1, []byte{0xA0, 0x05, 0, 0, 0, 0, 0, 0}))
	require.Equal(t, int32(2), atomic.LoadInt32(&statusCalls))
	require.Equal(t, int32(1), atomic.LoadInt32(&faultCalls))

	u.RemoveStatusHandler("counter")
	u.RemoveFaultHandler("counter")
	bus.Inject(kind1Feedback(1))
	require.Equal(t, int32(2), atomic.LoadInt32(&statusCalls))

	last, ok := u.LastStatus()
	require.True(t, ok)
	require.Equal(t, protocol.FeedbackTorque, last.Kind)
}

func TestHeartbeat(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	// No command ever sent: alive by definition.
	require.True(t, u.HeartbeatAlive())

	require.True(t, u.SetVelocity(10, 1))
	require.True(t, u.HeartbeatAlive())
	require.False(t, u.LastCommand().IsZero())

	// Age the last command past the window.
	u.mu.Lock()
	u.lastCommand = time.Now().Add(-protocol.HeartbeatWindow - 100*time.Millisecond)
	u.mu.Unlock()
	require.False(t, u.HeartbeatAlive())
}

func TestSetZeroPoint(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	require.True(t, u.SetZeroPoint())
	sent := bus.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, []byte{0x55, 0xAA, 0, 0, 0, 0, 0, 0}, sent[0].Payload())
	require.False(t, u.LastCommand().IsZero())
}

func TestMonitorStopsOnCancel(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 1)

	bus.Respond(func(f can.Frame) []can.Frame {
		if f.Data[0] != 0xAA {
			return nil
		}
		return []can.Frame{kind1Feedback(1)}
	})

	ctx, cancel := context.WithCancel(context.Background())
	var polls int32
	done := make(chan error, 1)
	go func() {
		done <- u.Monitor(ctx, protocol.FeedbackTorque, 20*time.Millisecond, func(protocol.Status) {
			atomic.AddInt32(&polls, 1)
		})
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&polls) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestInfoSnapshot(t *testing.T) {
	bus := newTestBus(t)
	u := newTestUnit(t, bus, 3)

	info := u.Info()
	require.Equal(t, uint8(3), info.Addr)
	require.True(t, info.Enabled)
	require.Nil(t, info.LastStatus)
	require.True(t, info.HeartbeatAlive)

	bus.Inject(kind1Feedback(3))
	info = u.Info()
	require.NotNil(t, info.LastStatus)
	require.Equal(t, protocol.FeedbackTorque, info.LastStatus.Kind)
}
