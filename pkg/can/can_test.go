package can

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	require.NoError(t, NewFrame(1, []byte{1, 2, 3}).Validate())
	require.NoError(t, NewFrame(MaxStdID, nil).Validate())

	f := NewFrame(MaxStdID+1, nil)
	require.ErrorIs(t, f.Validate(), ErrInvalidID)
	f.Extended = true
	require.NoError(t, f.Validate())
	f.ID = MaxExtID + 1
	require.ErrorIs(t, f.Validate(), ErrInvalidID)

	f = NewFrame(1, nil)
	f.Len = 9
	require.ErrorIs(t, f.Validate(), ErrInvalidLen)
}

func TestDispatcherQueueDropsOldest(t *testing.T) {
	d := NewDispatcher(2)
	d.Dispatch(NewFrame(1, nil))
	d.Dispatch(NewFrame(2, nil))
	d.Dispatch(NewFrame(3, nil))

	f, ok := d.Receive(0)
	require.True(t, ok)
	require.Equal(t, uint32(2), f.ID)
	f, ok = d.Receive(0)
	require.True(t, ok)
	require.Equal(t, uint32(3), f.ID)
	_, ok = d.Receive(0)
	require.False(t, ok)
}

func TestDispatcherReceiveTimeout(t *testing.T) {
	d := NewDispatcher(1)
	start := time.Now()
	_, ok := d.Receive(20 * time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDispatcherFanOutIsolation(t *testing.T) {
	d := NewDispatcher(1)
	var calls int32
	cancelA := d.Subscribe(func(Frame) {
		panic("boom")
	})
	defer cancelA()
	cancelB := d.Subscribe(func(Frame) {
		atomic.AddInt32(&calls, 1)
	})
	defer cancelB()

	d.Dispatch(NewFrame(1, nil))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDispatcherSubscribeCancel(t *testing.T) {
	d := NewDispatcher(1)
	var calls int32
	cancel := d.Subscribe(func(Frame) {
		atomic.AddInt32(&calls, 1)
	})
	d.Dispatch(NewFrame(1, nil))
	cancel()
	cancel() // idempotent
	d.Dispatch(NewFrame(2, nil))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoopbackLifecycle(t *testing.T) {
	l := NewLoopback()
	require.ErrorIs(t, l.Send(NewFrame(1, nil), 0), ErrNotConnected)

	require.NoError(t, l.Connect())
	require.NoError(t, l.Send(NewFrame(1, []byte{0xAA}), 0))
	require.Len(t, l.Sent(), 1)

	require.NoError(t, l.Close())
	require.ErrorIs(t, l.Send(NewFrame(1, nil), 0), ErrClosed)
	require.ErrorIs(t, l.Connect(), ErrClosed)
}

func TestLoopbackResponder(t *testing.T) {
	l := NewLoopback()
	require.NoError(t, l.Connect())

	l.Respond(func(f Frame) []Frame {
		if f.ID != 3 {
			return nil
		}
		return []Frame{NewFrame(3, []byte{1, 2, 3, 4, 5, 6, 7, 8})}
	})

	var seen int32
	cancel := l.Subscribe(func(Frame) { atomic.AddInt32(&seen, 1) })
	defer cancel()

	require.NoError(t, l.Send(NewFrame(3, []byte{0x55}), 0))
	f, ok := l.Receive(0)
	require.True(t, ok)
	require.Equal(t, uint32(3), f.ID)
	require.Equal(t, uint8(8), f.Len)
	require.Equal(t, int32(1), atomic.LoadInt32(&seen))

	// No responder match, nothing queued.
	require.NoError(t, l.Send(NewFrame(4, nil), 0))
	_, ok = l.Receive(0)
	require.False(t, ok)
}
