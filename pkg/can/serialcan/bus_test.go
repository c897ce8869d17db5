package serialcan

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/LyraLiu1208/encos-sdk/pkg/can"
)

// blockingPort stalls every Write until release is closed and records
// how many writes ran concurrently.
type blockingPort struct {
	serial.Port

	release chan struct{}
	writes  int32
	inSide  int32
	maxSide int32
}

func (p *blockingPort) Write(b []byte) (int, error) {
	side := atomic.AddInt32(&p.inSide, 1)
	for {
		max := atomic.LoadInt32(&p.maxSide)
		if side <= max || atomic.CompareAndSwapInt32(&p.maxSide, max, side) {
			break
		}
	}
	<-p.release
	atomic.AddInt32(&p.inSide, -1)
	atomic.AddInt32(&p.writes, 1)
	return len(b), nil
}

func TestSendTimeoutNeverOverlapsWrites(t *testing.T) {
	b := New(Config{Port: "test"})
	port := &blockingPort{release: make(chan struct{})}
	b.mu.Lock()
	b.port = port
	b.mu.Unlock()

	f := can.NewFrame(1, make([]byte, 8))

	// First send times out while its write is still pinned on the port.
	err := b.Send(f, 20*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timeout")

	// A follow-up send must queue behind the stalled write, not run a
	// second write against the port.
	done := make(chan error, 1)
	go func() { done <- b.Send(f, 5*time.Second) }()

	require.Never(t, func() bool {
		return atomic.LoadInt32(&port.writes) > 0
	}, 200*time.Millisecond, 20*time.Millisecond, "no write may complete while the port is stalled")
	require.Equal(t, int32(1), atomic.LoadInt32(&port.maxSide), "writes overlapped on the port")

	close(port.release)
	require.NoError(t, <-done)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&port.writes) == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&port.maxSide))
}
