package uart

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowWriter fails the test if two writes ever overlap.
type slowWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	inflight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
}

func (w *slowWriter) Write(p []byte) (int, error) {
	if w.inflight.Add(1) > 1 {
		w.overlap.Store(true)
	}
	defer w.inflight.Add(-1)
	time.Sleep(w.delay)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *slowWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestTx_OneInFlight(t *testing.T) {
	w := &slowWriter{delay: 2 * time.Millisecond}
	tx := NewTx(w, 512, 8)
	defer tx.Close()

	var wg sync.WaitGroup
	for _, msg := range []string{"response\n", "heartbeat\n"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tx.Send(msg))
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tx.Flush(ctx))

	assert.False(t, w.overlap.Load())
	assert.Len(t, w.String(), len("response\n")+len("heartbeat\n"))
	assert.Contains(t, w.String(), "response\n")
	assert.Contains(t, w.String(), "heartbeat\n")
	assert.Equal(t, uint32(2), tx.Sent())
	assert.False(t, tx.Busy())
}

func TestTx_OrderPreserved(t *testing.T) {
	w := &slowWriter{}
	tx := NewTx(w, 512, 8)
	defer tx.Close()

	require.NoError(t, tx.Send("1\n"))
	require.NoError(t, tx.Send("2\n"))
	require.NoError(t, tx.Send("3\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tx.Flush(ctx))
	assert.Equal(t, "1\n2\n3\n", w.String())
}

func TestTx_Truncates(t *testing.T) {
	w := &slowWriter{}
	tx := NewTx(w, 4, 1)
	defer tx.Close()

	require.NoError(t, tx.Send("abcdefgh"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tx.Flush(ctx))
	assert.Equal(t, "abcd", w.String())
}

func TestTx_QueueFull(t *testing.T) {
	block := make(chan struct{})
	w := writerFunc(func(p []byte) (int, error) {
		<-block
		return len(p), nil
	})
	tx := NewTx(w, 64, 1)

	// First message goes in flight, second waits, third has no room.
	require.NoError(t, tx.Send("a"))
	require.Eventually(t, func() bool { return len(tx.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, tx.Send("b"))
	assert.ErrorIs(t, tx.Send("c"), ErrTxBusy)

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tx.Flush(ctx))
	require.NoError(t, tx.Close())
}

func TestTx_SendAfterClose(t *testing.T) {
	tx := NewTx(&slowWriter{}, 64, 1)
	require.NoError(t, tx.Close())
	assert.ErrorIs(t, tx.Send("x"), ErrClosed)
	assert.NoError(t, tx.Close())
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
