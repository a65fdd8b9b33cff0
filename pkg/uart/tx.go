package uart

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrTxBusy is returned when the transmit queue is full.
	ErrTxBusy = errors.New("uart: transmit queue full")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("uart: transmitter closed")
)

// Tx keeps exactly one outbound message in flight. Each message is copied
// into its own send buffer, so a later Send can never corrupt a message that
// is still being written; messages queue behind the one in flight.
type Tx struct {
	w       io.Writer
	bufSize int

	queue   chan []byte
	pending atomic.Int32
	sent    atomic.Uint32

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewTx starts a transmitter. bufSize bounds one message, queue bounds the
// number of messages waiting behind the one in flight.
func NewTx(w io.Writer, bufSize, queue int) *Tx {
	if bufSize <= 0 {
		bufSize = 512
	}
	if queue <= 0 {
		queue = 1
	}
	t := &Tx{
		w:       w,
		bufSize: bufSize,
		queue:   make(chan []byte, queue),
		done:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Send queues msg, truncated to the send buffer size.
func (t *Tx) Send(msg string) error {
	n := len(msg)
	if n > t.bufSize {
		n = t.bufSize
	}
	buf := make([]byte, n)
	copy(buf, msg)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.pending.Add(1)
	select {
	case t.queue <- buf:
		return nil
	default:
		t.pending.Add(-1)
		return ErrTxBusy
	}
}

// Busy reports whether a message is queued or in flight.
func (t *Tx) Busy() bool { return t.pending.Load() > 0 }

// Sent returns the number of messages fully written.
func (t *Tx) Sent() uint32 { return t.sent.Load() }

// Flush waits until every queued message has been written.
func (t *Tx) Flush(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for t.Busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return ErrClosed
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops the transmitter. Messages still queued are discarded.
func (t *Tx) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

func (t *Tx) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case buf := <-t.queue:
			if _, err := t.w.Write(buf); err != nil {
				log.Error().Err(err).Int("len", len(buf)).Msg("uart tx write failed")
			} else {
				t.sent.Add(1)
			}
			t.pending.Add(-1)
		}
	}
}
