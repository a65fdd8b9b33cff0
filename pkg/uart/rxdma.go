package uart

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// RxDMA moves bytes from a serial reader into the receive ring and raises
// the receive-complete notification after every transfer. It runs on its own
// goroutine, which is the hosted stand-in for interrupt context.
type RxDMA struct {
	r        io.Reader
	ring     *Ring
	complete func(*Ring)
	chunk    int

	wg   sync.WaitGroup
	done chan struct{}
	err  error
}

// NewRxDMA creates a receive pump. complete is called after each transfer
// and never concurrently with itself.
func NewRxDMA(r io.Reader, ring *Ring, complete func(*Ring)) *RxDMA {
	return &RxDMA{
		r:        r,
		ring:     ring,
		complete: complete,
		chunk:    64,
		done:     make(chan struct{}),
	}
}

// Start launches the pump. It stops when ctx ends or the reader fails.
func (d *RxDMA) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Done is closed when the pump has stopped.
func (d *RxDMA) Done() <-chan struct{} { return d.done }

// Err returns the error that stopped the pump, nil on EOF or cancellation.
func (d *RxDMA) Err() error {
	<-d.done
	return d.err
}

// Wait blocks until the pump exits.
func (d *RxDMA) Wait() { d.wg.Wait() }

func (d *RxDMA) run(ctx context.Context) {
	defer d.wg.Done()
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("uart rx pump panicked")
		}
	}()

	buf := make([]byte, d.chunk)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := d.r.Read(buf)
		if n > 0 {
			d.transfer(ctx, buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				d.err = err
				log.Error().Err(err).Msg("uart rx read failed")
			}
			return
		}
	}
}

// transfer stores p in the ring, raising the completion callback so the
// consumer frees space whenever the ring fills.
func (d *RxDMA) transfer(ctx context.Context, p []byte) {
	for len(p) > 0 {
		w := d.ring.Write(p)
		p = p[w:]
		d.complete(d.ring)
		if w == 0 && ctx.Err() != nil {
			return
		}
	}
}
