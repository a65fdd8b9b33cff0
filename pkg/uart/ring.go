// Package uart implements the serial receive pipeline and the transmit
// channel: a DMA-style circular receive buffer, a line framer running in
// receive-complete context, and a transmitter that keeps one message in flight.
package uart

import (
	"fmt"
	"sync/atomic"
)

// Ring is a fixed-capacity circular receive buffer. The producer plays the
// DMA engine: it owns the hardware write cursor. The consumer drains from a
// trailing read cursor. Cursors are monotonic; the producer never writes more
// than the free space, so the read cursor is never lapped.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer cursor
	wr   atomic.Uint32 // hardware write cursor
}

// NewRing creates a ring. Size must be a power of two >= 2.
func NewRing(size int) (*Ring, error) {
	if size < 2 || (size&(size-1)) != 0 {
		return nil, fmt.Errorf("ring size %d: must be power of two >= 2", size)
	}
	return &Ring{
		buf:  make([]byte, size),
		mask: uint32(size - 1),
	}, nil
}

func (r *Ring) Size() int { return len(r.buf) }

// Remaining mirrors the DMA channel transfer counter: it counts down from
// Size to 1 as the buffer fills and reloads at wrap.
func (r *Ring) Remaining() int {
	return len(r.buf) - int(r.wr.Load()&r.mask)
}

// HardwarePos is the buffer index the next received byte will be stored at.
func (r *Ring) HardwarePos() int {
	return len(r.buf) - r.Remaining()
}

// Available returns the number of bytes between the read and write cursors.
func (r *Ring) Available() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Space returns the number of bytes the producer may write.
func (r *Ring) Space() int {
	return len(r.buf) - r.Available()
}

// Write stores as much of p as fits and returns the count.
func (r *Ring) Write(p []byte) int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	space := len(r.buf) - int(wr-rd)
	n := len(p)
	if n > space {
		n = space
	}
	for i := 0; i < n; i++ {
		r.buf[(wr+uint32(i))&r.mask] = p[i]
	}
	r.wr.Store(wr + uint32(n))
	return n
}

// Drain hands every byte between the read cursor and the current hardware
// write cursor to fn, in arrival order, and returns the count.
func (r *Ring) Drain(fn func(c byte)) int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	n := 0
	for rd != wr {
		c := r.buf[rd&r.mask]
		rd++
		r.rd.Store(rd)
		fn(c)
		n++
	}
	return n
}
