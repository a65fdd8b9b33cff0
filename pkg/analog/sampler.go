// Package analog keeps the ring of raw ADC samples filled by continuous
// conversion and turns it into the averaged raw value and voltage stored in
// the device state.
package analog

import (
	"context"
	"sync"
	"time"

	"github.com/itohio/golink/pkg/config"
	"github.com/itohio/golink/pkg/device"
	"github.com/itohio/golink/pkg/hal"
)

// Sampler owns the sample ring. The acquisition side writes it in circular
// order; Average and Refresh read the whole ring.
type Sampler struct {
	mu   sync.Mutex
	ring []uint16
	idx  int

	vref      float32
	fullScale uint32
	state     *device.State
}

// New creates a sampler with cfg.RingSize slots, all zero.
func New(cfg config.ADCConfig, st *device.State) *Sampler {
	size := cfg.RingSize
	if size <= 0 {
		size = 16
	}
	return &Sampler{
		ring:      make([]uint16, size),
		vref:      cfg.VRef,
		fullScale: cfg.FullScale(),
		state:     st,
	}
}

// ToVoltage converts a raw sample: raw / fullScale * vref.
func ToVoltage(raw uint16, vref float32, fullScale uint32) float32 {
	if fullScale == 0 {
		return 0
	}
	return float32(raw) * vref / float32(fullScale)
}

// Store writes one conversion result into the next slot and reports whether
// the ring wrapped, which is when the conversion-complete event fires.
func (s *Sampler) Store(v uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.idx] = v
	s.idx++
	if s.idx == len(s.ring) {
		s.idx = 0
		return true
	}
	return false
}

// Acquire performs n conversions from ch, refreshing the device state each
// time the ring completes.
func (s *Sampler) Acquire(ch hal.ADCChannel, n int) {
	for range n {
		if s.Store(ch.Get()) {
			s.Refresh()
		}
	}
}

// Average is the arithmetic mean of every slot.
func (s *Sampler) Average() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum uint32
	for _, v := range s.ring {
		sum += uint32(v)
	}
	return uint16(sum / uint32(len(s.ring)))
}

// Refresh averages the ring and stores adc_raw and voltage.
func (s *Sampler) Refresh() (uint16, float32) {
	raw := s.Average()
	volts := ToVoltage(raw, s.vref, s.fullScale)
	s.state.SetADC(raw, volts)
	return raw, volts
}

// Run converts continuously, one sample per interval, until ctx ends.
func (s *Sampler) Run(ctx context.Context, ch hal.ADCChannel, interval time.Duration) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Acquire(ch, 1)
		}
	}
}

func (s *Sampler) Size() int { return len(s.ring) }
