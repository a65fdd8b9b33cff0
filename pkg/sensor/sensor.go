// Package sensor provides the temperature readings reported by the device.
package sensor

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/golink/pkg/analog"
	"github.com/itohio/golink/pkg/config"
	"github.com/itohio/golink/pkg/hal"
)

// Source yields a temperature in °C.
type Source interface {
	Read() float32
}

// Stepper is a Source that changes on the drift interval.
type Stepper interface {
	Source
	Step() float32
}

var (
	_ Stepper = (*Simulated)(nil)
	_ Source  = (*OnChip)(nil)
)

// Simulated performs a bounded random walk in tenths of a degree.
type Simulated struct {
	mu     sync.Mutex
	temp   float32
	lo, hi float32
	rnd    *rand.Rand
}

// NewSimulated starts the walk at initial. A zero seed uses the clock.
func NewSimulated(initial, lo, hi float32, seed int64) *Simulated {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		temp: initial,
		lo:   lo,
		hi:   hi,
		rnd:  rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulated) Read() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp
}

// Step moves the temperature by -1.0..+0.9 °C and clamps it to [lo, hi].
func (s *Simulated) Step() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta := float32(s.rnd.Intn(20)-10) / 10
	s.temp = math32.Min(math32.Max(s.temp+delta, s.lo), s.hi)
	return s.temp
}

// RP2040 on-chip sensor transfer function.
const (
	OnChipRefTemp  float32 = 27
	OnChipRefVolts float32 = 0.706
	OnChipSlope    float32 = 0.001721 // V/°C
)

// OnChip converts the die temperature sensor channel.
type OnChip struct {
	ch        hal.ADCChannel
	vref      float32
	fullScale uint32
}

func NewOnChip(ch hal.ADCChannel, cfg config.ADCConfig) *OnChip {
	return &OnChip{ch: ch, vref: cfg.VRef, fullScale: cfg.FullScale()}
}

func (o *OnChip) Read() float32 {
	v := analog.ToVoltage(o.ch.Get(), o.vref, o.fullScale)
	return OnChipRefTemp - (v-OnChipRefVolts)/OnChipSlope
}

// New builds the source named by cfg.Source.
func New(cfg config.TemperatureConfig, adc config.ADCConfig, p *hal.Peripherals) (Source, error) {
	switch cfg.Source {
	case "", "simulated":
		return NewSimulated(cfg.Initial, cfg.Min, cfg.Max, cfg.Seed), nil
	case "adc":
		if p == nil || p.TempADC == nil {
			return nil, fmt.Errorf("temperature source adc: %w", hal.ErrMissingPeripheral)
		}
		return NewOnChip(p.TempADC, adc), nil
	case "shtc3":
		if p == nil || p.I2C == nil {
			return nil, fmt.Errorf("temperature source shtc3: %w", hal.ErrMissingPeripheral)
		}
		return NewSHTC3(p.I2C, cfg.Initial), nil
	default:
		return nil, fmt.Errorf("unknown temperature source %q", cfg.Source)
	}
}
