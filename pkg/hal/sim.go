package hal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/golink/pkg/config"
)

var (
	_ Pin        = (*SimPin)(nil)
	_ PWMChannel = (*SimPWM)(nil)
	_ ADCChannel = (*SimADC)(nil)
	_ Resetter   = (*SimReset)(nil)
	_ Clock      = (*SystemClock)(nil)
)

// SimPin is an in-memory digital pin. It powers up high.
type SimPin struct {
	mu      sync.Mutex
	level   bool
	toggles int
}

func NewSimPin() *SimPin { return &SimPin{level: true} }

func (p *SimPin) Set(high bool) {
	p.mu.Lock()
	if p.level != high {
		p.toggles++
	}
	p.level = high
	p.mu.Unlock()
}

func (p *SimPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Toggles returns how many level changes the pin has seen.
func (p *SimPin) Toggles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggles
}

// SimPWM records the last compare value written.
type SimPWM struct {
	top     uint32
	compare atomic.Uint32
	writes  atomic.Uint32
}

func NewSimPWM(top uint32) *SimPWM { return &SimPWM{top: top} }

func (p *SimPWM) Top() uint32 { return p.top }

func (p *SimPWM) Set(compare uint32) {
	p.compare.Store(compare)
	p.writes.Add(1)
}

func (p *SimPWM) Compare() uint32 { return p.compare.Load() }

// Writes returns the number of register writes.
func (p *SimPWM) Writes() uint32 { return p.writes.Load() }

// SimADC generates a slowly varying analog signal with a little noise.
type SimADC struct {
	cfg       config.SimConfig
	vref      float32
	fullScale float32
	start     time.Time
	now       func() time.Time
}

func NewSimADC(cfg config.SimConfig, adc config.ADCConfig) *SimADC {
	return &SimADC{
		cfg:       cfg,
		vref:      adc.VRef,
		fullScale: float32(adc.FullScale()),
		start:     time.Now(),
		now:       time.Now,
	}
}

func (a *SimADC) Get() uint16 {
	elapsed := a.now().Sub(a.start)

	v := a.cfg.Bias
	if a.cfg.Period > 0 {
		phase := 2 * math32.Pi * float32(elapsed%a.cfg.Period) / float32(a.cfg.Period)
		v += a.cfg.Amplitude * math32.Sin(phase)
	}

	// Add noise
	ns := float32(elapsed.Nanoseconds() % 1_000_000_000)
	v += (math32.Sin(ns*0.001) + math32.Cos(ns*0.0013)) * a.cfg.Noise * 0.5

	raw := v / a.vref * a.fullScale
	if raw < 0 {
		raw = 0
	} else if raw > a.fullScale {
		raw = a.fullScale
	}
	return uint16(raw)
}

// ConstADC always returns the same raw value.
type ConstADC uint16

func (c ConstADC) Get() uint16 { return uint16(c) }

// SimReset counts resets and runs an optional hook.
type SimReset struct {
	count atomic.Int32
	hook  func()
}

func NewSimReset(hook func()) *SimReset { return &SimReset{hook: hook} }

func (r *SimReset) Reset() {
	r.count.Add(1)
	if r.hook != nil {
		r.hook()
	}
}

func (r *SimReset) Count() int { return int(r.count.Load()) }

// SystemClock counts milliseconds from its creation.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock { return &SystemClock{start: time.Now()} }

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

func (c *SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// ManualClock is a Clock whose time only moves through Sleep and Advance.
type ManualClock struct {
	ms atomic.Uint32
}

func (c *ManualClock) Millis() uint32 { return c.ms.Load() }

func (c *ManualClock) Sleep(d time.Duration) { c.Advance(d) }

func (c *ManualClock) Advance(d time.Duration) {
	c.ms.Add(uint32(d.Milliseconds()))
}

// SimBoard builds a Board from simulated peripherals.
func SimBoard(cfg *config.Config, onReset func()) Board {
	return Board{
		LED: NewSimPin(),
		PWM: NewSimPWM(cfg.PWM.Period),
		ADC: NewSimADC(cfg.Sim, cfg.ADC),
		// About 25°C through the RP2040 sensor transfer function
		TempADC: ConstADC(880),
		Reset:   NewSimReset(onReset),
		Clock:   NewSystemClock(),
	}
}
