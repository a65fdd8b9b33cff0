// Package hal defines the peripherals the firmware drives and the one-time
// initialisation that turns a board description into ready handles.
package hal

import (
	"errors"
	"fmt"
	"time"

	"tinygo.org/x/drivers"
)

// Pin is a digital output pin.
type Pin interface {
	Set(high bool)
	Get() bool
}

// PWMChannel is one compare channel of a PWM timer.
type PWMChannel interface {
	Top() uint32 // Compare value at 100% duty, 0 if unknown
	Set(compare uint32)
}

// ADCChannel is one analog input, returning raw samples.
type ADCChannel interface {
	Get() uint16
}

// Resetter restarts the system. On hardware it does not return.
type Resetter interface {
	Reset()
}

// Clock provides the millisecond tick and bounded waits.
type Clock interface {
	Millis() uint32
	Sleep(d time.Duration)
}

// Board is the raw hardware binding supplied by a target.
type Board struct {
	LED     Pin
	PWM     PWMChannel
	ADC     ADCChannel
	TempADC ADCChannel  // Optional on-chip temperature channel
	I2C     drivers.I2C // Optional bus of an external temperature sensor
	Reset   Resetter
	Clock   Clock
}

// Peripherals are the initialised handles used by the firmware.
type Peripherals struct {
	LED     *LED
	PWM     PWMChannel
	ADC     ADCChannel
	TempADC ADCChannel
	I2C     drivers.I2C
	Reset   Resetter
	Clock   Clock
}

var ErrMissingPeripheral = errors.New("missing peripheral")

// Init validates the board and configures the peripherals: the LED is driven
// to its off level and the PWM output to zero.
func Init(b Board) (*Peripherals, error) {
	switch {
	case b.LED == nil:
		return nil, fmt.Errorf("led: %w", ErrMissingPeripheral)
	case b.PWM == nil:
		return nil, fmt.Errorf("pwm: %w", ErrMissingPeripheral)
	case b.ADC == nil:
		return nil, fmt.Errorf("adc: %w", ErrMissingPeripheral)
	case b.Reset == nil:
		return nil, fmt.Errorf("reset: %w", ErrMissingPeripheral)
	case b.Clock == nil:
		return nil, fmt.Errorf("clock: %w", ErrMissingPeripheral)
	}

	led := NewLED(b.LED)
	led.Off()
	b.PWM.Set(0)

	return &Peripherals{
		LED:     led,
		PWM:     b.PWM,
		ADC:     b.ADC,
		TempADC: b.TempADC,
		I2C:     b.I2C,
		Reset:   b.Reset,
		Clock:   b.Clock,
	}, nil
}

// StartupBlink flashes the LED three times, 100ms per phase, and leaves it off.
func (p *Peripherals) StartupBlink() {
	for range 3 {
		p.LED.On()
		p.Clock.Sleep(100 * time.Millisecond)
		p.LED.Off()
		p.Clock.Sleep(100 * time.Millisecond)
	}
}
