// Package pwm converts duty-cycle percentages into timer compare values.
package pwm

import "github.com/itohio/golink/pkg/hal"

// DefaultPeriod is the compare value at 100% duty when the channel does not report one.
const DefaultPeriod = 999

// Output drives one PWM channel by duty percentage.
type Output struct {
	ch     hal.PWMChannel
	period uint32
	duty   uint8
}

// New creates an Output. The channel's own Top wins over period when non-zero.
func New(ch hal.PWMChannel, period uint32) *Output {
	if top := ch.Top(); top != 0 {
		period = top
	}
	if period == 0 {
		period = DefaultPeriod
	}
	return &Output{ch: ch, period: period}
}

// Clamp limits duty to [0,100].
func Clamp(duty int) uint8 {
	switch {
	case duty < 0:
		return 0
	case duty > 100:
		return 100
	}
	return uint8(duty)
}

// Compare maps a duty percentage onto the compare register range.
func Compare(duty uint8, period uint32) uint32 {
	return uint32(duty) * period / 100
}

// Set clamps duty, writes the compare register once and returns the applied duty.
func (o *Output) Set(duty int) uint8 {
	d := Clamp(duty)
	o.ch.Set(Compare(d, o.period))
	o.duty = d
	return d
}

func (o *Output) Duty() uint8 { return o.duty }

func (o *Output) Period() uint32 { return o.period }
