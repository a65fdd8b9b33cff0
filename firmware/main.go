//go:build rp2040

//go:generate tinygo flash -target=pico

package main

import (
	"context"
	"errors"
	"machine"
	"time"

	"github.com/jangala-dev/tinygo-uartx/uartx"
	"github.com/rs/zerolog"

	"github.com/itohio/golink/pkg/config"
	"github.com/itohio/golink/pkg/firmware"
	"github.com/itohio/golink/pkg/hal"
)

// pwmSlice is the method set of machine.PWM0..PWM7.
type pwmSlice interface {
	Configure(cfg machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

// pwmChannel is one channel of an RP2040 PWM slice.
type pwmChannel struct {
	slice   pwmSlice
	channel uint8
}

func (c pwmChannel) Top() uint32        { return c.slice.Top() }
func (c pwmChannel) Set(compare uint32) { c.slice.Set(c.channel, compare) }

// adc returns 12-bit samples.
type adc struct{ machine.ADC }

func (a adc) Get() uint16 { return a.ADC.Get() >> ADC_SHIFT }

type cpuReset struct{}

func (cpuReset) Reset() { machine.CPUReset() }

// port reads the interrupt-buffered UART.
type port struct{ u *uartx.UART }

func (p port) Read(b []byte) (int, error) {
	return p.u.RecvSomeContext(context.Background(), b)
}

func (p port) Write(b []byte) (int, error) { return p.u.Write(b) }

func halt(msg string, err error) {
	println(msg, err.Error())
	for {
		time.Sleep(time.Hour)
	}
}

func main() {
	// The UART carries protocol bytes only.
	zerolog.SetGlobalLevel(zerolog.Disabled)

	cfg := config.Default()

	u := uartx.UART0
	if err := u.Configure(uartx.UARTConfig{
		BaudRate: UART_BAUD_RATE,
		TX:       PIN_UART_TX,
		RX:       PIN_UART_RX,
	}); err != nil {
		halt("uart:", err)
	}

	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	machine.InitADC()
	analog := machine.ADC{Pin: PIN_ADC}
	analog.Configure(machine.ADCConfig{Resolution: 12})

	var slice pwmSlice = machine.PWM7
	if err := slice.Configure(machine.PWMConfig{Period: PWM_PERIOD_NS}); err != nil {
		halt("pwm:", err)
	}
	ch, err := slice.Channel(PIN_PWM)
	if err != nil {
		halt("pwm:", err)
	}

	board := hal.Board{
		LED:   PIN_LED,
		PWM:   pwmChannel{slice: slice, channel: ch},
		ADC:   adc{analog},
		Reset: cpuReset{},
		Clock: hal.NewSystemClock(),
	}

	// A responding SHTC3 replaces the simulated temperature.
	if err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
		SDA:       PIN_I2C_SDA,
		SCL:       PIN_I2C_SCL,
	}); err == nil && machine.I2C0.Tx(SHTC3_ADDRESS, SHTC3_WAKEUP, nil) == nil {
		board.I2C = machine.I2C0
		cfg.Temperature.Source = "shtc3"
	}

	p, err := hal.Init(board)
	if err != nil {
		halt("init:", err)
	}

	fw, err := firmware.New(cfg, p, port{u})
	if err != nil {
		halt("firmware:", err)
	}

	// Run returns only if the line failed or the reset did not take.
	if err := fw.Run(context.Background()); err != nil && !errors.Is(err, firmware.ErrReset) {
		halt("run:", err)
	}
	machine.CPUReset()
}
