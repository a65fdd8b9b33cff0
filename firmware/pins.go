//go:build rp2040

package main

import "machine"

const (
	// UART configuration
	UART_BAUD_RATE = 115200
	PIN_UART_TX    = machine.GP0
	PIN_UART_RX    = machine.GP1

	// Analog input on ADC0
	PIN_ADC = machine.GP26

	// PWM output, slice 7 channel B
	PIN_PWM       = machine.GP15
	PWM_PERIOD_NS = 1e9 / 1000 // 1kHz

	// Optional SHTC3 temperature sensor on I2C0
	PIN_I2C_SDA   = machine.GP4
	PIN_I2C_SCL   = machine.GP5
	I2C_FREQUENCY = 100 * machine.KHz
	SHTC3_ADDRESS = 0x70

	// Status LED wired to 3V3 through a resistor: lit when the pin is low
	PIN_LED = machine.GP16

	// The RP2040 ADC is 12 bits; machine.ADC scales samples to 16 bits.
	ADC_SHIFT = 16 - 12
)

// SHTC3 wake-up command, used to probe for the sensor.
var SHTC3_WAKEUP = []byte{0x35, 0x17}
