package sensor

import (
	"sync"

	"github.com/rs/zerolog/log"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/shtc3"
)

var _ Stepper = (*SHTC3)(nil)

// SHTC3 polls a Sensirion SHTC3 on an I2C bus. Read returns the last good
// measurement; a failed poll keeps it.
type SHTC3 struct {
	mu   sync.Mutex
	dev  shtc3.Device
	temp float32
	errs int
}

// NewSHTC3 reports initial until the first successful Step.
func NewSHTC3(bus drivers.I2C, initial float32) *SHTC3 {
	return &SHTC3{dev: shtc3.New(bus), temp: initial}
}

func (s *SHTC3) Read() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp
}

// Step wakes the sensor, measures and puts it back to sleep.
func (s *SHTC3) Step() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dev.WakeUp(); err != nil {
		s.errs++
		log.Warn().Err(err).Msg("shtc3 wake up failed")
		return s.temp
	}
	defer s.dev.Sleep()

	milli, _, err := s.dev.ReadTemperatureHumidity()
	if err != nil {
		s.errs++
		log.Warn().Err(err).Msg("shtc3 read failed")
		return s.temp
	}
	s.temp = float32(milli) / 1000
	return s.temp
}

// Errors returns the number of failed polls.
func (s *SHTC3) Errors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}
