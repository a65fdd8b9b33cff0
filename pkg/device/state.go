// Package device holds the shared device state read and written by the
// receive pipeline, the main loop and the command interpreter.
package device

import "sync"

// DefaultTemperature is the temperature reported at boot.
const DefaultTemperature float32 = 25.0

// Snapshot is a consistent copy of the device state.
type Snapshot struct {
	Temperature float32 // °C
	Voltage     float32 // V, derived from ADCRaw
	ADCRaw      uint16  // Averaged raw sample
	PWMDuty     uint8   // 0..100 %
	LED         bool    // Logical LED state (pin is active-low)
	Uptime      uint32  // Seconds since boot
	RxChars     uint32  // Bytes received since boot
	ErrorCode   uint8   // Reserved
}

// State is the device blackboard. All accessors are safe for concurrent use.
type State struct {
	mu sync.RWMutex
	s  Snapshot
}

// New creates a State with boot defaults.
func New() *State {
	return &State{
		s: Snapshot{Temperature: DefaultTemperature},
	}
}

// NewWithTemperature creates a State with boot defaults and the given initial temperature.
func NewWithTemperature(t float32) *State {
	st := New()
	st.s.Temperature = t
	return st
}

// Snapshot returns a copy of all fields.
func (st *State) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

func (st *State) Temperature() float32 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.Temperature
}

func (st *State) SetTemperature(t float32) {
	st.mu.Lock()
	st.s.Temperature = t
	st.mu.Unlock()
}

// ADC returns the latest averaged raw sample and its voltage.
func (st *State) ADC() (raw uint16, volts float32) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.ADCRaw, st.s.Voltage
}

// SetADC stores both values under one lock so readers never see a voltage
// derived from a different raw sample.
func (st *State) SetADC(raw uint16, volts float32) {
	st.mu.Lock()
	st.s.ADCRaw = raw
	st.s.Voltage = volts
	st.mu.Unlock()
}

func (st *State) PWMDuty() uint8 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.PWMDuty
}

func (st *State) SetPWMDuty(duty uint8) {
	st.mu.Lock()
	st.s.PWMDuty = duty
	st.mu.Unlock()
}

func (st *State) LED() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.LED
}

func (st *State) SetLED(on bool) {
	st.mu.Lock()
	st.s.LED = on
	st.mu.Unlock()
}

func (st *State) SetUptime(seconds uint32) {
	st.mu.Lock()
	st.s.Uptime = seconds
	st.mu.Unlock()
}

func (st *State) RxChars() uint32 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.RxChars
}

// AddRxChars increments the received byte counter.
func (st *State) AddRxChars(n uint32) {
	st.mu.Lock()
	st.s.RxChars += n
	st.mu.Unlock()
}
