package hal

// LED drives an active-low status LED: the pin is low when the LED is lit.
type LED struct {
	pin Pin
}

func NewLED(pin Pin) *LED {
	return &LED{pin: pin}
}

func (l *LED) On()  { l.pin.Set(false) }
func (l *LED) Off() { l.pin.Set(true) }

// Set drives the LED to the logical state.
func (l *LED) Set(on bool) { l.pin.Set(!on) }

// IsOn reports the logical state read back from the pin.
func (l *LED) IsOn() bool { return !l.pin.Get() }

// Toggle inverts the pin.
func (l *LED) Toggle() { l.pin.Set(!l.pin.Get()) }
