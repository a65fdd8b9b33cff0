package protocol

import (
	"encoding/json"
	"strconv"

	"github.com/itohio/golink/pkg/device"
)

// Message types of the structured envelope.
const (
	TypeResponse  = "response"
	TypeError     = "error"
	TypeHeartbeat = "heartbeat"
	TypeStartup   = "startup"
)

const (
	Version = "1.0.0"

	MsgUnknownCommand = "Unknown command"
)

// Features announced in the startup banner.
var Features = []string{"DMA", "JSON", "ADC", "PWM"}

type envelope struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type startup struct {
	Type     string   `json:"type"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

type tempData struct {
	Temp json.Number `json:"temp"`
}

type voltageData struct {
	Voltage json.Number `json:"voltage"`
	ADCRaw  uint16      `json:"adc_raw"`
}

type statusData struct {
	Temp    json.Number `json:"temp"`
	Voltage json.Number `json:"voltage"`
	ADC     uint16      `json:"adc"`
	PWM     uint8       `json:"pwm"`
	LED     uint8       `json:"led"`
	Uptime  uint32      `json:"uptime"`
	RxChars uint32      `json:"rx_chars"`
}

type heartbeatData struct {
	RxChars uint32      `json:"rx_chars"`
	Temp    json.Number `json:"temp"`
	PWM     uint8       `json:"pwm"`
}

type ledData struct {
	LED uint8 `json:"led"`
}

type pwmData struct {
	PWM int `json:"pwm"`
}

type intervalData struct {
	Heartbeat uint32 `json:"heartbeat"`
}

type statusText struct {
	Status string `json:"status"`
}

// Fixed formats a float with a fixed number of decimals, as printf %.Nf does.
func Fixed(v float32, decimals int) string {
	return strconv.FormatFloat(float64(v), 'f', decimals, 64)
}

func fixed(v float32, decimals int) json.Number {
	return json.Number(Fixed(v, decimals))
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// line encodes v and terminates it with '\n'.
func line(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(envelope{Type: TypeError, Message: err.Error()})
	}
	return string(b) + "\n"
}

// Startup is the banner sent once at boot.
func Startup() string {
	return line(startup{Type: TypeStartup, Version: Version, Features: Features})
}

// Error is a structured error message.
func Error(msg string) string {
	return line(envelope{Type: TypeError, Message: msg})
}

func TempResponse(t float32) string {
	return line(envelope{Type: TypeResponse, Data: tempData{Temp: fixed(t, 1)}})
}

func VoltageResponse(volts float32, raw uint16) string {
	return line(envelope{Type: TypeResponse, Data: voltageData{Voltage: fixed(volts, 2), ADCRaw: raw}})
}

func StatusResponse(s device.Snapshot) string {
	return line(envelope{Type: TypeResponse, Data: statusData{
		Temp:    fixed(s.Temperature, 1),
		Voltage: fixed(s.Voltage, 2),
		ADC:     s.ADCRaw,
		PWM:     s.PWMDuty,
		LED:     b2u(s.LED),
		Uptime:  s.Uptime,
		RxChars: s.RxChars,
	}})
}

func LEDResponse(on bool) string {
	return line(envelope{Type: TypeResponse, Data: ledData{LED: b2u(on)}})
}

func PWMResponse(duty int) string {
	return line(envelope{Type: TypeResponse, Data: pwmData{PWM: duty}})
}

func HeartbeatIntervalResponse(ms uint32) string {
	return line(envelope{Type: TypeResponse, Data: intervalData{Heartbeat: ms}})
}

func ResettingResponse() string {
	return line(envelope{Type: TypeResponse, Data: statusText{Status: "resetting"}})
}

// Heartbeat is the unsolicited liveness message.
func Heartbeat(s device.Snapshot) string {
	return line(envelope{Type: TypeHeartbeat, Data: heartbeatData{
		RxChars: s.RxChars,
		Temp:    fixed(s.Temperature, 1),
		PWM:     s.PWMDuty,
	}})
}

// Legacy replies.

func LegacyTemp(t float32) string {
	return "TEMP: " + Fixed(t, 1) + "°C\n"
}

func LegacyVoltage(volts float32, raw uint16) string {
	return "VOLTAGE: " + Fixed(volts, 2) + "V (ADC: " + strconv.FormatUint(uint64(raw), 10) + ")\n"
}

func LegacyLED(on bool) string {
	if on {
		return "OK: LED ON\n"
	}
	return "OK: LED OFF\n"
}

func LegacyPWM(duty int) string {
	return "OK: PWM=" + strconv.Itoa(duty) + "%\n"
}

func LegacyResetting() string {
	return "OK: Resetting...\n"
}

func LegacyError(msg string) string {
	return "ERROR: " + msg + "\n"
}
