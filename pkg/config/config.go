package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the device configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	UART        UARTConfig        `yaml:"uart"`
	ADC         ADCConfig         `yaml:"adc"`
	PWM         PWMConfig         `yaml:"pwm"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	Loop        LoopConfig        `yaml:"loop"`
	Temperature TemperatureConfig `yaml:"temperature"`
	Sim         SimConfig         `yaml:"sim"`
	Log         LogConfig         `yaml:"log"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	Driver   string `yaml:"driver"` // bugst, tarm or stdio
}

// UARTConfig contains buffer sizes of the UART pipeline.
type UARTConfig struct {
	RxBufferSize  int `yaml:"rx_buffer_size"`
	TxBufferSize  int `yaml:"tx_buffer_size"`
	CmdBufferSize int `yaml:"cmd_buffer_size"`
	TxQueue       int `yaml:"tx_queue"`  // Messages waiting behind the one in flight
	CmdQueue      int `yaml:"cmd_queue"` // Framed lines waiting for the main loop
}

// ADCConfig contains analog sampling configuration.
type ADCConfig struct {
	RingSize   int           `yaml:"ring_size"`
	Resolution int           `yaml:"resolution"` // bits
	VRef       float32       `yaml:"vref"`
	Refresh    time.Duration `yaml:"refresh"`
}

// PWMConfig contains PWM timer configuration.
type PWMConfig struct {
	Period uint32 `yaml:"period"` // Compare value at 100% duty
}

// HeartbeatConfig contains telemetry configuration.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// LoopConfig contains main loop timing.
type LoopConfig struct {
	Tick       time.Duration `yaml:"tick"`
	ResetDelay time.Duration `yaml:"reset_delay"`
}

// TemperatureConfig contains the temperature source configuration.
type TemperatureConfig struct {
	Source        string        `yaml:"source"` // simulated, adc or shtc3
	Initial       float32       `yaml:"initial"`
	Min           float32       `yaml:"min"`
	Max           float32       `yaml:"max"`
	DriftInterval time.Duration `yaml:"drift_interval"`
	Seed          int64         `yaml:"seed"` // 0 = time based
}

// SimConfig contains the simulated analog input waveform.
type SimConfig struct {
	Bias      float32       `yaml:"bias"`      // Volts
	Amplitude float32       `yaml:"amplitude"` // Volts
	Noise     float32       `yaml:"noise"`     // Volts
	Period    time.Duration `yaml:"period"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
			Driver:   "bugst",
		},
		UART: UARTConfig{
			RxBufferSize:  512,
			TxBufferSize:  512,
			CmdBufferSize: 256,
			TxQueue:       8,
			CmdQueue:      4,
		},
		ADC: ADCConfig{
			RingSize:   16,
			Resolution: 12,
			VRef:       3.3,
			Refresh:    100 * time.Millisecond,
		},
		PWM: PWMConfig{
			Period: 999,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
		},
		Loop: LoopConfig{
			Tick:       10 * time.Millisecond,
			ResetDelay: 100 * time.Millisecond,
		},
		Temperature: TemperatureConfig{
			Source:        "simulated",
			Initial:       25.0,
			Min:           20.0,
			Max:           30.0,
			DriftInterval: 3 * time.Second,
		},
		Sim: SimConfig{
			Bias:      1.65,
			Amplitude: 0.5,
			Noise:     0.01,
			Period:    10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FullScale returns the highest raw ADC value for the configured resolution.
func (c ADCConfig) FullScale() uint32 {
	return (uint32(1) << c.Resolution) - 1
}

// ensureDefaults ensures that all required fields have default values if missing.
// Heartbeat.Enabled is left as loaded: false is a valid choice.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.Driver == "" {
		c.Serial.Driver = def.Serial.Driver
	}

	if c.UART.RxBufferSize == 0 {
		c.UART.RxBufferSize = def.UART.RxBufferSize
	}
	if c.UART.TxBufferSize == 0 {
		c.UART.TxBufferSize = def.UART.TxBufferSize
	}
	if c.UART.CmdBufferSize == 0 {
		c.UART.CmdBufferSize = def.UART.CmdBufferSize
	}
	if c.UART.TxQueue == 0 {
		c.UART.TxQueue = def.UART.TxQueue
	}
	if c.UART.CmdQueue == 0 {
		c.UART.CmdQueue = def.UART.CmdQueue
	}

	if c.ADC.RingSize == 0 {
		c.ADC.RingSize = def.ADC.RingSize
	}
	if c.ADC.Resolution == 0 {
		c.ADC.Resolution = def.ADC.Resolution
	}
	if c.ADC.VRef == 0 {
		c.ADC.VRef = def.ADC.VRef
	}
	if c.ADC.Refresh == 0 {
		c.ADC.Refresh = def.ADC.Refresh
	}

	if c.PWM.Period == 0 {
		c.PWM.Period = def.PWM.Period
	}

	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = def.Heartbeat.Interval
	}

	if c.Loop.Tick == 0 {
		c.Loop.Tick = def.Loop.Tick
	}
	if c.Loop.ResetDelay == 0 {
		c.Loop.ResetDelay = def.Loop.ResetDelay
	}

	if c.Temperature.Source == "" {
		c.Temperature.Source = def.Temperature.Source
	}
	if c.Temperature.Initial == 0 {
		c.Temperature.Initial = def.Temperature.Initial
	}
	if c.Temperature.Min == 0 && c.Temperature.Max == 0 {
		c.Temperature.Min = def.Temperature.Min
		c.Temperature.Max = def.Temperature.Max
	}
	if c.Temperature.DriftInterval == 0 {
		c.Temperature.DriftInterval = def.Temperature.DriftInterval
	}

	if c.Sim.Period == 0 {
		c.Sim.Period = def.Sim.Period
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
