// Package link opens the serial line the device firmware talks over when it
// runs hosted on a computer instead of a microcontroller.
package link

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	tarm "github.com/tarm/serial"
	"go.bug.st/serial"

	"github.com/itohio/golink/pkg/config"
)

const (
	// DefaultBaudRate matches the firmware UART.
	DefaultBaudRate = 115200

	DriverBugst = "bugst"
	DriverTarm  = "tarm"
	DriverStdio = "stdio"
)

var ErrUnknownDriver = errors.New("unknown serial driver")

// Port is an open serial line.
type Port interface {
	io.ReadWriteCloser
	Name() string
}

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]PortInfo, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]PortInfo, 0, len(ports))
	for _, name := range ports {
		result = append(result, PortInfo{Name: name, Description: name})
	}
	return result, nil
}

// Open opens the port described by cfg with the configured driver.
func Open(cfg config.SerialConfig) (Port, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	switch cfg.Driver {
	case "", DriverBugst:
		return openBugst(cfg.Port, baud)
	case DriverTarm:
		return openTarm(cfg.Port, baud)
	case DriverStdio:
		return Stdio(), nil
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Driver, ErrUnknownDriver)
	}
}

type bugstPort struct {
	serial.Port
	name string
}

func (p *bugstPort) Name() string { return p.name }

func openBugst(name string, baud int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	log.Info().Str("port", name).Int("baud", baud).Str("driver", DriverBugst).Msg("serial port open")
	return &bugstPort{Port: p, name: name}, nil
}

type tarmPort struct {
	*tarm.Port
	name string
}

func (p *tarmPort) Name() string { return p.name }

func openTarm(name string, baud int) (Port, error) {
	p, err := tarm.OpenPort(&tarm.Config{
		Name:     name,
		Baud:     baud,
		Size:     8,
		Parity:   tarm.ParityNone,
		StopBits: tarm.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	log.Info().Str("port", name).Int("baud", baud).Str("driver", DriverTarm).Msg("serial port open")
	return &tarmPort{Port: p, name: name}, nil
}

// StreamPort adapts a reader and a writer into a Port.
type StreamPort struct {
	io.Reader
	io.Writer
	name   string
	closer func() error
}

// NewStreamPort joins r and w. closeFn may be nil.
func NewStreamPort(name string, r io.Reader, w io.Writer, closeFn func() error) *StreamPort {
	return &StreamPort{Reader: r, Writer: w, name: name, closer: closeFn}
}

func (p *StreamPort) Name() string { return p.name }

func (p *StreamPort) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// Stdio is the process standard input and output as a Port.
func Stdio() *StreamPort {
	return NewStreamPort(DriverStdio, os.Stdin, os.Stdout, nil)
}
